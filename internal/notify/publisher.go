// Package notify fans out job state changes to interested observers
// (customer, assigned worker, admin streams) over a RabbitMQ topic exchange.
// Subscribers bind with routing-key patterns such as job.* or job.disputed.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/rabbitmq/amqp091-go"

	"github.com/fieldserve/backend/internal/models"
)

// Publisher is the fan-out contract. Services depend on this, not on AMQP.
type Publisher interface {
	PublishJobUpdated(ctx context.Context, job *models.Job) error
}

// jobEvent is the wire payload observers receive.
type jobEvent struct {
	JobID      string  `json:"job_id"`
	Status     string  `json:"status"`
	CustomerID string  `json:"customer_id"`
	WorkerID   *string `json:"worker_id,omitempty"`
	TotalCents int64   `json:"total_cents"`
	UpdatedAt  string  `json:"updated_at"`
}

// RabbitPublisher publishes JSON job events to a RabbitMQ topic exchange.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewRabbitPublisher connects and declares the durable topic exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// PublishJobUpdated sends the job's current state under job.<status>.
func (p *RabbitPublisher) PublishJobUpdated(ctx context.Context, job *models.Job) error {
	if p == nil {
		return nil
	}
	ev := jobEvent{
		JobID:      job.ID.String(),
		Status:     job.Status,
		CustomerID: job.CustomerID.String(),
		TotalCents: job.TotalCents,
		UpdatedAt:  job.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if job.WorkerID != nil {
		s := job.WorkerID.String()
		ev.WorkerID = &s
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	routingKey := "job." + strings.ToLower(job.Status)
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close terminates the connection.
func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		slog.Warn("close amqp channel", "error", err)
	}
	return p.conn.Close()
}
