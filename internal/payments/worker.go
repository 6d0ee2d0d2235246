// Package payments consumes payment gateway confirmations and applies them to
// the job lifecycle through the durable queue.
package payments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/fieldserve/backend/internal/jobs"
	"github.com/fieldserve/backend/internal/models"
)

// GatewayConfirmationArgs is the queue payload for one successful charge
// reported by the payment gateway.
type GatewayConfirmationArgs struct {
	JobID      uuid.UUID `json:"job_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	GatewayRef string    `json:"gateway_ref"`
}

func (GatewayConfirmationArgs) Kind() string { return "payment_confirmation" }

// Payer is the lifecycle contract the worker needs to record a payment.
type Payer interface {
	Pay(ctx context.Context, jobID, customerID uuid.UUID) (*models.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
}

// ConfirmationWorker moves jobs to PAID when the gateway confirms a charge.
// Settlement idempotence in the wallet ledger makes redelivery harmless.
type ConfirmationWorker struct {
	river.WorkerDefaults[GatewayConfirmationArgs]
	payer Payer
	log   *slog.Logger
}

func NewConfirmationWorker(payer Payer, log *slog.Logger) *ConfirmationWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ConfirmationWorker{payer: payer, log: log}
}

func (w *ConfirmationWorker) Work(ctx context.Context, job *river.Job[GatewayConfirmationArgs]) error {
	args := job.Args
	_, err := w.payer.Pay(ctx, args.JobID, args.CustomerID)
	if err == nil {
		w.log.Info("gateway payment applied", "job_id", args.JobID, "gateway_ref", args.GatewayRef)
		return nil
	}
	if errors.Is(err, jobs.ErrInvalidTransition) {
		// A redelivered confirmation for a job that already reached PAID is
		// complete; anything else (disputed, cancelled) waits for retry and
		// surfaces through River's error reporting.
		current, getErr := w.payer.GetJob(ctx, args.JobID)
		if getErr == nil && current.Status == models.JobStatusPaid {
			w.log.Info("gateway confirmation replayed for paid job", "job_id", args.JobID, "gateway_ref", args.GatewayRef)
			return nil
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		w.log.Warn("gateway confirmation for unknown job", "job_id", args.JobID, "gateway_ref", args.GatewayRef)
		return river.JobCancel(err)
	}
	return err
}
