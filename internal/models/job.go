package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job lifecycle statuses. PAID and CANCELLED are terminal.
const (
	JobStatusRequested               = "REQUESTED"
	JobStatusMatching                = "MATCHING"
	JobStatusAssigned                = "ASSIGNED"
	JobStatusInTransit               = "IN_TRANSIT"
	JobStatusStarted                 = "STARTED"
	JobStatusCompletedPendingPayment = "COMPLETED_PENDING_PAYMENT"
	JobStatusPaid                    = "PAID"
	JobStatusDisputed                = "DISPUTED"
	JobStatusCancelled               = "CANCELLED"
)

// Job is the central entity: a customer request serviced by at most one worker.
// Status is the single source of truth for lifecycle position; updated_at doubles
// as "time entered current state" for staleness checks.
type Job struct {
	ID               uuid.UUID       `json:"id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	WorkerID         *uuid.UUID      `json:"worker_id,omitempty"`
	CategoryID       string          `json:"category_id"`
	SubServiceTypeID *string         `json:"sub_service_type_id,omitempty"`
	Description      string          `json:"description"`
	Status           string          `json:"status"`
	Address          string          `json:"address"`
	Latitude         float64         `json:"latitude"`
	Longitude        float64         `json:"longitude"`
	BasePriceCents   int64           `json:"base_price_cents"`
	TaxCents         int64           `json:"tax_cents"`
	PlatformFeeCents int64           `json:"platform_fee_cents"`
	DiscountCents    int64           `json:"discount_cents"`
	TotalCents       int64           `json:"total_cents"`
	PromotionID      *uuid.UUID      `json:"promotion_id,omitempty"`
	InvoiceItems     json.RawMessage `json:"invoice_items,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Terminal reports whether no further transitions are possible from status.
func Terminal(status string) bool {
	return status == JobStatusPaid || status == JobStatusCancelled
}
