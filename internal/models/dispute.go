package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute statuses.
const (
	DisputeStatusOpen      = "OPEN"
	DisputeStatusResolved  = "RESOLVED"
	DisputeStatusDismissed = "DISMISSED"
)

// Dispute categories.
const (
	DisputeCategoryPricing    = "PRICING"
	DisputeCategoryQuality    = "QUALITY"
	DisputeCategoryBehavior   = "BEHAVIOR"
	DisputeCategoryIncomplete = "INCOMPLETE"
)

// Dispute resolution decisions.
const (
	DisputeDecisionUpholdRefund   = "UPHOLD_REFUND"
	DisputeDecisionDismissRelease = "DISMISS_RELEASE"
)

// Admin intervention actions (not tied to a dispute).
const (
	AdminActionTerminate     = "TERMINATE"
	AdminActionForceComplete = "FORCE_COMPLETE"
)

// Dispute freezes its job's payout until an admin closes it. Closing a dispute
// always also closes the job (PAID or CANCELLED).
type Dispute struct {
	ID         uuid.UUID  `json:"id"`
	JobID      uuid.UUID  `json:"job_id"`
	ReporterID uuid.UUID  `json:"reporter_id"`
	Category   string     `json:"category"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	Decision   *string    `json:"decision,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
