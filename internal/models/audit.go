package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry records one state-changing action. Entries are never updated
// or deleted.
type AuditLogEntry struct {
	ID          uuid.UUID `json:"id"`
	ActorID     uuid.UUID `json:"actor_id"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    uuid.UUID `json:"entity_id"`
	BeforeState string    `json:"before_state"`
	AfterState  string    `json:"after_state"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
