package models

import (
	"time"

	"github.com/google/uuid"
)

// Promotion is a discount code applied at most once per job at booking time.
// A promotion referenced by a settled job is never mutated, so audit replay of
// a quote stays exact.
type Promotion struct {
	ID               uuid.UUID `json:"id"`
	Code             string    `json:"code"`
	Percent          int       `json:"percent"`
	MaxDiscountCents *int64    `json:"max_discount_cents,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	MaxUses          *int      `json:"max_uses,omitempty"`
	UsageCount       int       `json:"usage_count"`
	CreatedAt        time.Time `json:"created_at"`
}
