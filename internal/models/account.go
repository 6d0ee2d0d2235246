package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles. Capability checks on lifecycle edges key off these.
const (
	RoleCustomer = "customer"
	RoleWorker   = "worker"
	RoleAdmin    = "admin"
)

// SystemPlatformAccountID receives platform revenue ledger entries.
// SystemActorID is recorded on audit entries for system-driven transitions.
var (
	SystemPlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	SystemActorID           = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor identifies who is requesting a lifecycle transition.
type Actor struct {
	ID   uuid.UUID
	Role string
}
