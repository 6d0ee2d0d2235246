// Package lifecycle holds the authoritative job transition table and the
// capability guard for each edge. No other package may decide whether a
// transition is legal.
package lifecycle

import (
	"errors"

	"github.com/fieldserve/backend/internal/models"
)

var (
	// ErrInvalidTransition is returned for an edge not present in the table.
	ErrInvalidTransition = errors.New("invalid transition for current status")
	// ErrUnauthorized is returned when the actor lacks the capability the
	// edge requires.
	ErrUnauthorized = errors.New("actor lacks capability for this transition")
)

// transitions maps source status to its allowed target set.
var transitions = map[string][]string{
	models.JobStatusRequested:               {models.JobStatusMatching, models.JobStatusCancelled},
	models.JobStatusMatching:                {models.JobStatusAssigned, models.JobStatusRequested, models.JobStatusCancelled},
	models.JobStatusAssigned:                {models.JobStatusInTransit, models.JobStatusCancelled},
	models.JobStatusInTransit:               {models.JobStatusStarted, models.JobStatusCancelled},
	models.JobStatusStarted:                 {models.JobStatusCompletedPendingPayment, models.JobStatusDisputed},
	models.JobStatusCompletedPendingPayment: {models.JobStatusPaid, models.JobStatusDisputed},
	models.JobStatusDisputed:                {models.JobStatusPaid, models.JobStatusCancelled},
	models.JobStatusPaid:                    {},
	models.JobStatusCancelled:               {},
}

// AllowedTargets returns the target set for a source status.
func AllowedTargets(from string) []string {
	out := make([]string, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// CanTransition reports whether from→to is an edge in the table.
func CanTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CanAdminForce reports whether an admin override may move from→to outside
// the normal table: TERMINATE to CANCELLED from any non-terminal status, and
// FORCE_COMPLETE to PAID only from statuses with a bound worker. A PAID job
// always has a worker to settle to.
func CanAdminForce(from, to string) bool {
	if models.Terminal(from) {
		return false
	}
	switch to {
	case models.JobStatusCancelled:
		return true
	case models.JobStatusPaid:
		switch from {
		case models.JobStatusAssigned, models.JobStatusInTransit, models.JobStatusStarted,
			models.JobStatusCompletedPendingPayment, models.JobStatusDisputed:
			return true
		}
	}
	return false
}

// Statuses lists every status the table knows about.
func Statuses() []string {
	return []string{
		models.JobStatusRequested,
		models.JobStatusMatching,
		models.JobStatusAssigned,
		models.JobStatusInTransit,
		models.JobStatusStarted,
		models.JobStatusCompletedPendingPayment,
		models.JobStatusPaid,
		models.JobStatusDisputed,
		models.JobStatusCancelled,
	}
}
