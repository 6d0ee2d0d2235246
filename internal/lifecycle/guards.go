package lifecycle

import (
	"github.com/fieldserve/backend/internal/models"
)

// Authorize checks that the actor holds the capability the from→to edge
// requires. It assumes CanTransition(from, to) already passed; callers must
// check legality first.
func Authorize(job *models.Job, from, to string, actor models.Actor) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	switch to {
	case models.JobStatusMatching, models.JobStatusRequested:
		// System/matching process edges only; no client actor may drive them.
		return ErrUnauthorized
	case models.JobStatusAssigned:
		// Assignment happens via the claim coordinator's conditional write,
		// which binds the winning worker itself.
		if actor.Role != models.RoleWorker {
			return ErrUnauthorized
		}
		return nil
	case models.JobStatusInTransit, models.JobStatusStarted, models.JobStatusCompletedPendingPayment:
		if actor.Role != models.RoleWorker || job.WorkerID == nil || *job.WorkerID != actor.ID {
			return ErrUnauthorized
		}
		return nil
	case models.JobStatusPaid:
		if from == models.JobStatusDisputed {
			// Only dispute resolution (admin) releases a disputed job.
			return ErrUnauthorized
		}
		if actor.Role != models.RoleCustomer || job.CustomerID != actor.ID {
			return ErrUnauthorized
		}
		return nil
	case models.JobStatusDisputed:
		// Either party to the job may raise a dispute.
		if actor.ID == job.CustomerID {
			return nil
		}
		if job.WorkerID != nil && *job.WorkerID == actor.ID {
			return nil
		}
		return ErrUnauthorized
	case models.JobStatusCancelled:
		if from == models.JobStatusDisputed {
			return ErrUnauthorized
		}
		// Before work starts the customer may cancel; the assigned worker may
		// back out of ASSIGNED/IN_TRANSIT.
		if actor.ID == job.CustomerID {
			return nil
		}
		if job.WorkerID != nil && *job.WorkerID == actor.ID {
			return nil
		}
		return ErrUnauthorized
	}
	return ErrUnauthorized
}
