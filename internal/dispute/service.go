package dispute

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/models"
)

var (
	// ErrReasonRequired rejects dispute submissions and admin interventions
	// without a stated reason.
	ErrReasonRequired = errors.New("a reason is required")
	// ErrNotesRequired rejects dispute resolutions without resolution notes.
	ErrNotesRequired = errors.New("resolution notes are required")
	// ErrInvalidCategory is returned for an unknown dispute category.
	ErrInvalidCategory = errors.New("invalid dispute category")
	// ErrInvalidDecision is returned for an unknown resolution decision.
	ErrInvalidDecision = errors.New("invalid resolution decision")
	// ErrInvalidAction is returned for an unknown admin intervention action.
	ErrInvalidAction = errors.New("invalid intervention action")
	// ErrDisputeClosed is returned when resolving a dispute that is no longer
	// open.
	ErrDisputeClosed = errors.New("dispute is already resolved")
)

// JobCoordinator is the transactional surface the dispute flow drives: every
// dispute change rides in the same transaction as its job transition.
type JobCoordinator interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, error)
	ApplyTransitionTx(ctx context.Context, tx pgx.Tx, job *models.Job, target string, actor models.Actor, force bool, action, notes string) error
	Publish(ctx context.Context, job *models.Job)
}

// Store is the dispute persistence contract; *Repository implements it.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	ResolveTx(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID, status, decision, notes string) (*models.Dispute, error)
	CloseOpenByJobTx(ctx context.Context, tx pgx.Tx, jobID, adminID uuid.UUID, status, decision, notes string) error
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
}

type Service interface {
	Submit(ctx context.Context, jobID uuid.UUID, reporter models.Actor, category, reason string) (*models.Dispute, error)
	Resolve(ctx context.Context, disputeID, adminID uuid.UUID, decision, notes string) (*models.Dispute, *models.Job, error)
	Intervene(ctx context.Context, jobID, adminID uuid.UUID, action, reason string) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
}

type service struct {
	store Store
	jobs  JobCoordinator
}

func NewService(store Store, jobs JobCoordinator) Service {
	return &service{store: store, jobs: jobs}
}

var _ Service = (*service)(nil)

// Submit raises a dispute and freezes the job in DISPUTED atomically. The
// lifecycle table restricts this to STARTED and COMPLETED_PENDING_PAYMENT, and
// the guard restricts it to the job's own parties.
func (s *service) Submit(ctx context.Context, jobID uuid.UUID, reporter models.Actor, category, reason string) (*models.Dispute, error) {
	if !validCategory(category) {
		return nil, ErrInvalidCategory
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	tx, err := s.jobs.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.jobs.GetForUpdateTx(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.ApplyTransitionTx(ctx, tx, job, models.JobStatusDisputed, reporter, false, "job.dispute", ""); err != nil {
		return nil, err
	}
	d := &models.Dispute{
		JobID:      jobID,
		ReporterID: reporter.ID,
		Category:   category,
		Reason:     reason,
	}
	if err := s.store.CreateTx(ctx, tx, d); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	metrics.DisputesOpenedTotal.Inc()
	s.jobs.Publish(ctx, job)
	return d, nil
}

// Resolve closes an open dispute and its job in one transaction.
// DISMISS_RELEASE pays the job out; UPHOLD_REFUND cancels it so the customer
// is never charged.
func (s *service) Resolve(ctx context.Context, disputeID, adminID uuid.UUID, decision, notes string) (*models.Dispute, *models.Job, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, nil, ErrNotesRequired
	}
	var target, disputeStatus string
	switch decision {
	case models.DisputeDecisionDismissRelease:
		target = models.JobStatusPaid
		disputeStatus = models.DisputeStatusDismissed
	case models.DisputeDecisionUpholdRefund:
		target = models.JobStatusCancelled
		disputeStatus = models.DisputeStatusResolved
	default:
		return nil, nil, ErrInvalidDecision
	}

	tx, err := s.jobs.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	d, err := s.store.GetForUpdateTx(ctx, tx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	if d.Status != models.DisputeStatusOpen {
		return nil, nil, ErrDisputeClosed
	}
	job, err := s.jobs.GetForUpdateTx(ctx, tx, d.JobID)
	if err != nil {
		return nil, nil, err
	}
	admin := models.Actor{ID: adminID, Role: models.RoleAdmin}
	if err := s.jobs.ApplyTransitionTx(ctx, tx, job, target, admin, false, "dispute.resolve", notes); err != nil {
		return nil, nil, err
	}
	resolved, err := s.store.ResolveTx(ctx, tx, disputeID, adminID, disputeStatus, decision, notes)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	s.jobs.Publish(ctx, job)
	return resolved, job, nil
}

// Intervene is the admin override: TERMINATE cancels the job, FORCE_COMPLETE
// releases funds as if paid. An open dispute on the job, when present, is
// closed under the matching decision. A reason is mandatory and lands in the
// audit entry.
func (s *service) Intervene(ctx context.Context, jobID, adminID uuid.UUID, action, reason string) (*models.Job, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	var target, disputeStatus, decision string
	switch action {
	case models.AdminActionTerminate:
		target = models.JobStatusCancelled
		disputeStatus = models.DisputeStatusResolved
		decision = models.DisputeDecisionUpholdRefund
	case models.AdminActionForceComplete:
		target = models.JobStatusPaid
		disputeStatus = models.DisputeStatusDismissed
		decision = models.DisputeDecisionDismissRelease
	default:
		return nil, ErrInvalidAction
	}

	tx, err := s.jobs.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.jobs.GetForUpdateTx(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	admin := models.Actor{ID: adminID, Role: models.RoleAdmin}
	if err := s.jobs.ApplyTransitionTx(ctx, tx, job, target, admin, true, "admin."+strings.ToLower(action), reason); err != nil {
		return nil, err
	}
	// Forcing a disputed job to a terminal state settles its dispute too, so
	// the dispute leaves the admin queue with the same transaction.
	if err := s.store.CloseOpenByJobTx(ctx, tx, jobID, adminID, disputeStatus, decision, reason); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.jobs.Publish(ctx, job)
	return job, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return s.store.GetByID(ctx, id)
}

func (s *service) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	return s.store.ListOpen(ctx)
}

func validCategory(category string) bool {
	switch category {
	case models.DisputeCategoryPricing, models.DisputeCategoryQuality,
		models.DisputeCategoryBehavior, models.DisputeCategoryIncomplete:
		return true
	}
	return false
}
