package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/lifecycle"
	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/notify"
	"github.com/fieldserve/backend/internal/otp"
	"github.com/fieldserve/backend/internal/pricing"
)

var (
	// ErrAlreadyClaimed is returned to every loser of a claim race. Callers
	// must not retry; the lead is gone.
	ErrAlreadyClaimed = errors.New("job already claimed by another worker")
	// ErrInvoiceRequired gates STARTED→COMPLETED_PENDING_PAYMENT.
	ErrInvoiceRequired = errors.New("finalized invoice required to complete the job")

	// Re-exported so handlers map one package's errors.
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrUnauthorized      = lifecycle.ErrUnauthorized
)

// Store is the job persistence contract; *Repository implements it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error
	GetByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, error)
	ClaimTx(ctx context.Context, tx pgx.Tx, jobID, workerID uuid.UUID) (*models.Job, string, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status string) error
	SetInvoiceTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, items json.RawMessage) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Job, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Job, error)
	ListOpen(ctx context.Context, categoryID string) ([]*models.Job, error)
	ListStale(ctx context.Context, window time.Duration) ([]*models.Job, error)
}

// PromoConsumer atomically takes one use of a promotion code.
type PromoConsumer interface {
	ConsumeTx(ctx context.Context, tx pgx.Tx, code string) (*models.Promotion, error)
}

// Settler credits the worker wallet and platform revenue for a paid job.
type Settler interface {
	SettleJobTx(ctx context.Context, tx pgx.Tx, job *models.Job, split pricing.Settlement) error
}

// StartCodes is the OTP handshake contract the lifecycle needs.
type StartCodes interface {
	IssueStartCode(ctx context.Context, customerID uuid.UUID) (string, error)
	ConsumeStartCodeTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, code string) error
}

// AuditRecorder appends an audit entry inside the transition's transaction.
type AuditRecorder interface {
	RecordTx(ctx context.Context, tx pgx.Tx, e *models.AuditLogEntry) error
}

// CreateJobInput is the booking request.
type CreateJobInput struct {
	CategoryID       string
	SubServiceTypeID *string
	Description      string
	BasePriceCents   int64
	Address          string
	Latitude         float64
	Longitude        float64
	PromoCode        string
}

type Service interface {
	CreateJob(ctx context.Context, customerID uuid.UUID, in CreateJobInput) (*models.Job, error)
	OpenMatching(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	Claim(ctx context.Context, jobID, workerID uuid.UUID) (*models.Job, error)
	BeginTransit(ctx context.Context, jobID, workerID uuid.UUID) (*models.Job, error)
	IssueStartCode(ctx context.Context, jobID, customerID uuid.UUID) (string, error)
	VerifyAndStart(ctx context.Context, jobID, workerID uuid.UUID, code string) (*models.Job, error)
	FinalizeInvoice(ctx context.Context, jobID, workerID uuid.UUID, items json.RawMessage) (*models.Job, error)
	Pay(ctx context.Context, jobID, customerID uuid.UUID) (*models.Job, error)
	Cancel(ctx context.Context, jobID uuid.UUID, actor models.Actor) (*models.Job, error)

	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Job, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Job, error)
	ListOpen(ctx context.Context, categoryID string) ([]*models.Job, error)
	ListStale(ctx context.Context) ([]*models.Job, error)

	// Transaction surface for the dispute subsystem, which must change a
	// dispute row and its job in one atomic unit.
	Begin(ctx context.Context) (pgx.Tx, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, error)
	ApplyTransitionTx(ctx context.Context, tx pgx.Tx, job *models.Job, target string, actor models.Actor, force bool, action, notes string) error
	Publish(ctx context.Context, job *models.Job)
}

type service struct {
	repo        Store
	promos      PromoConsumer
	engine      pricing.Engine
	wallet      Settler
	codes       StartCodes
	audit       AuditRecorder
	publisher   notify.Publisher
	staleWindow time.Duration
	log         *slog.Logger
}

func NewService(repo Store, promos PromoConsumer, engine pricing.Engine, wallet Settler, codes StartCodes, audit AuditRecorder, publisher notify.Publisher, staleWindow time.Duration, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		repo:        repo,
		promos:      promos,
		engine:      engine,
		wallet:      wallet,
		codes:       codes,
		audit:       audit,
		publisher:   publisher,
		staleWindow: staleWindow,
		log:         log,
	}
}

var _ Service = (*service)(nil)

// CreateJob computes the booking quote (consuming the promo atomically with
// it) and persists the job in REQUESTED.
func (s *service) CreateJob(ctx context.Context, customerID uuid.UUID, in CreateJobInput) (*models.Job, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var promo *models.Promotion
	if in.PromoCode != "" {
		promo, err = s.promos.ConsumeTx(ctx, tx, in.PromoCode)
		if err != nil {
			return nil, err
		}
	}
	quote := s.engine.ComputeQuote(in.BasePriceCents, promo)

	job := &models.Job{
		CustomerID:       customerID,
		CategoryID:       in.CategoryID,
		SubServiceTypeID: in.SubServiceTypeID,
		Description:      in.Description,
		Address:          in.Address,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		BasePriceCents:   quote.SubtotalCents,
		TaxCents:         quote.TaxCents,
		PlatformFeeCents: quote.PlatformFeeCents,
		DiscountCents:    quote.DiscountCents,
		TotalCents:       quote.TotalCents,
	}
	if promo != nil {
		job.PromotionID = &promo.ID
	}
	if err := s.repo.CreateTx(ctx, tx, job); err != nil {
		return nil, err
	}
	if err := s.audit.RecordTx(ctx, tx, &models.AuditLogEntry{
		ActorID:     customerID,
		Action:      "job.create",
		EntityType:  "job",
		EntityID:    job.ID,
		BeforeState: "",
		AfterState:  models.JobStatusRequested,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	job.Status = models.JobStatusRequested
	s.Publish(ctx, job)
	return job, nil
}

// ApplyTransitionTx is the single path every status change takes: legality
// against the transition table, capability guard, edge side effects, status
// write, and the audit entry, all inside the caller's transaction. The job
// must have been loaded with GetForUpdateTx in the same transaction.
func (s *service) ApplyTransitionTx(ctx context.Context, tx pgx.Tx, job *models.Job, target string, actor models.Actor, force bool, action, notes string) error {
	from := job.Status
	if force {
		if actor.Role != models.RoleAdmin {
			return ErrUnauthorized
		}
		if !lifecycle.CanTransition(from, target) && !lifecycle.CanAdminForce(from, target) {
			return ErrInvalidTransition
		}
	} else {
		if !lifecycle.CanTransition(from, target) {
			return ErrInvalidTransition
		}
		if err := lifecycle.Authorize(job, from, target, actor); err != nil {
			return err
		}
	}

	// Entering PAID settles escrow to the worker wallet. The write is
	// idempotent per job, so a replayed payment event cannot double-credit.
	if target == models.JobStatusPaid && job.WorkerID != nil {
		if err := s.wallet.SettleJobTx(ctx, tx, job, s.engine.ComputeSettlement(job)); err != nil {
			return err
		}
		metrics.SettlementsTotal.Inc()
	}

	if err := s.repo.UpdateStatusTx(ctx, tx, job.ID, target); err != nil {
		return err
	}
	if err := s.audit.RecordTx(ctx, tx, &models.AuditLogEntry{
		ActorID:     actor.ID,
		Action:      action,
		EntityType:  "job",
		EntityID:    job.ID,
		BeforeState: from,
		AfterState:  target,
		Notes:       notes,
	}); err != nil {
		return err
	}
	job.Status = target
	job.UpdatedAt = time.Now()
	metrics.TransitionsTotal.WithLabelValues(from, target).Inc()
	return nil
}

// transition runs ApplyTransitionTx in its own transaction and fans out the
// committed state.
func (s *service) transition(ctx context.Context, jobID uuid.UUID, target string, actor models.Actor, force bool, action string) (*models.Job, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetForUpdateTx(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyTransitionTx(ctx, tx, job, target, actor, force, action, ""); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Publish(ctx, job)
	return job, nil
}

// OpenMatching is the system edge REQUESTED→MATCHING, driven by the matching
// process rather than any client.
func (s *service) OpenMatching(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, jobID, models.JobStatusMatching, models.Actor{ID: models.SystemActorID, Role: models.RoleAdmin}, false, "job.open_matching")
}

// Claim binds the calling worker to the job with one conditional write.
// Exactly one concurrent caller wins; everyone else gets ErrAlreadyClaimed.
func (s *service) Claim(ctx context.Context, jobID, workerID uuid.UUID) (*models.Job, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, prevStatus, err := s.repo.ClaimTx(ctx, tx, jobID, workerID)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			metrics.ClaimConflictsTotal.Inc()
		}
		return nil, err
	}
	if err := s.audit.RecordTx(ctx, tx, &models.AuditLogEntry{
		ActorID:     workerID,
		Action:      "job.claim",
		EntityType:  "job",
		EntityID:    job.ID,
		BeforeState: prevStatus,
		AfterState:  models.JobStatusAssigned,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(prevStatus, models.JobStatusAssigned).Inc()
	s.Publish(ctx, job)
	return job, nil
}

func (s *service) BeginTransit(ctx context.Context, jobID, workerID uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, jobID, models.JobStatusInTransit, models.Actor{ID: workerID, Role: models.RoleWorker}, false, "job.begin_transit")
}

// IssueStartCode hands the customer a fresh handshake code once their worker
// is on the way.
func (s *service) IssueStartCode(ctx context.Context, jobID, customerID uuid.UUID) (string, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.CustomerID != customerID {
		return "", ErrUnauthorized
	}
	if job.Status != models.JobStatusInTransit {
		return "", ErrInvalidTransition
	}
	return s.codes.IssueStartCode(ctx, customerID)
}

// VerifyAndStart consumes the customer's start code and moves the job to
// STARTED in one transaction: the code is never consumed without the
// transition committing, and never stays valid after a successful start.
func (s *service) VerifyAndStart(ctx context.Context, jobID, workerID uuid.UUID, code string) (*models.Job, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetForUpdateTx(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	actor := models.Actor{ID: workerID, Role: models.RoleWorker}
	if job.WorkerID == nil || *job.WorkerID != workerID {
		return nil, ErrUnauthorized
	}
	if err := s.codes.ConsumeStartCodeTx(ctx, tx, job.CustomerID, code); err != nil {
		metrics.OTPFailuresTotal.WithLabelValues(otpFailureKind(err)).Inc()
		return nil, err
	}
	if err := s.ApplyTransitionTx(ctx, tx, job, models.JobStatusStarted, actor, false, "job.verify_start", ""); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Publish(ctx, job)
	return job, nil
}

// FinalizeInvoice records the worker's itemization and completes the work.
// The customer still owes the total quoted at booking; the itemization never
// re-prices the job.
func (s *service) FinalizeInvoice(ctx context.Context, jobID, workerID uuid.UUID, items json.RawMessage) (*models.Job, error) {
	if len(items) == 0 {
		return nil, ErrInvoiceRequired
	}
	if err := validateInvoiceItems(items); err != nil {
		return nil, err
	}
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetForUpdateTx(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetInvoiceTx(ctx, tx, jobID, items); err != nil {
		return nil, err
	}
	job.InvoiceItems = items
	if err := s.ApplyTransitionTx(ctx, tx, job, models.JobStatusCompletedPendingPayment, models.Actor{ID: workerID, Role: models.RoleWorker}, false, "job.finalize_invoice", ""); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Publish(ctx, job)
	return job, nil
}

// Pay records a successful customer payment: the job enters PAID and the
// worker wallet is credited in the same transaction.
func (s *service) Pay(ctx context.Context, jobID, customerID uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, jobID, models.JobStatusPaid, models.Actor{ID: customerID, Role: models.RoleCustomer}, false, "job.pay")
}

func (s *service) Cancel(ctx context.Context, jobID uuid.UUID, actor models.Actor) (*models.Job, error) {
	return s.transition(ctx, jobID, models.JobStatusCancelled, actor, false, "job.cancel")
}

func (s *service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.repo.GetByID(ctx, jobID)
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Job, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

func (s *service) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Job, error) {
	return s.repo.ListByWorker(ctx, workerID)
}

func (s *service) ListOpen(ctx context.Context, categoryID string) ([]*models.Job, error) {
	return s.repo.ListOpen(ctx, categoryID)
}

func (s *service) ListStale(ctx context.Context) ([]*models.Job, error) {
	return s.repo.ListStale(ctx, s.staleWindow)
}

func (s *service) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.repo.Begin(ctx)
}

func (s *service) GetForUpdateTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, error) {
	return s.repo.GetForUpdateTx(ctx, tx, jobID)
}

// Publish fans the job's committed state out to subscribers. Delivery
// failures are logged, never surfaced: the transition already committed.
func (s *service) Publish(ctx context.Context, job *models.Job) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJobUpdated(ctx, job); err != nil {
		s.log.Warn("job event publish failed", "job_id", job.ID, "status", job.Status, "error", err)
	}
}

func otpFailureKind(err error) string {
	if errors.Is(err, otp.ErrCodeExpired) {
		return "expired"
	}
	return "invalid"
}
