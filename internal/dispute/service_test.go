package dispute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/jobs"
	"github.com/fieldserve/backend/internal/lifecycle"
	"github.com/fieldserve/backend/internal/models"
)

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

// fakeCoordinator mirrors the real transition path: table legality, guards,
// and settlement on entering PAID.
type fakeCoordinator struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*models.Job
	settled    []uuid.UUID
	published  []string
	lastAction string
	lastNotes  string
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{jobs: make(map[uuid.UUID]*models.Job)}
}

func (f *fakeCoordinator) add(j *models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakeCoordinator) Begin(_ context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeCoordinator) GetForUpdateTx(_ context.Context, _ pgx.Tx, jobID uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *j
	return &cp, nil
}

func (f *fakeCoordinator) ApplyTransitionTx(_ context.Context, _ pgx.Tx, job *models.Job, target string, actor models.Actor, force bool, action, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := job.Status
	if force {
		if actor.Role != models.RoleAdmin {
			return jobs.ErrUnauthorized
		}
		if !lifecycle.CanTransition(from, target) && !lifecycle.CanAdminForce(from, target) {
			return jobs.ErrInvalidTransition
		}
	} else {
		if !lifecycle.CanTransition(from, target) {
			return jobs.ErrInvalidTransition
		}
		if err := lifecycle.Authorize(job, from, target, actor); err != nil {
			return err
		}
	}
	if target == models.JobStatusPaid && job.WorkerID != nil {
		f.settled = append(f.settled, job.ID)
	}
	f.jobs[job.ID].Status = target
	job.Status = target
	f.lastAction = action
	f.lastNotes = notes
	return nil
}

func (f *fakeCoordinator) Publish(_ context.Context, job *models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, job.Status)
}

type memDisputes struct {
	mu       sync.Mutex
	disputes map[uuid.UUID]*models.Dispute
}

func newMemDisputes() *memDisputes {
	return &memDisputes{disputes: make(map[uuid.UUID]*models.Dispute)}
}

func (m *memDisputes) CreateTx(_ context.Context, _ pgx.Tx, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.Status = models.DisputeStatusOpen
	d.CreatedAt = time.Now()
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *memDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memDisputes) GetForUpdateTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return m.GetByID(ctx, id)
}

func (m *memDisputes) ResolveTx(_ context.Context, _ pgx.Tx, id, adminID uuid.UUID, status, decision, notes string) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if d.Status != models.DisputeStatusOpen {
		return nil, ErrDisputeClosed
	}
	d.Status = status
	d.ResolvedBy = &adminID
	d.Decision = &decision
	d.Notes = &notes
	now := time.Now()
	d.ResolvedAt = &now
	cp := *d
	return &cp, nil
}

func (m *memDisputes) CloseOpenByJobTx(_ context.Context, _ pgx.Tx, jobID, adminID uuid.UUID, status, decision, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.disputes {
		if d.JobID != jobID || d.Status != models.DisputeStatusOpen {
			continue
		}
		d.Status = status
		d.ResolvedBy = &adminID
		d.Decision = &decision
		d.Notes = &notes
		now := time.Now()
		d.ResolvedAt = &now
	}
	return nil
}

func (m *memDisputes) ListOpen(_ context.Context) ([]*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Dispute
	for _, d := range m.disputes {
		if d.Status == models.DisputeStatusOpen {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------

func startedJob(customer, worker uuid.UUID) *models.Job {
	w := worker
	return &models.Job{
		ID:         uuid.New(),
		CustomerID: customer,
		WorkerID:   &w,
		Status:     models.JobStatusStarted,
	}
}

func TestSubmitDispute(t *testing.T) {
	coord := newFakeCoordinator()
	store := newMemDisputes()
	svc := NewService(store, coord)
	customer := uuid.New()
	job := startedJob(customer, uuid.New())
	coord.add(job)

	d, err := svc.Submit(context.Background(), job.ID, models.Actor{ID: customer, Role: models.RoleCustomer},
		models.DisputeCategoryQuality, "tap still leaking after visit")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if d.Status != models.DisputeStatusOpen {
		t.Errorf("dispute status: got %s, want OPEN", d.Status)
	}
	if coord.jobs[job.ID].Status != models.JobStatusDisputed {
		t.Errorf("job status: got %s, want DISPUTED", coord.jobs[job.ID].Status)
	}
	if len(coord.published) != 1 || coord.published[0] != models.JobStatusDisputed {
		t.Errorf("published events: %v", coord.published)
	}
}

func TestSubmitValidation(t *testing.T) {
	coord := newFakeCoordinator()
	svc := NewService(newMemDisputes(), coord)
	actor := models.Actor{ID: uuid.New(), Role: models.RoleCustomer}

	if _, err := svc.Submit(context.Background(), uuid.New(), actor, "WEATHER", "reason"); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("bad category: got %v", err)
	}
	if _, err := svc.Submit(context.Background(), uuid.New(), actor, models.DisputeCategoryPricing, "  "); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("blank reason: got %v", err)
	}
}

func TestSubmitFromWrongStatus(t *testing.T) {
	coord := newFakeCoordinator()
	svc := NewService(newMemDisputes(), coord)
	customer := uuid.New()
	job := startedJob(customer, uuid.New())
	job.Status = models.JobStatusAssigned
	coord.add(job)

	_, err := svc.Submit(context.Background(), job.ID, models.Actor{ID: customer, Role: models.RoleCustomer},
		models.DisputeCategoryQuality, "not happy")
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestSubmitByStranger(t *testing.T) {
	coord := newFakeCoordinator()
	svc := NewService(newMemDisputes(), coord)
	job := startedJob(uuid.New(), uuid.New())
	coord.add(job)

	_, err := svc.Submit(context.Background(), job.ID, models.Actor{ID: uuid.New(), Role: models.RoleCustomer},
		models.DisputeCategoryQuality, "not my job even")
	if !errors.Is(err, jobs.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

// Dismissing a dispute releases the frozen funds: job goes to PAID and the
// settlement runs.
func TestResolveDismissRelease(t *testing.T) {
	coord := newFakeCoordinator()
	store := newMemDisputes()
	svc := NewService(store, coord)
	customer := uuid.New()
	worker := uuid.New()
	job := startedJob(customer, worker)
	coord.add(job)

	d, err := svc.Submit(context.Background(), job.ID, models.Actor{ID: customer, Role: models.RoleCustomer},
		models.DisputeCategoryQuality, "work incomplete")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	admin := uuid.New()
	resolved, rjob, err := svc.Resolve(context.Background(), d.ID, admin, models.DisputeDecisionDismissRelease, "photos show completed work")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.DisputeStatusDismissed {
		t.Errorf("dispute status: got %s, want DISMISSED", resolved.Status)
	}
	if rjob.Status != models.JobStatusPaid {
		t.Errorf("job status: got %s, want PAID", rjob.Status)
	}
	if len(coord.settled) != 1 || coord.settled[0] != job.ID {
		t.Errorf("settlement calls: %v", coord.settled)
	}
	if coord.lastNotes != "photos show completed work" {
		t.Errorf("resolution notes not passed through: %q", coord.lastNotes)
	}
}

// Upholding a dispute refunds the customer: job is cancelled and no
// settlement ever runs.
func TestResolveUpholdRefund(t *testing.T) {
	coord := newFakeCoordinator()
	store := newMemDisputes()
	svc := NewService(store, coord)
	customer := uuid.New()
	job := startedJob(customer, uuid.New())
	coord.add(job)

	d, _ := svc.Submit(context.Background(), job.ID, models.Actor{ID: customer, Role: models.RoleCustomer},
		models.DisputeCategoryIncomplete, "left halfway through")

	resolved, rjob, err := svc.Resolve(context.Background(), d.ID, uuid.New(), models.DisputeDecisionUpholdRefund, "worker confirmed leaving early")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.DisputeStatusResolved {
		t.Errorf("dispute status: got %s, want RESOLVED", resolved.Status)
	}
	if rjob.Status != models.JobStatusCancelled {
		t.Errorf("job status: got %s, want CANCELLED", rjob.Status)
	}
	if len(coord.settled) != 0 {
		t.Errorf("settlement ran for an upheld dispute")
	}
}

func TestResolveRequiresNotesAndValidDecision(t *testing.T) {
	svc := NewService(newMemDisputes(), newFakeCoordinator())

	if _, _, err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), models.DisputeDecisionUpholdRefund, ""); !errors.Is(err, ErrNotesRequired) {
		t.Errorf("blank notes: got %v", err)
	}
	if _, _, err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), "SPLIT_DIFFERENCE", "notes"); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("bad decision: got %v", err)
	}
}

func TestResolveTwice(t *testing.T) {
	coord := newFakeCoordinator()
	store := newMemDisputes()
	svc := NewService(store, coord)
	customer := uuid.New()
	job := startedJob(customer, uuid.New())
	coord.add(job)

	d, _ := svc.Submit(context.Background(), job.ID, models.Actor{ID: customer, Role: models.RoleCustomer},
		models.DisputeCategoryQuality, "bad job")
	if _, _, err := svc.Resolve(context.Background(), d.ID, uuid.New(), models.DisputeDecisionUpholdRefund, "refunding"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, _, err := svc.Resolve(context.Background(), d.ID, uuid.New(), models.DisputeDecisionDismissRelease, "changed my mind"); !errors.Is(err, ErrDisputeClosed) {
		t.Fatalf("second resolve: got %v, want ErrDisputeClosed", err)
	}
}

func TestIntervene(t *testing.T) {
	coord := newFakeCoordinator()
	svc := NewService(newMemDisputes(), coord)
	job := startedJob(uuid.New(), uuid.New())
	coord.add(job)
	admin := uuid.New()

	if _, err := svc.Intervene(context.Background(), job.ID, admin, models.AdminActionTerminate, ""); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("blank reason: got %v", err)
	}
	if _, err := svc.Intervene(context.Background(), job.ID, admin, "PAUSE", "because"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("bad action: got %v", err)
	}

	got, err := svc.Intervene(context.Background(), job.ID, admin, models.AdminActionTerminate, "customer unreachable for 3 days")
	if err != nil {
		t.Fatalf("Intervene: %v", err)
	}
	if got.Status != models.JobStatusCancelled {
		t.Errorf("job status: got %s, want CANCELLED", got.Status)
	}
	if coord.lastAction != "admin.terminate" || coord.lastNotes == "" {
		t.Errorf("audit action/notes: %q %q", coord.lastAction, coord.lastNotes)
	}
}

func TestInterveneForceComplete(t *testing.T) {
	coord := newFakeCoordinator()
	svc := NewService(newMemDisputes(), coord)
	job := startedJob(uuid.New(), uuid.New())
	coord.add(job)

	got, err := svc.Intervene(context.Background(), job.ID, uuid.New(), models.AdminActionForceComplete, "customer confirmed by phone")
	if err != nil {
		t.Fatalf("Intervene: %v", err)
	}
	if got.Status != models.JobStatusPaid {
		t.Errorf("job status: got %s, want PAID", got.Status)
	}
	if len(coord.settled) != 1 {
		t.Errorf("settlement calls: %d, want 1", len(coord.settled))
	}
}

// An intervention on a disputed job must also close the dispute; otherwise it
// sits in the admin queue forever, since no transition leads out of a terminal
// job status.
func TestInterveneClosesOpenDispute(t *testing.T) {
	coord := newFakeCoordinator()
	store := newMemDisputes()
	svc := NewService(store, coord)
	customer := uuid.New()
	job := startedJob(customer, uuid.New())
	coord.add(job)
	admin := uuid.New()

	d, err := svc.Submit(context.Background(), job.ID, models.Actor{ID: customer, Role: models.RoleCustomer},
		models.DisputeCategoryQuality, "work not finished")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := svc.Intervene(context.Background(), job.ID, admin, models.AdminActionTerminate, "parties unresponsive")
	if err != nil {
		t.Fatalf("Intervene: %v", err)
	}
	if got.Status != models.JobStatusCancelled {
		t.Errorf("job status: got %s, want CANCELLED", got.Status)
	}

	closed, err := svc.Get(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if closed.Status != models.DisputeStatusResolved {
		t.Errorf("dispute status: got %s, want RESOLVED", closed.Status)
	}
	if closed.Notes == nil || *closed.Notes != "parties unresponsive" {
		t.Errorf("dispute notes: %v", closed.Notes)
	}
	if open, _ := svc.ListOpen(context.Background()); len(open) != 0 {
		t.Errorf("open disputes after intervention: %d, want 0", len(open))
	}
	if _, _, err := svc.Resolve(context.Background(), d.ID, admin, models.DisputeDecisionUpholdRefund, "already handled"); !errors.Is(err, ErrDisputeClosed) {
		t.Errorf("resolve after intervention: got %v, want ErrDisputeClosed", err)
	}
}

func TestInterveneTerminalJob(t *testing.T) {
	coord := newFakeCoordinator()
	svc := NewService(newMemDisputes(), coord)
	job := startedJob(uuid.New(), uuid.New())
	job.Status = models.JobStatusPaid
	coord.add(job)

	_, err := svc.Intervene(context.Background(), job.ID, uuid.New(), models.AdminActionTerminate, "mistake")
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}
