package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/pricing"
)

// Store is the ledger persistence contract the service needs. *Repository
// implements it; tests substitute an in-memory version.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.WalletLedgerEntry) (bool, error)
	DerivedBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	DerivedBalanceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error)
	PendingWithdrawalTotalTx(ctx context.Context, tx pgx.Tx, workerID uuid.UUID) (int64, error)
	LockAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) error
	InsertWithdrawalTx(ctx context.Context, tx pgx.Tx, w *models.WithdrawalRequest) error
	ResolveWithdrawalTx(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID, status, reason string) (*models.WithdrawalRequest, error)
	ListEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.WalletLedgerEntry, error)
	ListPendingWithdrawals(ctx context.Context) ([]*models.WithdrawalRequest, error)
}

// AuditRecorder appends an audit entry inside the operation's transaction.
type AuditRecorder interface {
	RecordTx(ctx context.Context, tx pgx.Tx, e *models.AuditLogEntry) error
}

type Service interface {
	SettleJobTx(ctx context.Context, tx pgx.Tx, job *models.Job, split pricing.Settlement) error
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	RequestWithdrawal(ctx context.Context, workerID uuid.UUID, amountCents int64, bankDetails string) (*models.WithdrawalRequest, error)
	ResolveWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID, approve bool, reason string) (*models.WithdrawalRequest, error)
	ListEntries(ctx context.Context, accountID uuid.UUID) ([]*models.WalletLedgerEntry, error)
	ListPendingWithdrawals(ctx context.Context) ([]*models.WithdrawalRequest, error)
}

type service struct {
	store Store
	audit AuditRecorder
}

func NewService(store Store, audit AuditRecorder) Service {
	return &service{store: store, audit: audit}
}

var _ Service = (*service)(nil)

var errNoWorker = errors.New("job has no assigned worker to settle")

// SettleJobTx writes the worker CREDIT and the platform revenue entry for a
// paid job inside the caller's transaction. Replays are absorbed by the
// ledger's per-job uniqueness, so a job can never be double-credited.
func (s *service) SettleJobTx(ctx context.Context, tx pgx.Tx, job *models.Job, split pricing.Settlement) error {
	if job.WorkerID == nil {
		return errNoWorker
	}
	jobID := job.ID
	_, err := s.store.AppendTx(ctx, tx, &models.WalletLedgerEntry{
		AccountID:   *job.WorkerID,
		JobID:       &jobID,
		Direction:   models.LedgerDirectionCredit,
		EntryType:   models.LedgerEntryJobEarning,
		AmountCents: split.WorkerPayoutCents,
	})
	if err != nil {
		return err
	}
	_, err = s.store.AppendTx(ctx, tx, &models.WalletLedgerEntry{
		AccountID:   models.SystemPlatformAccountID,
		JobID:       &jobID,
		Direction:   models.LedgerDirectionCredit,
		EntryType:   models.LedgerEntryPlatformRevenue,
		AmountCents: split.PlatformRetainedCents,
	})
	return err
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.store.DerivedBalance(ctx, accountID)
}

// RequestWithdrawal checks the available balance and creates a PENDING
// request in one transaction. The account row lock serializes concurrent
// requests so two withdrawals cannot both pass the same balance check.
func (s *service) RequestWithdrawal(ctx context.Context, workerID uuid.UUID, amountCents int64, bankDetails string) (*models.WithdrawalRequest, error) {
	if amountCents <= 0 {
		return nil, ErrInsufficientBalance
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.LockAccountTx(ctx, tx, workerID); err != nil {
		return nil, err
	}
	balance, err := s.store.DerivedBalanceTx(ctx, tx, workerID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.PendingWithdrawalTotalTx(ctx, tx, workerID)
	if err != nil {
		return nil, err
	}
	if amountCents > balance-pending {
		return nil, ErrInsufficientBalance
	}

	w := &models.WithdrawalRequest{WorkerID: workerID, AmountCents: amountCents, BankDetails: bankDetails}
	if err := s.store.InsertWithdrawalTx(ctx, tx, w); err != nil {
		return nil, err
	}
	if err := s.audit.RecordTx(ctx, tx, &models.AuditLogEntry{
		ActorID:    workerID,
		Action:     "withdrawal.request",
		EntityType: "withdrawal",
		EntityID:   w.ID,
		AfterState: models.WithdrawalStatusPending,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// ResolveWithdrawal processes or rejects a pending request. Processing
// appends the DEBIT entry in the same transaction as the status change.
func (s *service) ResolveWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID, approve bool, reason string) (*models.WithdrawalRequest, error) {
	status := models.WithdrawalStatusRejected
	if approve {
		status = models.WithdrawalStatusProcessed
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	w, err := s.store.ResolveWithdrawalTx(ctx, tx, withdrawalID, adminID, status, reason)
	if err != nil {
		return nil, err
	}
	if approve {
		wid := w.ID
		if _, err := s.store.AppendTx(ctx, tx, &models.WalletLedgerEntry{
			AccountID:    w.WorkerID,
			WithdrawalID: &wid,
			Direction:    models.LedgerDirectionDebit,
			EntryType:    models.LedgerEntryWithdrawal,
			AmountCents:  w.AmountCents,
		}); err != nil {
			return nil, err
		}
	}
	if err := s.audit.RecordTx(ctx, tx, &models.AuditLogEntry{
		ActorID:     adminID,
		Action:      "withdrawal.resolve",
		EntityType:  "withdrawal",
		EntityID:    w.ID,
		BeforeState: models.WithdrawalStatusPending,
		AfterState:  status,
		Notes:       reason,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *service) ListEntries(ctx context.Context, accountID uuid.UUID) ([]*models.WalletLedgerEntry, error) {
	return s.store.ListEntriesByAccount(ctx, accountID)
}

func (s *service) ListPendingWithdrawals(ctx context.Context) ([]*models.WithdrawalRequest, error) {
	return s.store.ListPendingWithdrawals(ctx)
}
