package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/backend/internal/models"
)

// ErrInsufficientBalance is returned when a withdrawal exceeds the worker's
// available (derived minus pending) balance.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// ErrWithdrawalNotPending is returned when resolving a withdrawal that was
// already processed or rejected.
var ErrWithdrawalNotPending = errors.New("withdrawal is not pending")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// AppendTx inserts a ledger entry inside the caller's transaction. The unique
// (job_id, entry_type) index makes settlement writes idempotent: a replayed
// settlement inserts nothing and reports inserted=false.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, e *models.WalletLedgerEntry) (bool, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	result, err := tx.Exec(ctx, `
		INSERT INTO wallet_ledger (id, account_id, job_id, withdrawal_id, direction, entry_type, amount_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id, entry_type) WHERE job_id IS NOT NULL DO NOTHING
	`, e.ID, e.AccountID, e.JobID, e.WithdrawalID, e.Direction, e.EntryType, e.AmountCents)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// DerivedBalance sums the account's ledger. Balance is never stored as
// mutable truth, so concurrent settlements and withdrawals cannot drift.
func (r *Repository) DerivedBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return r.derivedBalance(ctx, r.pool, accountID)
}

// DerivedBalanceTx is DerivedBalance within the caller's transaction.
func (r *Repository) DerivedBalanceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	return r.derivedBalance(ctx, tx, accountID)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) derivedBalance(ctx context.Context, q queryRower, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE direction WHEN 'CREDIT' THEN amount_cents ELSE -amount_cents END), 0)
		FROM wallet_ledger WHERE account_id = $1
	`, accountID).Scan(&balance)
	return balance, err
}

// PendingWithdrawalTotalTx sums PENDING withdrawal amounts for the worker.
func (r *Repository) PendingWithdrawalTotalTx(ctx context.Context, tx pgx.Tx, workerID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM withdrawal_requests
		WHERE worker_id = $1 AND status = 'PENDING'
	`, workerID).Scan(&total)
	return total, err
}

// LockAccountTx takes the account row lock so concurrent withdrawal requests
// for the same worker serialize their balance checks.
func (r *Repository) LockAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
	return err
}

// InsertWithdrawalTx creates a PENDING withdrawal request.
func (r *Repository) InsertWithdrawalTx(ctx context.Context, tx pgx.Tx, w *models.WithdrawalRequest) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.Status = models.WithdrawalStatusPending
	return tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (id, worker_id, amount_cents, bank_details, status)
		VALUES ($1, $2, $3, $4, 'PENDING')
		RETURNING created_at
	`, w.ID, w.WorkerID, w.AmountCents, w.BankDetails).Scan(&w.CreatedAt)
}

// ResolveWithdrawalTx conditionally moves a PENDING withdrawal to its final
// status and returns the resolved row. RowsAffected guards against double
// processing.
func (r *Repository) ResolveWithdrawalTx(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID, status, reason string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := tx.QueryRow(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, resolved_by = $3, reason = $4, resolved_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING id, worker_id, amount_cents, bank_details, status, resolved_by, reason, created_at, resolved_at
	`, id, status, adminID, reason).Scan(&w.ID, &w.WorkerID, &w.AmountCents, &w.BankDetails, &w.Status, &w.ResolvedBy, &w.Reason, &w.CreatedAt, &w.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWithdrawalNotPending
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListEntriesByAccount returns the account's ledger, newest first.
func (r *Repository) ListEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.WalletLedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, job_id, withdrawal_id, direction, entry_type, amount_cents, created_at
		FROM wallet_ledger WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletLedgerEntry
	for rows.Next() {
		var e models.WalletLedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.JobID, &e.WithdrawalID, &e.Direction, &e.EntryType, &e.AmountCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// ListPendingWithdrawals returns all PENDING requests for the admin surface.
func (r *Repository) ListPendingWithdrawals(ctx context.Context) ([]*models.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, worker_id, amount_cents, bank_details, status, resolved_by, reason, created_at, resolved_at
		FROM withdrawal_requests WHERE status = 'PENDING' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		if err := rows.Scan(&w.ID, &w.WorkerID, &w.AmountCents, &w.BankDetails, &w.Status, &w.ResolvedBy, &w.Reason, &w.CreatedAt, &w.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, &w)
	}
	return list, rows.Err()
}
