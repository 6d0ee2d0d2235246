package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/backend/internal/models"
)

const jobColumns = `id, customer_id, worker_id, category_id, sub_service_type_id, description, status,
	address, latitude, longitude, base_price_cents, tax_cents, platform_fee_cents, discount_cents,
	total_cents, promotion_id, invoice_items, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.CustomerID, &j.WorkerID, &j.CategoryID, &j.SubServiceTypeID, &j.Description,
		&j.Status, &j.Address, &j.Latitude, &j.Longitude, &j.BasePriceCents, &j.TaxCents,
		&j.PlatformFeeCents, &j.DiscountCents, &j.TotalCents, &j.PromotionID, &j.InvoiceItems,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateTx inserts a new REQUESTED job with its booking quote inside the
// caller's transaction (the quote's promo consumption shares it).
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO jobs (id, customer_id, category_id, sub_service_type_id, description, status,
			address, latitude, longitude, base_price_cents, tax_cents, platform_fee_cents,
			discount_cents, total_cents, promotion_id)
		VALUES ($1, $2, $3, $4, $5, 'REQUESTED', $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, j.ID, j.CustomerID, j.CategoryID, j.SubServiceTypeID, j.Description, j.Address, j.Latitude,
		j.Longitude, j.BasePriceCents, j.TaxCents, j.PlatformFeeCents, j.DiscountCents, j.TotalCents,
		j.PromotionID).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
}

// GetForUpdateTx re-reads the job's current persisted state under a row lock,
// serializing concurrent transition attempts for the same job.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, error) {
	return scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, jobID))
}

// ClaimTx is the claim coordinator's single conditional write: bind the
// worker and move to ASSIGNED only if the job is still open and unclaimed.
// Never read-then-write; the WHERE clause is the whole race arbiter. The
// pre-claim status is returned for the audit entry.
func (r *Repository) ClaimTx(ctx context.Context, tx pgx.Tx, jobID, workerID uuid.UUID) (*models.Job, string, error) {
	var j models.Job
	var prevStatus string
	err := tx.QueryRow(ctx, `
		UPDATE jobs SET worker_id = $2, status = 'ASSIGNED', updated_at = now()
		FROM (SELECT id, status AS prev_status FROM jobs WHERE id = $1 FOR UPDATE) prev
		WHERE jobs.id = prev.id AND jobs.worker_id IS NULL AND jobs.status IN ('REQUESTED', 'MATCHING')
		RETURNING jobs.id, jobs.customer_id, jobs.worker_id, jobs.category_id, jobs.sub_service_type_id,
			jobs.description, jobs.status, jobs.address, jobs.latitude, jobs.longitude,
			jobs.base_price_cents, jobs.tax_cents, jobs.platform_fee_cents, jobs.discount_cents,
			jobs.total_cents, jobs.promotion_id, jobs.invoice_items, jobs.created_at, jobs.updated_at,
			prev.prev_status
	`, jobID, workerID).Scan(&j.ID, &j.CustomerID, &j.WorkerID, &j.CategoryID, &j.SubServiceTypeID,
		&j.Description, &j.Status, &j.Address, &j.Latitude, &j.Longitude, &j.BasePriceCents, &j.TaxCents,
		&j.PlatformFeeCents, &j.DiscountCents, &j.TotalCents, &j.PromotionID, &j.InvoiceItems,
		&j.CreatedAt, &j.UpdatedAt, &prevStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race, or the job does not exist at all.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
			return nil, "", err
		}
		if !exists {
			return nil, "", pgx.ErrNoRows
		}
		return nil, "", ErrAlreadyClaimed
	}
	if err != nil {
		return nil, "", err
	}
	return &j, prevStatus, nil
}

// UpdateStatusTx writes the new status and bumps updated_at, which doubles as
// "time entered current state".
func (r *Repository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`, jobID, status)
	return err
}

// SetInvoiceTx stores the worker's itemization. The quoted totals are not
// touched: itemization is informational, never a re-price.
func (r *Repository) SetInvoiceTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, items json.RawMessage) error {
	_, err := tx.Exec(ctx, `UPDATE jobs SET invoice_items = $2, updated_at = now() WHERE id = $1`, jobID, items)
	return err
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
}

func (r *Repository) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE worker_id = $1 ORDER BY created_at DESC`, workerID)
}

// ListOpen returns unclaimed jobs visible to workers, optionally filtered by
// category.
func (r *Repository) ListOpen(ctx context.Context, categoryID string) ([]*models.Job, error) {
	if categoryID != "" {
		return r.list(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE worker_id IS NULL AND status IN ('REQUESTED', 'MATCHING') AND category_id = $1
			ORDER BY created_at ASC`, categoryID)
	}
	return r.list(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE worker_id IS NULL AND status IN ('REQUESTED', 'MATCHING')
		ORDER BY created_at ASC`)
}

// ListStale surfaces assigned jobs without forward progress past the window.
// Monitoring only: nothing here cancels them.
func (r *Repository) ListStale(ctx context.Context, window time.Duration) ([]*models.Job, error) {
	return r.list(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('ASSIGNED', 'IN_TRANSIT') AND updated_at < now() - $1::interval
		ORDER BY updated_at ASC`, window)
}
