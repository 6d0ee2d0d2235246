package dispute

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/backend/internal/models"
)

const disputeColumns = `id, job_id, reporter_id, category, reason, status, resolved_by, decision, notes, created_at, resolved_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.JobID, &d.ReporterID, &d.Category, &d.Reason, &d.Status,
		&d.ResolvedBy, &d.Decision, &d.Notes, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateTx inserts an OPEN dispute inside the caller's transaction, so the
// dispute row commits together with the job's move to DISPUTED.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = models.DisputeStatusOpen
	return tx.QueryRow(ctx, `
		INSERT INTO disputes (id, job_id, reporter_id, category, reason, status)
		VALUES ($1, $2, $3, $4, $5, 'OPEN')
		RETURNING created_at
	`, d.ID, d.JobID, d.ReporterID, d.Category, d.Reason).Scan(&d.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
}

// GetForUpdateTx locks the dispute row so concurrent resolutions serialize.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
}

// ResolveTx closes an OPEN dispute with the admin's decision. The status
// condition in the WHERE clause makes double resolution impossible.
func (r *Repository) ResolveTx(ctx context.Context, tx pgx.Tx, id, adminID uuid.UUID, status, decision, notes string) (*models.Dispute, error) {
	d, err := scanDispute(tx.QueryRow(ctx, `
		UPDATE disputes
		SET status = $2, resolved_by = $3, decision = $4, notes = $5, resolved_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING `+disputeColumns, id, status, adminID, decision, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, pgx.ErrNoRows
		}
		return nil, ErrDisputeClosed
	}
	return d, err
}

// CloseOpenByJobTx settles whatever OPEN dispute the job carries, if any.
// Used by admin interventions so a forced terminal job never strands an open
// dispute.
func (r *Repository) CloseOpenByJobTx(ctx context.Context, tx pgx.Tx, jobID, adminID uuid.UUID, status, decision, notes string) error {
	_, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = $2, resolved_by = $3, decision = $4, notes = $5, resolved_at = now()
		WHERE job_id = $1 AND status = 'OPEN'
	`, jobID, status, adminID, decision, notes)
	return err
}

// ListOpen returns all open disputes, oldest first, for the admin queue.
func (r *Repository) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE status = 'OPEN' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
