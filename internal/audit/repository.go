package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/backend/internal/models"
)

// Repository appends to the immutable audit log. There is intentionally no
// update or delete.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordTx inserts an audit entry inside the caller's transaction so the
// entry commits or rolls back with the state change it describes.
func (r *Repository) RecordTx(ctx context.Context, tx pgx.Tx, e *models.AuditLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, before_state, after_state, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, e.BeforeState, e.AfterState, e.Notes).Scan(&e.CreatedAt)
}

// Record inserts an audit entry outside any transaction, for operations whose
// state change is a single statement.
func (r *Repository) Record(ctx context.Context, e *models.AuditLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, before_state, after_state, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, e.BeforeState, e.AfterState, e.Notes).Scan(&e.CreatedAt)
}

// ListByEntity returns the audit trail for one entity, newest first.
func (r *Repository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, action, entity_type, entity_id, before_state, after_state, notes, created_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.BeforeState, &e.AfterState, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
