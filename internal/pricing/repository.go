package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldserve/backend/internal/models"
)

// PromotionRepository persists promotion codes. Rows referenced by settled
// jobs are never mutated beyond their usage counter.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

func (r *PromotionRepository) Create(ctx context.Context, p *models.Promotion) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO promotions (id, code, percent, max_discount_cents, expires_at, max_uses, usage_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING created_at
	`, p.ID, p.Code, p.Percent, p.MaxDiscountCents, p.ExpiresAt, p.MaxUses).Scan(&p.CreatedAt)
}

func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var p models.Promotion
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, percent, max_discount_cents, expires_at, max_uses, usage_count, created_at
		FROM promotions WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.Percent, &p.MaxDiscountCents, &p.ExpiresAt, &p.MaxUses, &p.UsageCount, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ConsumeTx atomically takes one use of the code inside the caller's
// transaction. The conditional UPDATE is what keeps two concurrent bookings
// from both applying the last remaining use.
func (r *PromotionRepository) ConsumeTx(ctx context.Context, tx pgx.Tx, code string) (*models.Promotion, error) {
	var p models.Promotion
	err := tx.QueryRow(ctx, `
		UPDATE promotions SET usage_count = usage_count + 1
		WHERE code = $1 AND expires_at > now()
			AND (max_uses IS NULL OR usage_count < max_uses)
		RETURNING id, code, percent, max_discount_cents, expires_at, max_uses, usage_count, created_at
	`, code).Scan(&p.ID, &p.Code, &p.Percent, &p.MaxDiscountCents, &p.ExpiresAt, &p.MaxUses, &p.UsageCount, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidPromotion
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
