package otp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrInvalidCode is returned when no active code matches.
	ErrInvalidCode = errors.New("invalid security code")
	// ErrCodeExpired is returned when the matching code exists but its window
	// has passed; the customer must re-issue.
	ErrCodeExpired = errors.New("security code expired")
)

// PurposeJobStart scopes codes to the on-site start handshake.
const PurposeJobStart = "JOB_START"

// Repository stores one-time codes hashed at rest.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Issue invalidates any previous active code for the customer and purpose,
// then stores a new one. Both steps run in one transaction so there is never
// more than one active code.
func (r *Repository) Issue(ctx context.Context, customerID uuid.UUID, purpose, code string, ttl time.Duration) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE otp_codes SET consumed_at = now()
		WHERE customer_id = $1 AND purpose = $2 AND consumed_at IS NULL
	`, customerID, purpose)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO otp_codes (id, customer_id, purpose, code_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), customerID, purpose, hashCode(code), time.Now().Add(ttl))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConsumeTx marks the customer's active matching code consumed inside the
// caller's transaction. The conditional UPDATE is the single atomic step that
// prevents replay: a consumed or expired code never matches again.
func (r *Repository) ConsumeTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, purpose, code string) error {
	result, err := tx.Exec(ctx, `
		UPDATE otp_codes SET consumed_at = now()
		WHERE customer_id = $1 AND purpose = $2 AND code_hash = $3
			AND consumed_at IS NULL AND expires_at > now()
	`, customerID, purpose, hashCode(code))
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Distinguish an expired code from a wrong one for the caller's message.
	var expired bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM otp_codes
			WHERE customer_id = $1 AND purpose = $2 AND code_hash = $3
				AND consumed_at IS NULL AND expires_at <= now()
		)
	`, customerID, purpose, hashCode(code)).Scan(&expired)
	if err != nil {
		return err
	}
	if expired {
		return ErrCodeExpired
	}
	return ErrInvalidCode
}
