package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store is the code persistence contract, split out so the jobs service can
// consume a code inside its own transaction.
type Store interface {
	Issue(ctx context.Context, customerID uuid.UUID, purpose, code string, ttl time.Duration) error
	ConsumeTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, purpose, code string) error
}

type Service interface {
	IssueStartCode(ctx context.Context, customerID uuid.UUID) (string, error)
	ConsumeStartCodeTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, code string) error
}

type service struct {
	store Store
	ttl   time.Duration
}

// NewService creates the OTP handshake service with the configured code TTL.
func NewService(store Store, ttl time.Duration) Service {
	return &service{store: store, ttl: ttl}
}

var _ Service = (*service)(nil)

// IssueStartCode generates a fresh single-use 6-digit code for the JOB_START
// handshake. Re-issuing invalidates the previous code.
func (s *service) IssueStartCode(ctx context.Context, customerID uuid.UUID) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.store.Issue(ctx, customerID, PurposeJobStart, code, s.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// ConsumeStartCodeTx verifies and consumes the customer's active start code
// within the caller's transaction, so consumption commits or rolls back with
// the IN_TRANSIT→STARTED transition.
func (s *service) ConsumeStartCodeTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, code string) error {
	return s.store.ConsumeTx(ctx, tx, customerID, PurposeJobStart, code)
}

// generateCode returns a uniformly random 6-digit decimal code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
