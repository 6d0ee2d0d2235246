package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fieldserve/backend/internal/models"
)

type memAccounts struct {
	byEmail map[string]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byEmail: make(map[string]*models.Account)}
}

func (m *memAccounts) Create(_ context.Context, email, passwordHash, displayName, role string) (*models.Account, error) {
	if _, exists := m.byEmail[email]; exists {
		return nil, &pgconn.PgError{Code: "23505"}
	}
	a := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: passwordHash,
	}
	m.byEmail[email] = a
	return a, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return m.byEmail[email], nil
}

func TestRegisterRoles(t *testing.T) {
	svc := NewService(newMemAccounts(), "testsecret")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", "pw", "A", models.RoleCustomer); err != nil {
		t.Errorf("customer register: %v", err)
	}
	if _, err := svc.Register(ctx, "b@example.com", "pw", "B", models.RoleWorker); err != nil {
		t.Errorf("worker register: %v", err)
	}
	if _, err := svc.Register(ctx, "c@example.com", "pw", "C", models.RoleAdmin); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("admin self-register: got %v, want ErrInvalidRole", err)
	}
	if _, err := svc.Register(ctx, "a@example.com", "pw", "A2", models.RoleCustomer); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email: got %v, want ErrDuplicateEmail", err)
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	svc := NewService(newMemAccounts(), "testsecret")
	ctx := context.Background()

	acc, err := svc.Register(ctx, "worker@example.com", "hunter2", "W", models.RoleWorker)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "worker@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v", err)
	}

	token, err := svc.Login(ctx, "worker@example.com", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	id, role, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id != acc.ID || role != models.RoleWorker {
		t.Errorf("claims: got %s/%s, want %s/%s", id, role, acc.ID, models.RoleWorker)
	}

	other := NewService(newMemAccounts(), "differentsecret")
	if _, _, err := other.ValidateToken(ctx, token); err == nil {
		t.Error("token signed with another secret validated")
	}
}
