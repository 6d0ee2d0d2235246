package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/backend/internal/middleware"
	"github.com/fieldserve/backend/internal/models"
)

type stubJobs struct{ stale []*models.Job }

func (s *stubJobs) ListStale(_ context.Context) ([]*models.Job, error) { return s.stale, nil }

type stubAudit struct{ entries []*models.AuditLogEntry }

func (s *stubAudit) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditLogEntry, error) {
	var out []*models.AuditLogEntry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubAudit) Record(_ context.Context, e *models.AuditLogEntry) error {
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

type stubPromos struct{ created []*models.Promotion }

func (s *stubPromos) Create(_ context.Context, p *models.Promotion) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	s.created = append(s.created, p)
	return nil
}

func adminRequest(method, target, body string, admin uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	actor := &models.Actor{ID: admin, Role: models.RoleAdmin}
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

func TestCreatePromotion(t *testing.T) {
	audit := &stubAudit{}
	promos := &stubPromos{}
	h := NewHandler(&stubJobs{}, audit, promos, nil)
	admin := uuid.New()

	body := `{"code":"SPRING15","percent":15,"expires_at":"2031-01-01T00:00:00Z"}`
	rec := httptest.NewRecorder()
	h.CreatePromotion(rec, adminRequest(http.MethodPost, "/api/v1/admin/promotions", body, admin))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var p models.Promotion
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if p.Code != "SPRING15" || p.Percent != 15 {
		t.Errorf("created promotion: %+v", p)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries: got %d, want 1", len(audit.entries))
	}
	e := audit.entries[0]
	if e.Action != "promotion.create" || e.ActorID != admin || e.EntityID != p.ID {
		t.Errorf("audit entry: %+v", e)
	}
}

func TestCreatePromotionValidation(t *testing.T) {
	audit := &stubAudit{}
	h := NewHandler(&stubJobs{}, audit, &stubPromos{}, nil)
	admin := uuid.New()

	for _, body := range []string{
		`not json`,
		`{"percent":15,"expires_at":"2031-01-01T00:00:00Z"}`,
		`{"code":"X","percent":0,"expires_at":"2031-01-01T00:00:00Z"}`,
		`{"code":"X","percent":120,"expires_at":"2031-01-01T00:00:00Z"}`,
		`{"code":"X","percent":15,"expires_at":"2001-01-01T00:00:00Z"}`,
	} {
		rec := httptest.NewRecorder()
		h.CreatePromotion(rec, adminRequest(http.MethodPost, "/api/v1/admin/promotions", body, admin))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: got %d, want 400", body, rec.Code)
		}
	}
	if len(audit.entries) != 0 {
		t.Errorf("audit entries after rejected requests: got %d, want 0", len(audit.entries))
	}
}

func TestListStaleJobs(t *testing.T) {
	jobs := &stubJobs{stale: []*models.Job{{ID: uuid.New(), Status: models.JobStatusAssigned}}}
	h := NewHandler(jobs, &stubAudit{}, &stubPromos{}, nil)

	rec := httptest.NewRecorder()
	h.ListStaleJobs(rec, adminRequest(http.MethodGet, "/api/v1/admin/jobs/stale", "", uuid.New()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var list []*models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("stale jobs: got %d, want 1", len(list))
	}
}
