package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/fieldserve/backend/internal/middleware"
	"github.com/fieldserve/backend/internal/models"
)

func authedRequest(method, target string, body string, actor *models.Actor) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), actor))
	}
	return req
}

func TestHandlerCreateJob(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)
	customer := &models.Actor{ID: uuid.New(), Role: models.RoleCustomer}
	body := `{"category_id":"plumbing","base_price_cents":50000,"address":"12 Rose St"}`

	rec := httptest.NewRecorder()
	h.CreateJob(rec, authedRequest(http.MethodPost, "/api/v1/jobs", body, customer))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var job models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if job.TotalCents != 59049 {
		t.Errorf("total: got %d, want 59049", job.TotalCents)
	}
}

func TestHandlerCreateJobAuth(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)
	body := `{"category_id":"plumbing","base_price_cents":50000,"address":"12 Rose St"}`

	rec := httptest.NewRecorder()
	h.CreateJob(rec, authedRequest(http.MethodPost, "/api/v1/jobs", body, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no actor: got %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	worker := &models.Actor{ID: uuid.New(), Role: models.RoleWorker}
	h.CreateJob(rec, authedRequest(http.MethodPost, "/api/v1/jobs", body, worker))
	if rec.Code != http.StatusForbidden {
		t.Errorf("worker booking: got %d, want 403", rec.Code)
	}
}

func TestHandlerCreateJobValidation(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)
	customer := &models.Actor{ID: uuid.New(), Role: models.RoleCustomer}

	for _, body := range []string{
		`not json`,
		`{"base_price_cents":50000,"address":"x"}`,
		`{"category_id":"plumbing","base_price_cents":0,"address":"x"}`,
		`{"category_id":"plumbing","base_price_cents":50000}`,
	} {
		rec := httptest.NewRecorder()
		h.CreateJob(rec, authedRequest(http.MethodPost, "/api/v1/jobs", body, customer))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: got %d, want 400", body, rec.Code)
		}
	}
}

func TestHandlerClaimConflict(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)
	job := f.createJob(t, uuid.New())
	if _, err := f.svc.OpenMatching(context.Background(), job.ID); err != nil {
		t.Fatalf("OpenMatching: %v", err)
	}

	claim := func(actor *models.Actor) *httptest.ResponseRecorder {
		req := authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/claim", "", actor)
		req.SetPathValue("id", job.ID.String())
		rec := httptest.NewRecorder()
		h.Claim(rec, req)
		return rec
	}

	if rec := claim(&models.Actor{ID: uuid.New(), Role: models.RoleWorker}); rec.Code != http.StatusOK {
		t.Fatalf("first claim: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec := claim(&models.Actor{ID: uuid.New(), Role: models.RoleWorker}); rec.Code != http.StatusConflict {
		t.Errorf("second claim: got %d, want 409", rec.Code)
	}
	if rec := claim(&models.Actor{ID: uuid.New(), Role: models.RoleCustomer}); rec.Code != http.StatusForbidden {
		t.Errorf("customer claim: got %d, want 403", rec.Code)
	}
}

func TestHandlerGetJobVisibility(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)
	customer := uuid.New()
	job := f.createJob(t, customer)

	get := func(actor *models.Actor) *httptest.ResponseRecorder {
		req := authedRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "", actor)
		req.SetPathValue("id", job.ID.String())
		rec := httptest.NewRecorder()
		h.GetJob(rec, req)
		return rec
	}

	if rec := get(&models.Actor{ID: customer, Role: models.RoleCustomer}); rec.Code != http.StatusOK {
		t.Errorf("owner: got %d, want 200", rec.Code)
	}
	if rec := get(&models.Actor{ID: uuid.New(), Role: models.RoleCustomer}); rec.Code != http.StatusForbidden {
		t.Errorf("stranger: got %d, want 403", rec.Code)
	}
	if rec := get(&models.Actor{ID: uuid.New(), Role: models.RoleAdmin}); rec.Code != http.StatusOK {
		t.Errorf("admin: got %d, want 200", rec.Code)
	}
}

func TestHandlerGetJobNotFound(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)
	id := uuid.NewString()
	req := authedRequest(http.MethodGet, "/api/v1/jobs/"+id, "", &models.Actor{ID: uuid.New(), Role: models.RoleAdmin})
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

func TestHandlerVerifyStartBadCode(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, nil)
	ctx := context.Background()
	customer := uuid.New()
	worker := uuid.New()
	job := f.createJob(t, customer)
	f.svc.OpenMatching(ctx, job.ID)
	f.svc.Claim(ctx, job.ID, worker)
	f.svc.BeginTransit(ctx, job.ID, worker)
	f.svc.IssueStartCode(ctx, job.ID, customer)

	req := authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/start",
		`{"code":"000000"}`, &models.Actor{ID: worker, Role: models.RoleWorker})
	req.SetPathValue("id", job.ID.String())
	rec := httptest.NewRecorder()
	h.VerifyStart(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("got %d, want 422", rec.Code)
	}
}
