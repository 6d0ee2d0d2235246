// Package dashboard serves the admin operations surface: stale job
// monitoring, audit trails, and promotion management. Dispute resolution and
// withdrawal processing live with their own features.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/backend/internal/middleware"
	"github.com/fieldserve/backend/internal/models"
)

// JobsOverview is the slice of the jobs service the dashboard needs.
type JobsOverview interface {
	ListStale(ctx context.Context) ([]*models.Job, error)
}

// AuditTrail reads and appends to the immutable audit log.
type AuditTrail interface {
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*models.AuditLogEntry, error)
	Record(ctx context.Context, e *models.AuditLogEntry) error
}

// PromotionCreator persists new promotion codes.
type PromotionCreator interface {
	Create(ctx context.Context, p *models.Promotion) error
}

type Handler struct {
	jobs   JobsOverview
	audit  AuditTrail
	promos PromotionCreator
	log    *slog.Logger
}

func NewHandler(jobs JobsOverview, audit AuditTrail, promos PromotionCreator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{jobs: jobs, audit: audit, promos: promos, log: log}
}

// ListStaleJobs handles GET /api/v1/admin/jobs/stale.
func (h *Handler) ListStaleJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.ListStale(r.Context())
	if err != nil {
		h.log.Error("list stale jobs failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

// AuditTrailForJob handles GET /api/v1/admin/jobs/{id}/audit.
func (h *Handler) AuditTrailForJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	entries, err := h.audit.ListByEntity(r.Context(), "job", jobID)
	if err != nil {
		h.log.Error("audit trail failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.AuditLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type createPromotionRequest struct {
	Code             string    `json:"code"`
	Percent          int       `json:"percent"`
	MaxDiscountCents *int64    `json:"max_discount_cents"`
	ExpiresAt        time.Time `json:"expires_at"`
	MaxUses          *int      `json:"max_uses"`
}

// CreatePromotion handles POST /api/v1/admin/promotions.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, `{"error":"code is required"}`, http.StatusBadRequest)
		return
	}
	if req.Percent <= 0 || req.Percent > 100 {
		http.Error(w, `{"error":"percent must be in 1..100"}`, http.StatusBadRequest)
		return
	}
	if req.ExpiresAt.Before(time.Now()) {
		http.Error(w, `{"error":"expires_at must be in the future"}`, http.StatusBadRequest)
		return
	}
	p := &models.Promotion{
		Code:             req.Code,
		Percent:          req.Percent,
		MaxDiscountCents: req.MaxDiscountCents,
		ExpiresAt:        req.ExpiresAt,
		MaxUses:          req.MaxUses,
	}
	if err := h.promos.Create(r.Context(), p); err != nil {
		h.log.Error("create promotion failed", "error", err)
		http.Error(w, `{"error":"failed to create promotion"}`, http.StatusInternalServerError)
		return
	}
	if err := h.audit.Record(r.Context(), &models.AuditLogEntry{
		ActorID:    actor.ID,
		Action:     "promotion.create",
		EntityType: "promotion",
		EntityID:   p.ID,
		Notes:      p.Code,
	}); err != nil {
		h.log.Error("audit promotion creation failed", "promotion_id", p.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
