package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/middleware"
	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/otp"
	"github.com/fieldserve/backend/internal/pricing"
)

// Handler serves the job lifecycle endpoints under /api/v1/jobs.
type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type createJobRequest struct {
	CategoryID       string  `json:"category_id"`
	SubServiceTypeID *string `json:"sub_service_type_id"`
	Description      string  `json:"description"`
	BasePriceCents   int64   `json:"base_price_cents"`
	Address          string  `json:"address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	PromoCode        string  `json:"promo_code"`
}

// CreateJob handles POST /api/v1/jobs.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if actor.Role != models.RoleCustomer {
		http.Error(w, `{"error":"only customers can book jobs"}`, http.StatusForbidden)
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.CategoryID == "" {
		http.Error(w, `{"error":"category_id is required"}`, http.StatusBadRequest)
		return
	}
	if req.BasePriceCents <= 0 {
		http.Error(w, `{"error":"base_price_cents must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.Address == "" {
		http.Error(w, `{"error":"address is required"}`, http.StatusBadRequest)
		return
	}

	job, err := h.svc.CreateJob(r.Context(), actor.ID, CreateJobInput{
		CategoryID:       req.CategoryID,
		SubServiceTypeID: req.SubServiceTypeID,
		Description:      req.Description,
		BasePriceCents:   req.BasePriceCents,
		Address:          req.Address,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		PromoCode:        req.PromoCode,
	})
	if err != nil {
		h.writeServiceError(w, err, "create job")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs, scoped to the caller's side of the
// marketplace.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var (
		list []*models.Job
		err  error
	)
	switch actor.Role {
	case models.RoleWorker:
		list, err = h.svc.ListByWorker(r.Context(), actor.ID)
	default:
		list, err = h.svc.ListByCustomer(r.Context(), actor.ID)
	}
	if err != nil {
		h.writeServiceError(w, err, "list jobs")
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ListOpen handles GET /api/v1/jobs/open, the worker-facing feed of claimable
// jobs, optionally filtered by ?category=.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if actor.Role == models.RoleCustomer {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	list, err := h.svc.ListOpen(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.writeServiceError(w, err, "list open jobs")
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, "get job")
		return
	}
	if !canView(actor, job) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Claim handles POST /api/v1/jobs/{id}/claim. Losers of the race get 409.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	if actor.Role != models.RoleWorker {
		http.Error(w, `{"error":"only workers can claim jobs"}`, http.StatusForbidden)
		return
	}
	job, err := h.svc.Claim(r.Context(), jobID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err, "claim job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// BeginTransit handles POST /api/v1/jobs/{id}/transit.
func (h *Handler) BeginTransit(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.BeginTransit(r.Context(), jobID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err, "begin transit")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// IssueStartCode handles POST /api/v1/jobs/{id}/start-code. The customer
// fetches the code out of band and reads it to the worker on arrival.
func (h *Handler) IssueStartCode(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	code, err := h.svc.IssueStartCode(r.Context(), jobID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err, "issue start code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

type verifyStartRequest struct {
	Code string `json:"code"`
}

// VerifyStart handles POST /api/v1/jobs/{id}/start, the worker side of the
// arrival handshake.
func (h *Handler) VerifyStart(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	var req verifyStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, `{"error":"code is required"}`, http.StatusBadRequest)
		return
	}
	job, err := h.svc.VerifyAndStart(r.Context(), jobID, actor.ID, req.Code)
	if err != nil {
		h.writeServiceError(w, err, "verify start")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type finalizeInvoiceRequest struct {
	Items json.RawMessage `json:"items"`
}

// FinalizeInvoice handles POST /api/v1/jobs/{id}/invoice.
func (h *Handler) FinalizeInvoice(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	var req finalizeInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	job, err := h.svc.FinalizeInvoice(r.Context(), jobID, actor.ID, req.Items)
	if err != nil {
		h.writeServiceError(w, err, "finalize invoice")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Pay handles POST /api/v1/jobs/{id}/pay.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Pay(r.Context(), jobID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err, "pay job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Cancel handles POST /api/v1/jobs/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Cancel(r.Context(), jobID, *actor)
	if err != nil {
		h.writeServiceError(w, err, "cancel job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- helpers ---

func (h *Handler) actorAndJobID(w http.ResponseWriter, r *http.Request) (*models.Actor, uuid.UUID, bool) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return nil, uuid.Nil, false
	}
	return actor, jobID, true
}

func canView(actor *models.Actor, job *models.Job) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	if job.CustomerID == actor.ID {
		return true
	}
	return job.WorkerID != nil && *job.WorkerID == actor.ID
}

// writeServiceError maps service sentinels onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrAlreadyClaimed):
		http.Error(w, `{"error":"job already claimed"}`, http.StatusConflict)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, `{"error":"transition not allowed from current status"}`, http.StatusConflict)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	case errors.Is(err, ErrInvoiceRequired):
		http.Error(w, `{"error":"itemized invoice is required"}`, http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInvoiceInvalid):
		http.Error(w, `{"error":"invoice items do not match the expected shape"}`, http.StatusUnprocessableEntity)
	case errors.Is(err, otp.ErrCodeExpired):
		http.Error(w, `{"error":"start code expired"}`, http.StatusUnprocessableEntity)
	case errors.Is(err, otp.ErrInvalidCode):
		http.Error(w, `{"error":"invalid start code"}`, http.StatusUnprocessableEntity)
	case errors.Is(err, pricing.ErrInvalidPromotion):
		http.Error(w, `{"error":"promotion is invalid or exhausted"}`, http.StatusUnprocessableEntity)
	default:
		h.log.Error(op+" failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
