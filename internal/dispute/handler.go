package dispute

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/jobs"
	"github.com/fieldserve/backend/internal/middleware"
	"github.com/fieldserve/backend/internal/models"
)

// Handler serves dispute submission for job parties and the admin resolution
// surface.
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

type submitRequest struct {
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// Submit handles POST /api/v1/jobs/{id}/dispute.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, err := h.svc.Submit(r.Context(), jobID, *actor, req.Category, req.Reason)
	if err != nil {
		h.writeServiceError(w, err, "submit dispute")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListOpen handles GET /api/v1/admin/disputes.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListOpen(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "list open disputes")
		return
	}
	if list == nil {
		list = []*models.Dispute{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/admin/disputes/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid dispute id"}`, http.StatusBadRequest)
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get dispute")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type resolveRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

type resolveResponse struct {
	Dispute *models.Dispute `json:"dispute"`
	Job     *models.Job     `json:"job"`
}

// Resolve handles POST /api/v1/admin/disputes/{id}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid dispute id"}`, http.StatusBadRequest)
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	d, job, err := h.svc.Resolve(r.Context(), id, actor.ID, req.Decision, req.Notes)
	if err != nil {
		h.writeServiceError(w, err, "resolve dispute")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Dispute: d, Job: job})
}

type interveneRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// Intervene handles POST /api/v1/admin/jobs/{id}/intervene.
func (h *Handler) Intervene(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	var req interveneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	job, err := h.svc.Intervene(r.Context(), jobID, actor.ID, req.Action, req.Reason)
	if err != nil {
		h.writeServiceError(w, err, "admin intervene")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrInvalidCategory), errors.Is(err, ErrInvalidDecision),
		errors.Is(err, ErrInvalidAction), errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrNotesRequired):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, ErrDisputeClosed):
		http.Error(w, `{"error":"dispute is already resolved"}`, http.StatusConflict)
	case errors.Is(err, jobs.ErrInvalidTransition):
		http.Error(w, `{"error":"job cannot be disputed in its current status"}`, http.StatusConflict)
	case errors.Is(err, jobs.ErrUnauthorized):
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
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
