package payments

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// InsertFunc enqueues a confirmation for the River worker. Wired to the River
// client in main.
type InsertFunc func(ctx context.Context, args GatewayConfirmationArgs) error

// Handler receives payment gateway webhooks. The gateway authenticates with a
// shared token, not a user JWT, so this sits outside the JWT middleware.
type Handler struct {
	insert InsertFunc
	token  string
	log    *slog.Logger
}

func NewHandler(insert InsertFunc, token string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{insert: insert, token: token, log: log}
}

type webhookRequest struct {
	JobID      string `json:"job_id"`
	CustomerID string `json:"customer_id"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
}

// GatewayWebhook handles POST /api/v1/payments/webhook. Confirmations are
// acknowledged once durably enqueued; the lifecycle change happens in the
// worker.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		http.Error(w, `{"error":"invalid job_id"}`, http.StatusBadRequest)
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		http.Error(w, `{"error":"invalid customer_id"}`, http.StatusBadRequest)
		return
	}

	if req.Status != "succeeded" {
		// Failed or pending charges never advance the lifecycle.
		h.log.Info("ignoring non-success gateway event", "job_id", jobID, "status", req.Status)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := h.insert(r.Context(), GatewayConfirmationArgs{
		JobID:      jobID,
		CustomerID: customerID,
		GatewayRef: req.Reference,
	}); err != nil {
		h.log.Error("enqueue gateway confirmation failed", "job_id", jobID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
