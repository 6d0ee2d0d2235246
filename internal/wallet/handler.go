package wallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/backend/internal/middleware"
	"github.com/fieldserve/backend/internal/models"
)

// Handler serves the wallet endpoints: balance and ledger for account owners,
// withdrawal requests for workers, and the admin payout queue.
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

type balanceResponse struct {
	AccountID    string `json:"account_id"`
	BalanceCents int64  `json:"balance_cents"`
}

// GetBalance handles GET /api/v1/wallet.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.svc.Balance(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("derive balance failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: actor.ID.String(), BalanceCents: balance})
}

// ListEntries handles GET /api/v1/wallet/entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := h.svc.ListEntries(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list ledger entries failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.WalletLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type withdrawalRequestBody struct {
	AmountCents int64  `json:"amount_cents"`
	BankDetails string `json:"bank_details"`
}

// RequestWithdrawal handles POST /api/v1/wallet/withdrawals.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if actor.Role != models.RoleWorker {
		http.Error(w, `{"error":"only workers can withdraw earnings"}`, http.StatusForbidden)
		return
	}
	var req withdrawalRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, `{"error":"amount_cents must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.BankDetails == "" {
		http.Error(w, `{"error":"bank_details is required"}`, http.StatusBadRequest)
		return
	}
	wd, err := h.svc.RequestWithdrawal(r.Context(), actor.ID, req.AmountCents, req.BankDetails)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			http.Error(w, `{"error":"insufficient available balance"}`, http.StatusPaymentRequired)
			return
		}
		h.log.Error("request withdrawal failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// ListPendingWithdrawals handles GET /api/v1/admin/withdrawals.
func (h *Handler) ListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPendingWithdrawals(r.Context())
	if err != nil {
		h.log.Error("list pending withdrawals failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

type resolveWithdrawalRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// ResolveWithdrawal handles POST /api/v1/admin/withdrawals/{id}/resolve.
func (h *Handler) ResolveWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid withdrawal id"}`, http.StatusBadRequest)
		return
	}
	var req resolveWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	wd, err := h.svc.ResolveWithdrawal(r.Context(), id, actor.ID, req.Approve, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			http.Error(w, `{"error":"withdrawal not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrWithdrawalNotPending):
			http.Error(w, `{"error":"withdrawal already resolved"}`, http.StatusConflict)
		default:
			h.log.Error("resolve withdrawal failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
