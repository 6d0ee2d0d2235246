package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldserve/backend/internal/auth"
	"github.com/fieldserve/backend/internal/dashboard"
	"github.com/fieldserve/backend/internal/dispute"
	"github.com/fieldserve/backend/internal/jobs"
	"github.com/fieldserve/backend/internal/middleware"
	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/payments"
	"github.com/fieldserve/backend/internal/wallet"
)

// New returns the API handler. Auth and payments webhook are public; every
// other route runs behind JWT auth, and /admin routes additionally require
// the admin role.
func New(
	authHandler *auth.Handler,
	jobsHandler *jobs.Handler,
	disputeHandler *dispute.Handler,
	walletHandler *wallet.Handler,
	dashHandler *dashboard.Handler,
	paymentsHandler *payments.Handler,
	validator middleware.TokenValidator,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.JWTAuth(validator)
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireRole(models.RoleAdmin)(h))
	}

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	// The gateway authenticates with its own shared token.
	mux.HandleFunc("POST "+base+"/payments/webhook", paymentsHandler.GatewayWebhook)

	mux.Handle("POST "+base+"/jobs", authed(http.HandlerFunc(jobsHandler.CreateJob)))
	mux.Handle("GET "+base+"/jobs", authed(http.HandlerFunc(jobsHandler.ListJobs)))
	mux.Handle("GET "+base+"/jobs/open", authed(http.HandlerFunc(jobsHandler.ListOpen)))
	mux.Handle("GET "+base+"/jobs/{id}", authed(http.HandlerFunc(jobsHandler.GetJob)))
	mux.Handle("POST "+base+"/jobs/{id}/claim", authed(http.HandlerFunc(jobsHandler.Claim)))
	mux.Handle("POST "+base+"/jobs/{id}/transit", authed(http.HandlerFunc(jobsHandler.BeginTransit)))
	mux.Handle("POST "+base+"/jobs/{id}/start-code", authed(http.HandlerFunc(jobsHandler.IssueStartCode)))
	mux.Handle("POST "+base+"/jobs/{id}/start", authed(http.HandlerFunc(jobsHandler.VerifyStart)))
	mux.Handle("POST "+base+"/jobs/{id}/invoice", authed(http.HandlerFunc(jobsHandler.FinalizeInvoice)))
	mux.Handle("POST "+base+"/jobs/{id}/pay", authed(http.HandlerFunc(jobsHandler.Pay)))
	mux.Handle("POST "+base+"/jobs/{id}/cancel", authed(http.HandlerFunc(jobsHandler.Cancel)))
	mux.Handle("POST "+base+"/jobs/{id}/dispute", authed(http.HandlerFunc(disputeHandler.Submit)))

	mux.Handle("GET "+base+"/wallet", authed(http.HandlerFunc(walletHandler.GetBalance)))
	mux.Handle("GET "+base+"/wallet/entries", authed(http.HandlerFunc(walletHandler.ListEntries)))
	mux.Handle("POST "+base+"/wallet/withdrawals", authed(http.HandlerFunc(walletHandler.RequestWithdrawal)))

	mux.Handle("GET "+base+"/admin/disputes", admin(disputeHandler.ListOpen))
	mux.Handle("GET "+base+"/admin/disputes/{id}", admin(disputeHandler.Get))
	mux.Handle("POST "+base+"/admin/disputes/{id}/resolve", admin(disputeHandler.Resolve))
	mux.Handle("POST "+base+"/admin/jobs/{id}/intervene", admin(disputeHandler.Intervene))
	mux.Handle("GET "+base+"/admin/jobs/stale", admin(dashHandler.ListStaleJobs))
	mux.Handle("GET "+base+"/admin/jobs/{id}/audit", admin(dashHandler.AuditTrailForJob))
	mux.Handle("POST "+base+"/admin/promotions", admin(dashHandler.CreatePromotion))
	mux.Handle("GET "+base+"/admin/withdrawals", admin(walletHandler.ListPendingWithdrawals))
	mux.Handle("POST "+base+"/admin/withdrawals/{id}/resolve", admin(walletHandler.ResolveWithdrawal))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}
