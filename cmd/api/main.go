package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/fieldserve/backend/internal/audit"
	"github.com/fieldserve/backend/internal/auth"
	"github.com/fieldserve/backend/internal/config"
	"github.com/fieldserve/backend/internal/dashboard"
	"github.com/fieldserve/backend/internal/dispute"
	"github.com/fieldserve/backend/internal/jobs"
	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/notify"
	"github.com/fieldserve/backend/internal/otp"
	"github.com/fieldserve/backend/internal/payments"
	"github.com/fieldserve/backend/internal/pricing"
	"github.com/fieldserve/backend/internal/router"
	"github.com/fieldserve/backend/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations (queue tables only; app schema lives in migrations/).
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Event fan-out. The API stays up without the broker; deliveries are
	// logged as lost.
	var publisher notify.Publisher
	rabbit, err := notify.NewRabbitPublisher(cfg.MQURL, cfg.MQJobExchange)
	if err != nil {
		slog.Warn("RabbitMQ unavailable, job events will not be published", "error", err)
	} else {
		publisher = rabbit
		defer rabbit.Close()
	}

	engine := pricing.Engine{
		TaxRatePercent:    cfg.TaxRatePercent,
		PlatformFeeCents:  cfg.PlatformFeeCents,
		CommissionPercent: cfg.CommissionPercent,
	}

	jobsRepo := jobs.NewRepository(pool)
	promoRepo := pricing.NewPromotionRepository(pool)
	otpRepo := otp.NewRepository(pool)
	walletRepo := wallet.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)
	disputeRepo := dispute.NewRepository(pool)
	authRepo := auth.NewRepository(pool)

	otpSvc := otp.NewService(otpRepo, cfg.OTPTTL)
	walletSvc := wallet.NewService(walletRepo, auditRepo)
	jobsSvc := jobs.NewService(jobsRepo, promoRepo, engine, walletSvc, otpSvc, auditRepo, publisher, cfg.StaleAssignmentWindow, logger)
	disputeSvc := dispute.NewService(disputeRepo, jobsSvc)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	// Payment confirmations ride the durable queue so a crash between webhook
	// and lifecycle change loses nothing.
	workers := river.NewWorkers()
	river.AddWorker(workers, payments.NewConfirmationWorker(jobsSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	paymentsHandler := payments.NewHandler(func(ctx context.Context, args payments.GatewayConfirmationArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}, cfg.GatewayWebhookToken, logger)

	authHandler := auth.NewHandler(authSvc, logger)
	jobsHandler := jobs.NewHandler(jobsSvc, logger)
	disputeHandler := dispute.NewHandler(disputeSvc, logger)
	walletHandler := wallet.NewHandler(walletSvc, logger)
	dashHandler := dashboard.NewHandler(jobsSvc, auditRepo, promoRepo, logger)

	apiRouter := router.New(authHandler, jobsHandler, disputeHandler, walletHandler, dashHandler, paymentsHandler, authSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Webhook-Token"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	go runMatchingSweep(riverCtx, jobsSvc, logger)

	addr := "0.0.0.0:" + cfg.HTTPPort
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}

// runMatchingSweep periodically opens freshly requested jobs to the worker
// pool (REQUESTED to MATCHING). Matching itself is pull-based: workers browse
// the open feed and claim.
func runMatchingSweep(ctx context.Context, jobsSvc jobs.Service, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		open, err := jobsSvc.ListOpen(ctx, "")
		if err != nil {
			logger.Warn("matching sweep list failed", "error", err)
			continue
		}
		for _, job := range open {
			if job.Status != models.JobStatusRequested {
				continue
			}
			if _, err := jobsSvc.OpenMatching(ctx, job.ID); err != nil {
				logger.Warn("open matching failed", "job_id", job.ID, "error", err)
			}
		}
	}
}
