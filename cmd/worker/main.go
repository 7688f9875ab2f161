package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lastmile/cashdesk/internal/app"
	"github.com/lastmile/cashdesk/internal/balance"
	"github.com/lastmile/cashdesk/internal/cash"
	jobmetrics "github.com/lastmile/cashdesk/internal/jobs"
	"github.com/lastmile/cashdesk/internal/platform/db"
	"github.com/lastmile/cashdesk/internal/shared"
	"github.com/lastmile/cashdesk/jobs"
)

func main() {
	if app.SkipStartup("worker") {
		return
	}

	ctx, stop := app.ShutdownContext(context.Background())
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "cashdesk-worker")

	pool, err := db.New(ctx, db.Options{
		DSN:             cfg.PGDSN,
		MaxConns:        cfg.PGMaxConns,
		TimeZone:        cfg.AppTimezone,
		ApplicationName: "cashdesk-worker",
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	loc := cfg.Location()

	cashService := cash.NewService(cash.NewRepository(pool), cash.ServiceConfig{
		Logger:   logger,
		Location: loc,
		Currency: cfg.CurrencyLabel,
	})
	balanceService := balance.NewService(balance.NewRepository(pool)).WithLocation(loc)

	shortfallJob := jobs.NewShortfallAuditJob(shared.NewAuditLogger(pool), logger, metrics)
	staleJob := jobs.NewStaleRemittanceJob(cashService, logger, metrics, cfg.StaleRemittanceAfter)
	integrityJob := jobs.NewBalanceIntegrityJob(balanceService, logger, metrics, loc)
	cleanupJob := &jobs.IdempotencyCleanupJob{Store: shared.NewIdempotencyStore(pool), Logger: logger, Metrics: metrics}

	staleTask, err := jobs.NewStaleRemittanceScanTask(cfg.StaleRemittanceAfter)
	if err != nil {
		logger.Error("build stale remittance task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewBalanceIntegrityTask("", "")
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskShortfallRaised, Handler: shortfallJob.Handle},
			{Type: jobs.TaskStaleRemittanceScan, Handler: staleJob.Handle},
			{Type: jobs.TaskBalanceIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: staleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 0", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
