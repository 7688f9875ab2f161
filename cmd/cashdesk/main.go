package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/lastmile/cashdesk/cmd/cashdesk/cli"
	"github.com/lastmile/cashdesk/internal/app"
	"github.com/lastmile/cashdesk/internal/balance"
	"github.com/lastmile/cashdesk/internal/cash"
	cashhttp "github.com/lastmile/cashdesk/internal/cash/http"
	"github.com/lastmile/cashdesk/internal/cashier"
	"github.com/lastmile/cashdesk/internal/integration"
	"github.com/lastmile/cashdesk/internal/observability"
	"github.com/lastmile/cashdesk/internal/platform/cache"
	"github.com/lastmile/cashdesk/internal/platform/db"
	"github.com/lastmile/cashdesk/internal/rbac"
	"github.com/lastmile/cashdesk/internal/shared"
	"github.com/lastmile/cashdesk/jobs"
)

func main() {
	if app.SkipStartup("cashdesk") {
		return
	}

	ctx, stop := app.ShutdownContext(context.Background())
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "cashdesk-api")

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, db.Options{
		DSN:             cfg.PGDSN,
		MaxConns:        cfg.PGMaxConns,
		TimeZone:        cfg.AppTimezone,
		ApplicationName: "cashdesk-api",
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	// Without Redis the read models are served straight from PostgreSQL.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	readModels := cache.NewVersioned(redisClient, "cashdesk", cfg.CacheTTL)
	if err := readModels.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()

	redisOpts, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	loc := cfg.Location()
	cashService := cash.NewService(cash.NewRepository(pool), cash.ServiceConfig{
		Cache:       readModels,
		Notifier:    jobClient,
		Instruments: cash.NewInstruments(metrics.Registerer()),
		Logger:      logger,
		Location:    loc,
		Currency:    cfg.CurrencyLabel,
	})
	cashierService := cashier.NewService(cashier.NewRepository(pool), readModels, loc)
	hooks := integration.NewHooks(pool, readModels, logger)
	hooks.WithLocation(loc)

	rbacMiddleware := rbac.Middleware{Logger: logger}
	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		RBACMiddleware: rbacMiddleware,
		CashHandler:    cashhttp.NewHandler(logger, cashService, shared.NewIdempotencyStore(pool), rbacMiddleware),
		BalanceHandler: balance.NewHandler(logger, balance.NewService(balance.NewRepository(pool)).WithLocation(loc), rbacMiddleware),
		CashierHandler: cashier.NewHandler(logger, cashierService, rbacMiddleware),
		OrderHandler:   integration.NewHandler(logger, hooks, rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Ready: func(r *http.Request) error {
			return pool.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand handles "jobs trigger <task> [args]" and "jobs stats".
func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	redisOpts, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		return err
	}
	helper := cli.NewJobsCLI(redisOpts, cfg.StaleRemittanceAfter)
	defer func() { _ = helper.Close() }()

	if len(args) == 0 {
		return errors.New("usage: cashdesk jobs trigger <task> [from to] | cashdesk jobs stats")
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: cashdesk jobs trigger <task> [from to]")
		}
		info, err := helper.Trigger(ctx, args[1], args[2:]...)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := helper.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-10s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
		return nil
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
}
