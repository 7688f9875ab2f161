package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lastmile/cashdesk/internal/balance"
	cashhttp "github.com/lastmile/cashdesk/internal/cash/http"
	"github.com/lastmile/cashdesk/internal/cashier"
	"github.com/lastmile/cashdesk/internal/integration"
	"github.com/lastmile/cashdesk/internal/observability"
	"github.com/lastmile/cashdesk/internal/rbac"
	"github.com/lastmile/cashdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	RBACMiddleware rbac.Middleware
	CashHandler    *cashhttp.Handler
	BalanceHandler *balance.Handler
	CashierHandler *cashier.Handler
	OrderHandler   *integration.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with cash desk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.CashHandler != nil {
		params.CashHandler.MountRoutes(r)
	}
	if params.BalanceHandler != nil {
		params.BalanceHandler.MountRoutes(r)
	}
	if params.CashierHandler != nil {
		params.CashierHandler.MountRoutes(r)
	}
	if params.OrderHandler != nil {
		params.OrderHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		params.JobHandler.MountRoutes(r)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
