package cashier

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lastmile/cashdesk/internal/platform/httpx"
	"github.com/lastmile/cashdesk/internal/rbac"
	"github.com/lastmile/cashdesk/internal/shared"
)

// Reader is the read surface the handler needs.
type Reader interface {
	DailySummary(ctx context.Context, date string) ([]DeliverymanSummary, error)
	DeliverymanDay(ctx context.Context, deliverymanID int64, date string) (DeliverymanDay, error)
}

// Handler exposes the front desk endpoints.
type Handler struct {
	logger *slog.Logger
	reader Reader
	rbac   rbac.Middleware
}

// NewHandler constructs the cashier handler.
func NewHandler(logger *slog.Logger, reader Reader, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, reader: reader, rbac: rbac}
}

// MountRoutes registers the cashier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cashier/remittances", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RoleAdmin, shared.RoleCashier))
		r.Get("/", h.dailySummary)
		r.Get("/{id}/details", h.deliverymanDay)
	})
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reader.DailySummary(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if rows == nil {
		rows = []DeliverymanSummary{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) deliverymanDay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validation("invalid deliveryman id"))
		return
	}
	day, err := h.reader.DeliverymanDay(r.Context(), id, r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, day)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("cashier request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
