package balance

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
	Get(ctx context.Context, shopID int64, day string) (DailyBalance, error)
	List(ctx context.Context, filter ListFilter) ([]DailyBalance, error)
}

// Handler exposes the daily balance read models.
type Handler struct {
	logger *slog.Logger
	reader Reader
	rbac   rbac.Middleware
}

// NewHandler constructs the balance handler.
func NewHandler(logger *slog.Logger, reader Reader, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, reader: reader, rbac: rbac}
}

// MountRoutes registers the balance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/balances", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RoleAdmin, shared.RoleCashier))
		r.Get("/", h.list)
		r.Get("/{shopID}/{date}", h.get)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{From: q.Get("start_date"), To: q.Get("end_date")}
	if raw := q.Get("shop_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, shared.Validation("invalid shop id"))
			return
		}
		filter.ShopID = id
	}
	rows, err := h.reader.List(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if rows == nil {
		rows = []DailyBalance{}
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	shopID, err := strconv.ParseInt(chi.URLParam(r, "shopID"), 10, 64)
	if err != nil || shopID <= 0 {
		httpx.RespondError(w, shared.Validation("invalid shop id"))
		return
	}
	row, err := h.reader.Get(r.Context(), shopID, chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("balance request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
