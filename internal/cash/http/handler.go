package cashhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/cash"
	"github.com/lastmile/cashdesk/internal/platform/httpx"
	"github.com/lastmile/cashdesk/internal/rbac"
	"github.com/lastmile/cashdesk/internal/shared"
)

const confirmScope = "cash.confirm"

// Service is the subset of cash.Service the handler drives.
type Service interface {
	Record(ctx context.Context, in cash.RecordInput) (cash.Transaction, error)
	Edit(ctx context.Context, id int64, in cash.EditInput) (cash.Transaction, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, q cash.ListQuery) ([]cash.Transaction, error)
	RemittanceSummary(ctx context.Context, days cash.DateRange, search string) ([]cash.ActorSummary, error)
	RemittanceDetails(ctx context.Context, actorID int64, days cash.DateRange) ([]cash.RemittanceDetail, error)
	EditPendingRemittanceAmount(ctx context.Context, id int64, amount decimal.Decimal) (cash.Transaction, error)
	ConfirmBatch(ctx context.Context, in cash.ConfirmInput) (cash.ConfirmResult, error)
	ListShortfalls(ctx context.Context, filter cash.ShortfallFilter) ([]cash.Shortfall, error)
	SettleShortfall(ctx context.Context, in cash.SettleInput) (cash.Shortfall, error)
	CloseCash(ctx context.Context, in cash.CloseInput) (cash.Closing, error)
	ClosingHistory(ctx context.Context, days cash.DateRange) ([]cash.Closing, error)
	CashMetrics(ctx context.Context, days cash.DateRange) (cash.Metrics, error)
	ExpenseCategories(ctx context.Context, categoryType cash.CategoryType) ([]cash.Category, error)
}

// IdempotencyStore guards retried confirmation requests.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key, scope string) error
}

// Handler exposes the cash desk JSON API.
type Handler struct {
	logger      *slog.Logger
	service     Service
	idempotency IdempotencyStore
	decoder     *httpx.Decoder
	rbac        rbac.Middleware
	rateLimit   func(http.Handler) http.Handler
}

// NewHandler constructs the cash handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service Service, idempotency IdempotencyStore, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if actor, ok := shared.ActorFromContext(r.Context()); ok {
			return "actor:" + strconv.FormatInt(actor.ID, 10), nil
		}
		return httprate.KeyByIP(r)
	}))
	return &Handler{
		logger:      logger,
		service:     service,
		idempotency: idempotency,
		decoder:     httpx.NewDecoder(),
		rbac:        rbac,
		rateLimit:   limiter,
	}
}

// MountRoutes registers the cash routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cash", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.RoleAdmin, shared.RoleCashier))
			r.Get("/transactions", h.listTransactions)
			r.Get("/remittances/summary", h.remittanceSummary)
			r.Get("/remittances/{actorID}", h.remittanceDetails)
			r.Get("/shortfalls", h.listShortfalls)
			r.Get("/closings", h.closingHistory)
			r.Get("/metrics", h.metrics)
			r.Get("/expense-categories", h.expenseCategories)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.RoleAdmin))
			r.Post("/transactions", h.recordTransaction)
			r.Put("/transactions/{id}", h.editTransaction)
			r.Delete("/transactions/{id}", h.deleteTransaction)
			r.Put("/remittances/{id}/amount", h.editRemittanceAmount)
			r.Put("/shortfalls/{id}/settle", h.settleShortfall)
			r.Group(func(r chi.Router) {
				r.Use(h.rateLimit)
				r.Put("/remittances/confirm", h.confirmBatch)
				r.Post("/closings", h.closeCash)
			})
		})
	})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actorID, err := optionalID(q.Get("user_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.List(r.Context(), cash.ListQuery{
		Kind:    cash.Kind(strings.TrimSpace(q.Get("type"))),
		ActorID: actorID,
		Range:   dateRange(r),
		Search:  q.Get("search"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionViews(rows))
}

func (h *Handler) recordTransaction(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req recordRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID := req.ActorID
	if actorID == 0 {
		actorID = actor.ID
	}
	t, err := h.service.Record(r.Context(), cash.RecordInput{
		ActorID:    actorID,
		Kind:       cash.Kind(req.Type),
		Amount:     req.Amount,
		Comment:    req.Comment,
		CategoryID: req.CategoryID,
		OrderID:    req.OrderID,
		CreatedAt:  req.CreatedAt,
		RecordedBy: actor.ID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionView(t))
}

func (h *Handler) editTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req editRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Edit(r.Context(), id, cash.EditInput{Amount: req.Amount, Comment: req.Comment})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionView(t))
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) remittanceSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.RemittanceSummary(r.Context(), dateRange(r), r.URL.Query().Get("search"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSummaryViews(rows))
}

func (h *Handler) remittanceDetails(w http.ResponseWriter, r *http.Request) {
	actorID, err := pathID(r, "actorID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.RemittanceDetails(r.Context(), actorID, dateRange(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDetailViews(rows))
}

func (h *Handler) editRemittanceAmount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req amountRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.EditPendingRemittanceAmount(r.Context(), id, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionView(t))
}

func (h *Handler) confirmBatch(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req confirmRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Reserve(r.Context(), key, confirmScope); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	res, err := h.service.ConfirmBatch(r.Context(), cash.ConfirmInput{
		TransactionIDs: req.TransactionIDs,
		PaidAmount:     *req.PaidAmount,
		ValidatedBy:    actor.ID,
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if rerr := h.idempotency.Release(context.WithoutCancel(r.Context()), key, confirmScope); rerr != nil {
				h.logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", rerr))
			}
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toConfirmView(res))
}

func (h *Handler) listShortfalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.service.ListShortfalls(r.Context(), cash.ShortfallFilter{
		Status: cash.ShortfallStatus(strings.TrimSpace(q.Get("status"))),
		Search: q.Get("search"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]shortfallView, 0, len(rows))
	for _, s := range rows {
		out = append(out, toShortfallView(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) settleShortfall(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req amountRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.SettleShortfall(r.Context(), cash.SettleInput{ShortfallID: id, Amount: req.Amount, UserID: actor.ID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toShortfallView(s))
}

func (h *Handler) closeCash(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req closeRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CloseCash(r.Context(), cash.CloseInput{
		Date:       req.Date,
		ActualCash: *req.ActualCash,
		Comment:    req.Comment,
		UserID:     actor.ID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toClosingView(c))
}

func (h *Handler) closingHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ClosingHistory(r.Context(), dateRange(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]closingView, 0, len(rows))
	for _, c := range rows {
		out = append(out, toClosingView(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.CashMetrics(r.Context(), dateRange(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, metricsView{
		TotalCollected:    m.TotalCollected,
		TotalExpenses:     m.TotalExpenses,
		TotalWithdrawals:  m.TotalWithdrawals,
		TotalDebtsSettled: m.TotalDebtsSettled,
		CashOnHand:        m.CashOnHand,
	})
}

func (h *Handler) expenseCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ExpenseCategories(r.Context(), cash.CategoryType(strings.TrimSpace(r.URL.Query().Get("type"))))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]categoryView, 0, len(rows))
	for _, c := range rows {
		out = append(out, categoryView{ID: c.ID, Name: c.Name, Type: c.Type})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("cash request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}

// dateRange reads either a single "date" or a "start_date"/"end_date" pair.
func dateRange(r *http.Request) cash.DateRange {
	q := r.URL.Query()
	if day := strings.TrimSpace(q.Get("date")); day != "" {
		return cash.Day(day)
	}
	return cash.DateRange{From: strings.TrimSpace(q.Get("start_date")), To: strings.TrimSpace(q.Get("end_date"))}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("invalid %s", name)
	}
	return id, nil
}

func optionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("invalid user_id")
	}
	return id, nil
}
