package integration

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/balance"
	"github.com/lastmile/cashdesk/internal/platform/httpx"
	"github.com/lastmile/cashdesk/internal/rbac"
	"github.com/lastmile/cashdesk/internal/shared"
)

// ChangeApplier applies one order change in its own transaction.
type ChangeApplier interface {
	ApplyOrderChange(ctx context.Context, old, updated *balance.OrderSnapshot) error
}

// Handler lets an order service that does not share our database push its changes.
type Handler struct {
	logger  *slog.Logger
	applier ChangeApplier
	decoder *httpx.Decoder
	rbac    rbac.Middleware
}

// NewHandler constructs the order change handler.
func NewHandler(logger *slog.Logger, applier ChangeApplier, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, applier: applier, decoder: httpx.NewDecoder(), rbac: rbac}
}

// MountRoutes registers the integration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.RoleAdmin)).Post("/integration/order-changes", h.orderChange)
}

type orderPayload struct {
	ID             int64               `json:"id" validate:"gt=0"`
	ShopID         int64               `json:"shop_id" validate:"gt=0"`
	DeliverymanID  int64               `json:"deliveryman_id" validate:"gte=0"`
	Status         string              `json:"status" validate:"required"`
	PaymentStatus  string              `json:"payment_status" validate:"required,oneof=pending cash paid_to_supplier cancelled"`
	ArticleAmount  decimal.Decimal     `json:"article_amount"`
	DeliveryFee    decimal.Decimal     `json:"delivery_fee"`
	ExpeditionFee  decimal.Decimal     `json:"expedition_fee"`
	AmountReceived decimal.NullDecimal `json:"amount_received"`
	BillPackaging  bool                `json:"bill_packaging"`
	PackagingPrice decimal.Decimal     `json:"packaging_price"`
	CreatedAt      time.Time           `json:"created_at" validate:"required"`
}

type orderChangeRequest struct {
	Before *orderPayload `json:"before" validate:"required_without=After"`
	After  *orderPayload `json:"after" validate:"required_without=Before"`
}

func (p *orderPayload) snapshot() (*balance.OrderSnapshot, error) {
	if p == nil {
		return nil, nil
	}
	status := balance.OrderStatus(p.Status)
	if !status.Valid() {
		return nil, shared.Validation("unknown order status %q", p.Status)
	}
	return &balance.OrderSnapshot{
		ID:             p.ID,
		ShopID:         p.ShopID,
		DeliverymanID:  p.DeliverymanID,
		Status:         status,
		PaymentStatus:  balance.PaymentStatus(p.PaymentStatus),
		ArticleAmount:  p.ArticleAmount,
		DeliveryFee:    p.DeliveryFee,
		ExpeditionFee:  p.ExpeditionFee,
		AmountReceived: p.AmountReceived,
		BillPackaging:  p.BillPackaging,
		PackagingPrice: p.PackagingPrice,
		CreatedAt:      p.CreatedAt,
	}, nil
}

func (h *Handler) orderChange(w http.ResponseWriter, r *http.Request) {
	var req orderChangeRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	old, err := req.Before.snapshot()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := req.After.snapshot()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if old != nil && updated != nil && old.ID != updated.ID {
		httpx.RespondError(w, shared.Validation("before and after describe different orders"))
		return
	}
	if err := h.applier.ApplyOrderChange(r.Context(), old, updated); err != nil {
		if !httpx.IsClientError(err) {
			h.logger.Error("apply order change", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
