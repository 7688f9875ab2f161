package cashhttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/cash"
)

type recordRequest struct {
	ActorID    int64           `json:"user_id" validate:"omitempty,gt=0"`
	Type       string          `json:"type" validate:"required,oneof=remittance expense manual_withdrawal"`
	Amount     decimal.Decimal `json:"amount"`
	Comment    string          `json:"comment" validate:"max=500"`
	CategoryID *int64          `json:"category_id" validate:"omitempty,gt=0"`
	OrderID    *int64          `json:"order_id" validate:"omitempty,gt=0"`
	CreatedAt  *time.Time      `json:"created_at"`
}

type editRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Comment string          `json:"comment" validate:"max=500"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type confirmRequest struct {
	TransactionIDs []int64          `json:"transaction_ids" validate:"required,min=1,dive,gt=0"`
	PaidAmount     *decimal.Decimal `json:"paid_amount" validate:"required"`
}

type closeRequest struct {
	Date       string           `json:"closing_date" validate:"required,datetime=2006-01-02"`
	ActualCash *decimal.Decimal `json:"actual_cash_counted" validate:"required"`
	Comment    string           `json:"comment" validate:"max=500"`
}

type transactionView struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	UserName        string          `json:"user_name,omitempty"`
	Type            cash.Kind       `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	CategoryID      *int64          `json:"category_id,omitempty"`
	CategoryName    string          `json:"category_name,omitempty"`
	Comment         string          `json:"comment"`
	OrderID         *int64          `json:"order_id,omitempty"`
	Status          cash.Status     `json:"status"`
	BatchRef        *uuid.UUID      `json:"batch_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ValidatedBy     *int64          `json:"validated_by,omitempty"`
	ValidatedByName string          `json:"validated_by_name,omitempty"`
	ValidatedAt     *time.Time      `json:"validated_at,omitempty"`
}

func toTransactionView(t cash.Transaction) transactionView {
	return transactionView{
		ID:              t.ID,
		UserID:          t.ActorID,
		UserName:        t.ActorName,
		Type:            t.Movement.Kind,
		Amount:          t.Amount(),
		CategoryID:      t.CategoryID,
		CategoryName:    t.CategoryName,
		Comment:         t.Comment,
		OrderID:         t.OrderID,
		Status:          t.Status,
		BatchRef:        t.BatchRef,
		CreatedAt:       t.CreatedAt,
		ValidatedBy:     t.ValidatedBy,
		ValidatedByName: t.ValidatedByName,
		ValidatedAt:     t.ValidatedAt,
	}
}

func toTransactionViews(rows []cash.Transaction) []transactionView {
	out := make([]transactionView, 0, len(rows))
	for _, t := range rows {
		out = append(out, toTransactionView(t))
	}
	return out
}

type summaryView struct {
	UserID          int64           `json:"user_id"`
	UserName        string          `json:"user_name"`
	PendingCount    int             `json:"pending_count"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	ConfirmedCount  int             `json:"confirmed_count"`
	ConfirmedAmount decimal.Decimal `json:"confirmed_amount"`
}

func toSummaryViews(rows []cash.ActorSummary) []summaryView {
	out := make([]summaryView, 0, len(rows))
	for _, s := range rows {
		out = append(out, summaryView{
			UserID:          s.ActorID,
			UserName:        s.ActorName,
			PendingCount:    s.PendingCount,
			PendingAmount:   s.PendingAmount,
			ConfirmedCount:  s.ConfirmedCount,
			ConfirmedAmount: s.ConfirmedAmount,
		})
	}
	return out
}

type detailView struct {
	transactionView
	LinkedOrderID    *int64          `json:"linked_order_id,omitempty"`
	DeliveryLocation string          `json:"delivery_location,omitempty"`
	ExpeditionFee    decimal.Decimal `json:"expedition_fee"`
	ShopName         string          `json:"shop_name,omitempty"`
	ItemNames        string          `json:"item_names,omitempty"`
}

func toDetailViews(rows []cash.RemittanceDetail) []detailView {
	out := make([]detailView, 0, len(rows))
	for _, d := range rows {
		out = append(out, detailView{
			transactionView:  toTransactionView(d.Transaction),
			LinkedOrderID:    d.LinkedOrderID,
			DeliveryLocation: d.DeliveryLocation,
			ExpeditionFee:    d.ExpeditionFee,
			ShopName:         d.ShopName,
			ItemNames:        d.ItemNames,
		})
	}
	return out
}

type confirmView struct {
	DeliverymanID  int64           `json:"deliveryman_id"`
	TransactionIDs []int64         `json:"transaction_ids"`
	Expected       decimal.Decimal `json:"expected_amount"`
	Paid           decimal.Decimal `json:"paid_amount"`
	Difference     decimal.Decimal `json:"difference"`
	Shortfall      decimal.Decimal `json:"shortfall"`
	ShortfallID    *int64          `json:"shortfall_id,omitempty"`
	BatchRef       uuid.UUID       `json:"batch_ref"`
}

func toConfirmView(r cash.ConfirmResult) confirmView {
	return confirmView{
		DeliverymanID:  r.DeliverymanID,
		TransactionIDs: r.TransactionIDs,
		Expected:       r.Expected,
		Paid:           r.Paid,
		Difference:     r.Difference,
		Shortfall:      r.Shortfall,
		ShortfallID:    r.ShortfallID,
		BatchRef:       r.BatchRef,
	}
}

type shortfallView struct {
	ID              int64                `json:"id"`
	DeliverymanID   int64                `json:"deliveryman_id"`
	DeliverymanName string               `json:"deliveryman_name,omitempty"`
	InitialAmount   decimal.Decimal      `json:"initial_amount"`
	Amount          decimal.Decimal      `json:"amount"`
	Comment         string               `json:"comment"`
	Status          cash.ShortfallStatus `json:"status"`
	CreatedBy       int64                `json:"created_by"`
	CreatedAt       time.Time            `json:"created_at"`
	SettledAt       *time.Time           `json:"settled_at,omitempty"`
}

func toShortfallView(s cash.Shortfall) shortfallView {
	return shortfallView{
		ID:              s.ID,
		DeliverymanID:   s.DeliverymanID,
		DeliverymanName: s.DeliverymanName,
		InitialAmount:   s.InitialAmount,
		Amount:          s.Amount,
		Comment:         s.Comment,
		Status:          s.Status,
		CreatedBy:       s.CreatedBy,
		CreatedAt:       s.CreatedAt,
		SettledAt:       s.SettledAt,
	}
}

type closingView struct {
	ID           int64           `json:"id"`
	ClosingDate  string          `json:"closing_date"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	ActualCash   decimal.Decimal `json:"actual_cash_counted"`
	Difference   decimal.Decimal `json:"difference"`
	Comment      string          `json:"comment"`
	CreatedBy    int64           `json:"user_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toClosingView(c cash.Closing) closingView {
	return closingView{
		ID:           c.ID,
		ClosingDate:  c.ClosingDate,
		ExpectedCash: c.ExpectedCash,
		ActualCash:   c.ActualCash,
		Difference:   c.Difference,
		Comment:      c.Comment,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
	}
}

type metricsView struct {
	TotalCollected    decimal.Decimal `json:"total_collected"`
	TotalExpenses     decimal.Decimal `json:"total_expenses"`
	TotalWithdrawals  decimal.Decimal `json:"total_withdrawals"`
	TotalDebtsSettled decimal.Decimal `json:"total_debts_settled"`
	CashOnHand        decimal.Decimal `json:"cash_on_hand"`
}

type categoryView struct {
	ID   int64             `json:"id"`
	Name string            `json:"name"`
	Type cash.CategoryType `json:"type"`
}
