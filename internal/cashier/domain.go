package cashier

import (
	"time"

	"github.com/shopspring/decimal"
)

// SummaryStatus tells whether a deliveryman still owes cash for the day.
type SummaryStatus string

const (
	StatusSettled    SummaryStatus = "settled"
	StatusInProgress SummaryStatus = "in_progress"
)

// DeliverymanTotals are the raw per-deliveryman sums for one day.
type DeliverymanTotals struct {
	DeliverymanID       int64
	DeliverymanName     string
	CashCollected       decimal.Decimal
	DeliveredCashOrders int
	ExpensesConfirmed   decimal.Decimal
	RemittedConfirmed   decimal.Decimal
}

// DeliverymanSummary is one row of the front desk's daily view.
type DeliverymanSummary struct {
	DeliverymanID          int64           `json:"deliveryman_id"`
	DeliverymanName        string          `json:"deliveryman_name"`
	TotalCashCollected     decimal.Decimal `json:"total_cash_collected"`
	TotalExpensesConfirmed decimal.Decimal `json:"total_expenses_confirmed"`
	ExpectedRemittance     decimal.Decimal `json:"expected_remittance"`
	ConfirmedRemittance    decimal.Decimal `json:"confirmed_remittance"`
	CurrentBalance         decimal.Decimal `json:"current_balance"`
	PendingOrders          int             `json:"pending_remittance_orders"`
	ConfirmedOrders        int             `json:"confirmed_remittance_orders"`
	Status                 SummaryStatus   `json:"status"`
}

// Summarize derives the daily view from raw totals. Expenses are stored negative, so the
// expected remittance is collected plus expenses.
func Summarize(t DeliverymanTotals) DeliverymanSummary {
	expected := t.CashCollected.Add(t.ExpensesConfirmed)
	balance := expected.Sub(t.RemittedConfirmed)
	s := DeliverymanSummary{
		DeliverymanID:          t.DeliverymanID,
		DeliverymanName:        t.DeliverymanName,
		TotalCashCollected:     t.CashCollected,
		TotalExpensesConfirmed: t.ExpensesConfirmed,
		ExpectedRemittance:     expected,
		ConfirmedRemittance:    t.RemittedConfirmed,
		CurrentBalance:         balance,
		Status:                 StatusInProgress,
		PendingOrders:          t.DeliveredCashOrders,
	}
	if !balance.IsPositive() {
		s.Status = StatusSettled
		s.PendingOrders = 0
	}
	s.ConfirmedOrders = t.DeliveredCashOrders - s.PendingOrders
	return s
}

// DayOrder is an order the deliveryman closed out on the day.
type DayOrder struct {
	ID               int64           `json:"id"`
	Status           string          `json:"status"`
	PaymentStatus    string          `json:"payment_status"`
	ArticleAmount    decimal.Decimal `json:"article_amount"`
	DeliveryFee      decimal.Decimal `json:"delivery_fee"`
	ExpeditionFee    decimal.Decimal `json:"expedition_fee"`
	CashCollected    decimal.Decimal `json:"cash_collected"`
	DeliveryLocation string          `json:"delivery_location"`
	ShopName         string          `json:"shop_name"`
	ItemNames        string          `json:"item_names"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DayMovement is a ledger row of the deliveryman on the day.
type DayMovement struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Comment   string          `json:"comment"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeliverymanDay gathers what a cashier reviews before taking a deliveryman's cash.
type DeliverymanDay struct {
	DeliverymanID int64         `json:"deliveryman_id"`
	Date          string        `json:"date"`
	Orders        []DayOrder    `json:"orders"`
	Movements     []DayMovement `json:"transactions"`
}
