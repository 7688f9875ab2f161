package cash

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/shared"
)

// Kind tags a cash movement. The kind alone decides the stored sign.
type Kind string

const (
	KindRemittance       Kind = "remittance"
	KindExpense          Kind = "expense"
	KindManualWithdrawal Kind = "manual_withdrawal"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRemittance, KindExpense, KindManualWithdrawal:
		return true
	}
	return false
}

// InitialStatus is the status a fresh movement of this kind starts in.
func (k Kind) InitialStatus() Status {
	if k == KindRemittance {
		return StatusPending
	}
	return StatusConfirmed
}

// Status is the confirmation state of a movement.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Movement is a kind together with its strictly positive magnitude.
type Movement struct {
	Kind      Kind
	Magnitude decimal.Decimal
}

// NewMovement validates kind and magnitude.
func NewMovement(kind Kind, magnitude decimal.Decimal) (Movement, error) {
	if !kind.Valid() {
		return Movement{}, shared.Validation("unknown movement type %q", kind)
	}
	if !magnitude.IsPositive() {
		return Movement{}, shared.Validation("amount must be greater than zero")
	}
	return Movement{Kind: kind, Magnitude: magnitude}, nil
}

// Signed returns the stored amount: expenses are deductions, everything else is positive.
func (m Movement) Signed() decimal.Decimal {
	if m.Kind == KindExpense {
		return m.Magnitude.Neg()
	}
	return m.Magnitude
}

// Transaction is one row of the cash ledger.
type Transaction struct {
	ID              int64
	ActorID         int64
	ActorName       string
	Movement        Movement
	CategoryID      *int64
	CategoryName    string
	Comment         string
	OrderID         *int64
	Status          Status
	BatchRef        *uuid.UUID
	CreatedAt       time.Time
	ValidatedBy     *int64
	ValidatedByName string
	ValidatedAt     *time.Time
}

// Amount is the signed stored amount.
func (t Transaction) Amount() decimal.Decimal {
	return t.Movement.Signed()
}

// LinkedOrder resolves the order a transaction belongs to: the explicit reference first,
// the legacy comment suffix second.
func (t Transaction) LinkedOrder() (int64, bool) {
	if t.OrderID != nil && *t.OrderID > 0 {
		return *t.OrderID, true
	}
	return OrderRefFromComment(t.Comment)
}

// RecordInput describes a new cash movement.
type RecordInput struct {
	ActorID    int64
	Kind       Kind
	Amount     decimal.Decimal
	Comment    string
	CategoryID *int64
	OrderID    *int64
	CreatedAt  *time.Time
	RecordedBy int64
}

// EditInput carries the mutable fields of a movement. Amount is a magnitude.
type EditInput struct {
	Amount  decimal.Decimal
	Comment string
}

// DateRange is an inclusive range of calendar days formatted YYYY-MM-DD.
type DateRange struct {
	From string
	To   string
}

const dayLayout = "2006-01-02"

// Day returns a range covering a single day.
func Day(day string) DateRange {
	return DateRange{From: day, To: day}
}

// Bounds returns the half-open instant interval [start, end) covered by the range in loc.
// Missing ends are open.
func (r DateRange) Bounds(loc *time.Location) (start, end *time.Time, err error) {
	if loc == nil {
		loc = time.UTC
	}
	if r.From != "" {
		from, perr := time.ParseInLocation(dayLayout, r.From, loc)
		if perr != nil {
			return nil, nil, shared.Validation("invalid start date %q", r.From)
		}
		start = &from
	}
	if r.To != "" {
		to, perr := time.ParseInLocation(dayLayout, r.To, loc)
		if perr != nil {
			return nil, nil, shared.Validation("invalid end date %q", r.To)
		}
		to = to.AddDate(0, 0, 1)
		end = &to
	}
	if start != nil && end != nil && !start.Before(*end) {
		return nil, nil, shared.Validation("start date %s is after end date %s", r.From, r.To)
	}
	return start, end, nil
}

// Window is a resolved DateRange.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && !t.Before(*w.End) {
		return false
	}
	return true
}

// ListFilter narrows ledger listings.
type ListFilter struct {
	Kind    Kind
	ActorID int64
	Window  Window
	Search  string
}

// ActorSummary aggregates one deliveryman's remittances over a window.
type ActorSummary struct {
	ActorID         int64
	ActorName       string
	PendingCount    int
	PendingAmount   decimal.Decimal
	ConfirmedCount  int
	ConfirmedAmount decimal.Decimal
}

// RemittanceDetail is a remittance joined with the context of its linked order.
type RemittanceDetail struct {
	Transaction
	LinkedOrderID    *int64
	DeliveryLocation string
	ExpeditionFee    decimal.Decimal
	ShopName         string
	ItemNames        string
}

// CategoryType groups expense categories.
type CategoryType string

const (
	CategoryDeliverymanCharge CategoryType = "deliveryman_charge"
	CategoryCompanyCharge     CategoryType = "company_charge"
)

// Category is an expense category.
type Category struct {
	ID   int64
	Name string
	Type CategoryType
}

// ConfirmInput selects the pending remittances a deliveryman hands over at once.
type ConfirmInput struct {
	TransactionIDs []int64
	PaidAmount     decimal.Decimal
	ValidatedBy    int64
}

// ConfirmResult reports the outcome of a batch confirmation.
type ConfirmResult struct {
	DeliverymanID  int64
	TransactionIDs []int64
	Expected       decimal.Decimal
	Paid           decimal.Decimal
	Difference     decimal.Decimal
	Shortfall      decimal.Decimal
	ShortfallID    *int64
	BatchRef       uuid.UUID
}

// ShortfallStatus is the lifecycle of a shortfall.
type ShortfallStatus string

const (
	ShortfallOpen    ShortfallStatus = "open"
	ShortfallSettled ShortfallStatus = "settled"
)

// Shortfall is money a deliveryman owes after handing over less than expected.
type Shortfall struct {
	ID              int64
	DeliverymanID   int64
	DeliverymanName string
	InitialAmount   decimal.Decimal
	Amount          decimal.Decimal
	Comment         string
	Status          ShortfallStatus
	CreatedBy       int64
	CreatedAt       time.Time
	SettledAt       *time.Time
}

// ShortfallFilter narrows shortfall listings.
type ShortfallFilter struct {
	Status ShortfallStatus
	Search string
}

// SettleInput is one settlement payment against a shortfall.
type SettleInput struct {
	ShortfallID int64
	Amount      decimal.Decimal
	UserID      int64
}

// Settlement records a payment against a shortfall.
type Settlement struct {
	ID          int64
	ShortfallID int64
	Amount      decimal.Decimal
	SettledBy   int64
	SettledAt   time.Time
}

// CloseInput is the end-of-day cash count.
type CloseInput struct {
	Date       string
	ActualCash decimal.Decimal
	Comment    string
	UserID     int64
}

// Closing is an immutable cash drawer snapshot.
type Closing struct {
	ID           int64
	ClosingDate  string
	ExpectedCash decimal.Decimal
	ActualCash   decimal.Decimal
	Difference   decimal.Decimal
	Comment      string
	CreatedBy    int64
	CreatedAt    time.Time
}

// Totals are the raw sums behind the cash metrics.
type Totals struct {
	Collected    decimal.Decimal
	Expenses     decimal.Decimal
	Withdrawals  decimal.Decimal
	DebtsSettled decimal.Decimal
}

// Metrics summarises cash movements over a window.
type Metrics struct {
	TotalCollected    decimal.Decimal
	TotalExpenses     decimal.Decimal
	TotalWithdrawals  decimal.Decimal
	TotalDebtsSettled decimal.Decimal
	CashOnHand        decimal.Decimal
}

// MetricsFrom applies the cash-on-hand formula. Withdrawals are part of TotalExpenses and are
// subtracted once more on their own.
func MetricsFrom(t Totals) Metrics {
	return Metrics{
		TotalCollected:    t.Collected,
		TotalExpenses:     t.Expenses,
		TotalWithdrawals:  t.Withdrawals,
		TotalDebtsSettled: t.DebtsSettled,
		CashOnHand:        t.Collected.Add(t.DebtsSettled).Sub(t.Expenses).Sub(t.Withdrawals),
	}
}
