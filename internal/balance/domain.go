package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the delivery order lifecycle as seen by the balance.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusInProgress     OrderStatus = "in_progress"
	StatusReported       OrderStatus = "reported"
	StatusReadyForPickup OrderStatus = "ready_for_pickup"
	StatusEnRoute        OrderStatus = "en_route"
	StatusReturnDeclared OrderStatus = "return_declared"
	StatusReturned       OrderStatus = "returned"
	StatusDelivered      OrderStatus = "delivered"
	StatusFailedDelivery OrderStatus = "failed_delivery"
	StatusCancelled      OrderStatus = "cancelled"
)

// Final reports whether the status ends the delivery attempt.
func (s OrderStatus) Final() bool {
	switch s {
	case StatusDelivered, StatusFailedDelivery, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusReported, StatusReadyForPickup, StatusEnRoute,
		StatusReturnDeclared, StatusReturned, StatusDelivered, StatusFailedDelivery, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus describes how the customer paid.
type PaymentStatus string

const (
	PaymentPending        PaymentStatus = "pending"
	PaymentCash           PaymentStatus = "cash"
	PaymentPaidToSupplier PaymentStatus = "paid_to_supplier"
	PaymentCancelled      PaymentStatus = "cancelled"
)

// OrderSnapshot is the financially relevant state of a delivery order at one instant.
type OrderSnapshot struct {
	ID             int64
	ShopID         int64
	DeliverymanID  int64
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	ArticleAmount  decimal.Decimal
	DeliveryFee    decimal.Decimal
	ExpeditionFee  decimal.Decimal
	AmountReceived decimal.NullDecimal
	BillPackaging  bool
	PackagingPrice decimal.Decimal
	CreatedAt      time.Time
}

// KeyIn returns the (shop, date) bucket the order counts against, with the date cut in loc.
func (o OrderSnapshot) KeyIn(loc *time.Location) Key {
	return Key{ShopID: o.ShopID, Date: DayIn(o.CreatedAt, loc)}
}

// CollectedCash is what the deliveryman holds for a cash-paid delivery.
func (o OrderSnapshot) CollectedCash() decimal.Decimal {
	return o.ArticleAmount.Add(o.DeliveryFee)
}

// OrderChange describes one order write. Old is nil on creation, New is nil on deletion.
type OrderChange struct {
	Old *OrderSnapshot
	New *OrderSnapshot
}

// Key identifies a daily balance row.
type Key struct {
	ShopID int64
	Date   string
}

const dayLayout = "2006-01-02"

// DayIn formats the calendar date of t in loc. A nil loc means UTC.
func DayIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}

// ParseDay parses a YYYY-MM-DD day into midnight UTC.
func ParseDay(day string) (time.Time, error) {
	return time.Parse(dayLayout, day)
}

// Impact is the contribution of one order, in its current status, to its daily balance.
type Impact struct {
	OrdersDelivered int
	RevenueArticles decimal.Decimal
	DeliveryFees    decimal.Decimal
	PackagingFees   decimal.Decimal
}

// Negate returns the impact with every component sign-flipped.
func (i Impact) Negate() Impact {
	return Impact{
		OrdersDelivered: -i.OrdersDelivered,
		RevenueArticles: i.RevenueArticles.Neg(),
		DeliveryFees:    i.DeliveryFees.Neg(),
		PackagingFees:   i.PackagingFees.Neg(),
	}
}

// IsZero reports whether the impact changes nothing.
func (i Impact) IsZero() bool {
	return i.OrdersDelivered == 0 && i.RevenueArticles.IsZero() && i.DeliveryFees.IsZero() && i.PackagingFees.IsZero()
}

// Delta is an additive change to one daily balance row.
type Delta struct {
	Key
	OrdersSent      int
	OrdersDelivered int
	RevenueArticles decimal.Decimal
	DeliveryFees    decimal.Decimal
	PackagingFees   decimal.Decimal
	ExpeditionFees  decimal.Decimal
}

// IsZero reports whether applying the delta would change nothing.
func (d Delta) IsZero() bool {
	return d.OrdersSent == 0 && d.OrdersDelivered == 0 && d.RevenueArticles.IsZero() &&
		d.DeliveryFees.IsZero() && d.PackagingFees.IsZero() && d.ExpeditionFees.IsZero()
}

func (d *Delta) addImpact(i Impact) {
	d.OrdersDelivered += i.OrdersDelivered
	d.RevenueArticles = d.RevenueArticles.Add(i.RevenueArticles)
	d.DeliveryFees = d.DeliveryFees.Add(i.DeliveryFees)
	d.PackagingFees = d.PackagingFees.Add(i.PackagingFees)
}

// DailyBalance aggregates a shop's financial activity for one calendar date.
type DailyBalance struct {
	ShopID          int64           `json:"shop_id"`
	Date            string          `json:"date"`
	OrdersSent      int             `json:"orders_sent"`
	OrdersDelivered int             `json:"orders_delivered"`
	RevenueArticles decimal.Decimal `json:"revenue_articles"`
	DeliveryFees    decimal.Decimal `json:"delivery_fees"`
	PackagingFees   decimal.Decimal `json:"packaging_fees"`
	ExpeditionFees  decimal.Decimal `json:"expedition_fees"`
	Debt            decimal.Decimal `json:"debt"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ExpectedDebt is what the shop owes for the day: fees not covered by collected article revenue.
func (b DailyBalance) ExpectedDebt() decimal.Decimal {
	owed := b.DeliveryFees.Add(b.PackagingFees).Add(b.ExpeditionFees).Sub(b.RevenueArticles)
	if owed.IsNegative() {
		return decimal.Zero
	}
	return owed
}

// Apply adds d to the balance counters without touching Debt.
func (b *DailyBalance) Apply(d Delta) {
	b.OrdersSent += d.OrdersSent
	b.OrdersDelivered += d.OrdersDelivered
	b.RevenueArticles = b.RevenueArticles.Add(d.RevenueArticles)
	b.DeliveryFees = b.DeliveryFees.Add(d.DeliveryFees)
	b.PackagingFees = b.PackagingFees.Add(d.PackagingFees)
	b.ExpeditionFees = b.ExpeditionFees.Add(d.ExpeditionFees)
}

// ListFilter narrows balance listings.
type ListFilter struct {
	ShopID int64
	From   string
	To     string
}
