package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImpactOf returns what the order contributes to its daily balance in its current status.
// Only delivered and failed deliveries move money; every other status is neutral.
func ImpactOf(o OrderSnapshot) Impact {
	switch o.Status {
	case StatusDelivered:
		impact := Impact{
			OrdersDelivered: 1,
			RevenueArticles: o.ArticleAmount,
			DeliveryFees:    o.DeliveryFee,
			PackagingFees:   decimal.Zero,
		}
		if o.BillPackaging {
			impact.PackagingFees = o.PackagingPrice
		}
		return impact
	case StatusFailedDelivery:
		impact := zeroImpact()
		if o.AmountReceived.Valid {
			impact.RevenueArticles = o.AmountReceived.Decimal
		}
		return impact
	default:
		return zeroImpact()
	}
}

func zeroImpact() Impact {
	return Impact{RevenueArticles: decimal.Zero, DeliveryFees: decimal.Zero, PackagingFees: decimal.Zero}
}

// Plan computes the additive deltas an order write implies, one per touched (shop, date) pair,
// old pair first, with dates cut in loc. Applying the plan for a change and then for its inverse
// nets to zero.
func Plan(change OrderChange, loc *time.Location) []Delta {
	var plan []Delta
	index := make(map[Key]int, 2)
	at := func(k Key) *Delta {
		if i, ok := index[k]; ok {
			return &plan[i]
		}
		index[k] = len(plan)
		plan = append(plan, newDelta(k))
		return &plan[len(plan)-1]
	}

	if old := change.Old; old != nil {
		d := at(old.KeyIn(loc))
		d.addImpact(ImpactOf(*old).Negate())
		d.OrdersSent--
		d.ExpeditionFees = d.ExpeditionFees.Sub(old.ExpeditionFee)
	}
	if next := change.New; next != nil {
		d := at(next.KeyIn(loc))
		d.OrdersSent++
		d.ExpeditionFees = d.ExpeditionFees.Add(next.ExpeditionFee)
		d.addImpact(ImpactOf(*next))
	}
	return plan
}

func newDelta(k Key) Delta {
	return Delta{
		Key:             k,
		RevenueArticles: decimal.Zero,
		DeliveryFees:    decimal.Zero,
		PackagingFees:   decimal.Zero,
		ExpeditionFees:  decimal.Zero,
	}
}
