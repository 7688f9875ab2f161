package cash

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Instruments exposes Prometheus collectors for cash desk operations.
type Instruments struct {
	confirmed       prometheus.Counter
	batches         prometheus.Counter
	shortfalls      prometheus.Counter
	shortfallAmount prometheus.Counter
	settlements     *prometheus.CounterVec
	closingDiff     prometheus.Gauge
}

// NewInstruments registers the cash collectors against registerer.
func NewInstruments(registerer prometheus.Registerer) *Instruments {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	in := &Instruments{
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cashdesk_remittances_confirmed_total",
			Help: "Remittance transactions moved to confirmed.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cashdesk_confirmation_batches_total",
			Help: "Confirmation batches committed.",
		}),
		shortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cashdesk_shortfalls_raised_total",
			Help: "Shortfalls created by confirmation batches.",
		}),
		shortfallAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cashdesk_shortfall_amount_total",
			Help: "Cumulated amount of raised shortfalls.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashdesk_shortfall_settlements_total",
			Help: "Shortfall settlement payments partitioned by outcome.",
		}, []string{"outcome"}),
		closingDiff: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cashdesk_last_closing_difference",
			Help: "Counted minus expected cash of the latest closing.",
		}),
	}
	registerer.MustRegister(in.confirmed, in.batches, in.shortfalls, in.shortfallAmount, in.settlements, in.closingDiff)
	return in
}

func (in *Instruments) observeConfirmation(res ConfirmResult) {
	if in == nil {
		return
	}
	in.batches.Inc()
	in.confirmed.Add(float64(len(res.TransactionIDs)))
	if res.ShortfallID != nil {
		in.shortfalls.Inc()
		in.shortfallAmount.Add(res.Shortfall.InexactFloat64())
	}
}

func (in *Instruments) observeSettlement(s Shortfall) {
	if in == nil {
		return
	}
	in.settlements.WithLabelValues(string(s.Status)).Inc()
}

func (in *Instruments) observeClosing(diff decimal.Decimal) {
	if in == nil {
		return
	}
	in.closingDiff.Set(diff.InexactFloat64())
}
