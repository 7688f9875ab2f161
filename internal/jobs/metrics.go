package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	stalePending  *prometheus.GaugeVec
	balanceRepair prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetStalePending publishes how many deliverymen hold stale pending remittances and for how much.
func (m *Metrics) SetStalePending(deliverymen int, amount float64) {
	if m == nil {
		return
	}
	m.stalePending.WithLabelValues("deliverymen").Set(float64(deliverymen))
	m.stalePending.WithLabelValues("amount").Set(amount)
}

// AddBalanceRepairs counts daily balance rows whose debt had to be recomputed.
func (m *Metrics) AddBalanceRepairs(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.balanceRepair.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cashdesk_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cashdesk_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cashdesk_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	stale := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cashdesk_stale_pending_remittances",
		Help: "Pending remittances older than the configured age, by measure.",
	}, []string{"measure"})
	repairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cashdesk_balance_debt_repairs_total",
		Help: "Daily balance rows whose debt was recomputed by the integrity check.",
	})
	registerer.MustRegister(runs, failures, duration, stale, repairs)
	return &Metrics{runs: runs, failures: failures, duration: duration, stalePending: stale, balanceRepair: repairs}
}
