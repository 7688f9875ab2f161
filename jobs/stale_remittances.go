package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/lastmile/cashdesk/internal/cash"
	jobmetrics "github.com/lastmile/cashdesk/internal/jobs"
)

// DefaultStaleAfter is the age past which a pending remittance counts as stale.
const DefaultStaleAfter = 48 * time.Hour

// StaleSource lists pending remittances older than the given age, per deliveryman.
type StaleSource interface {
	StalePendingRemittances(ctx context.Context, age time.Duration) ([]cash.ActorSummary, error)
}

// StaleRemittanceJob reports deliverymen who have not handed in cash for a while.
type StaleRemittanceJob struct {
	Source     StaleSource
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	StaleAfter time.Duration
}

// NewStaleRemittanceJob initialises the scan handler.
func NewStaleRemittanceJob(source StaleSource, logger *slog.Logger, metrics *jobmetrics.Metrics, staleAfter time.Duration) *StaleRemittanceJob {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &StaleRemittanceJob{Source: source, Logger: logger, Metrics: metrics, StaleAfter: staleAfter}
}

// Handle runs the scan and publishes the totals as gauges.
func (j *StaleRemittanceJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("stale remittance scan: handler not configured")
	}
	var payload StaleRemittanceScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	age := payload.OlderThan
	if age <= 0 {
		age = j.StaleAfter
	}

	tracker := j.Metrics.Track(TaskStaleRemittanceScan)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.Duration("older_than", age))
	stale, err := j.Source.StalePendingRemittances(ctx, age)
	if err != nil {
		logger.Error("stale remittance scan failed", slog.Any("error", err))
		return err
	}

	total := decimal.Zero
	for _, s := range stale {
		total = total.Add(s.PendingAmount)
		logger.Warn("stale pending remittances",
			slog.Int64("deliveryman_id", s.ActorID),
			slog.String("deliveryman", s.ActorName),
			slog.Int("count", s.PendingCount),
			slog.String("amount", s.PendingAmount.StringFixed(2)),
		)
	}
	amount, _ := total.Float64()
	j.Metrics.SetStalePending(len(stale), amount)
	logger.Info("completed stale remittance scan",
		slog.Int("deliverymen", len(stale)),
		slog.String("amount", total.StringFixed(2)),
	)
	return nil
}

func (j *StaleRemittanceJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
