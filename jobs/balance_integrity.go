package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lastmile/cashdesk/internal/balance"
	jobmetrics "github.com/lastmile/cashdesk/internal/jobs"
)

const dateLayout = "2006-01-02"

// DebtResyncer recomputes drifted daily balance debts over an inclusive day range.
type DebtResyncer interface {
	ResyncDebt(ctx context.Context, from, to string) ([]balance.DailyBalance, error)
}

// BalanceIntegrityJob checks that stored debts still match the revenue and fee columns.
type BalanceIntegrityJob struct {
	Balances DebtResyncer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	// Days is the trailing window checked when the payload carries no bounds.
	Days     int
	Location *time.Location
	clock    func() time.Time
}

// NewBalanceIntegrityJob initialises the handler.
func NewBalanceIntegrityJob(balances DebtResyncer, logger *slog.Logger, metrics *jobmetrics.Metrics, loc *time.Location) *BalanceIntegrityJob {
	if loc == nil {
		loc = time.UTC
	}
	return &BalanceIntegrityJob{
		Balances: balances,
		Logger:   logger,
		Metrics:  metrics,
		Days:     7,
		Location: loc,
		clock:    time.Now,
	}
}

// Handle resyncs every drifted row of the window.
func (j *BalanceIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Balances == nil {
		return errors.New("balance integrity: handler not configured")
	}
	var payload BalanceIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	from, to, err := j.window(payload)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskBalanceIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("from", from), slog.String("to", to))
	repaired, err := j.Balances.ResyncDebt(ctx, from, to)
	if err != nil {
		logger.Error("balance integrity check failed", slog.Any("error", err))
		return err
	}
	for _, b := range repaired {
		logger.Warn("daily balance debt drifted",
			slog.Int64("shop_id", b.ShopID),
			slog.String("date", b.Date),
			slog.String("stored_debt", b.Debt.StringFixed(2)),
		)
	}
	j.Metrics.AddBalanceRepairs(len(repaired))
	logger.Info("completed balance integrity check", slog.Int("repaired", len(repaired)))
	return nil
}

func (j *BalanceIntegrityJob) window(p BalanceIntegrityPayload) (string, string, error) {
	if p.From != "" || p.To != "" {
		from, err := time.Parse(dateLayout, p.From)
		if err != nil {
			return "", "", err
		}
		to, err := time.Parse(dateLayout, p.To)
		if err != nil {
			return "", "", err
		}
		if to.Before(from) {
			return "", "", errors.New("balance integrity: to before from")
		}
		return p.From, p.To, nil
	}
	days := j.Days
	if days <= 0 {
		days = 7
	}
	today := j.clock().In(j.Location)
	return today.AddDate(0, 0, -days).Format(dateLayout), today.Format(dateLayout), nil
}

func (j *BalanceIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
