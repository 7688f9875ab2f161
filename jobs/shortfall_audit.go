package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lastmile/cashdesk/internal/cash"
	jobmetrics "github.com/lastmile/cashdesk/internal/jobs"
	"github.com/lastmile/cashdesk/internal/shared"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// ShortfallAuditJob writes the audit trail for shortfalls raised by confirmation batches.
type ShortfallAuditJob struct {
	Audit   AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewShortfallAuditJob initialises the handler.
func NewShortfallAuditJob(audit AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *ShortfallAuditJob {
	return &ShortfallAuditJob{
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle records one shortfall_raised audit entry.
func (j *ShortfallAuditJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Audit == nil {
		return errors.New("shortfall audit: handler not configured")
	}
	var evt cash.ShortfallRaised
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	if evt.ShortfallID <= 0 || evt.DeliverymanID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskShortfallRaised)
	defer func() { err = tracker.End(err) }()

	err = j.Audit.Record(ctx, shared.AuditLog{
		ActorID:  evt.CreatedBy,
		Action:   shared.AuditShortfallRaised,
		Entity:   "deliveryman_shortfall",
		EntityID: strconvID(evt.ShortfallID),
		Meta: map[string]any{
			"deliveryman_id":  evt.DeliverymanID,
			"amount":          evt.Amount.StringFixed(2),
			"transaction_ids": evt.TransactionIDs,
			"batch_ref":       evt.BatchRef.String(),
		},
		At: j.clock(),
	})
	if err != nil {
		return err
	}
	j.logger().Warn("deliveryman shortfall raised",
		slog.Int64("shortfall_id", evt.ShortfallID),
		slog.Int64("deliveryman_id", evt.DeliverymanID),
		slog.String("amount", evt.Amount.StringFixed(2)),
		slog.String("batch_ref", evt.BatchRef.String()),
	)
	return nil
}

func (j *ShortfallAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func strconvID(id int64) string {
	return strconv.FormatInt(id, 10)
}
