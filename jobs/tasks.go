package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lastmile/cashdesk/internal/cash"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries money-related events that must not wait behind maintenance work.
	QueueCritical = "critical"

	// TaskShortfallRaised records the audit trail of a shortfall created by a confirmation batch.
	TaskShortfallRaised = "cash:shortfall_raised"
	// TaskStaleRemittanceScan reports deliverymen sitting on old pending remittances.
	TaskStaleRemittanceScan = "cash:stale_remittance_scan"
	// TaskBalanceIntegrity recomputes drifted daily balance debts.
	TaskBalanceIntegrity = "balance:integrity_check"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "cash:idempotency_cleanup"
)

// NewShortfallRaisedTask wraps the event published by the cash service.
func NewShortfallRaisedTask(evt cash.ShortfallRaised) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskShortfallRaised, data, asynq.MaxRetry(10)), nil
}

// StaleRemittanceScanPayload configures the scan. A zero age uses the job default.
type StaleRemittanceScanPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewStaleRemittanceScanTask constructs the scan task.
func NewStaleRemittanceScanTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(StaleRemittanceScanPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStaleRemittanceScan, data), nil
}

// BalanceIntegrityPayload bounds the days checked, YYYY-MM-DD inclusive. Empty bounds fall back
// to the trailing window of the job.
type BalanceIntegrityPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// NewBalanceIntegrityTask constructs the integrity check task.
func NewBalanceIntegrityTask(from, to string) (*asynq.Task, error) {
	data, err := json.Marshal(BalanceIntegrityPayload{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceIntegrity, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
