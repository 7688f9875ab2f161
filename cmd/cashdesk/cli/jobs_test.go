package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lastmile/cashdesk/jobs"
)

func TestTaskForBuildsSupportedJobs(t *testing.T) {
	task, err := TaskFor(jobs.TaskStaleRemittanceScan, 72*time.Hour)
	require.NoError(t, err)
	var scan jobs.StaleRemittanceScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &scan))
	require.Equal(t, 72*time.Hour, scan.OlderThan)

	task, err = TaskFor(jobs.TaskBalanceIntegrity, 0, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	var window jobs.BalanceIntegrityPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &window))
	require.Equal(t, jobs.BalanceIntegrityPayload{From: "2026-03-01", To: "2026-03-31"}, window)

	task, err = TaskFor(jobs.TaskIdempotencyCleanup, 0)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())
}

func TestTaskForRejects(t *testing.T) {
	_, err := TaskFor(jobs.TaskShortfallRaised, 0)
	require.Error(t, err)

	_, err = TaskFor(jobs.TaskBalanceIntegrity, 0, "2026-03-01")
	require.Error(t, err)
}
