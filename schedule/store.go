package schedule

import (
	"context"
	"time"

	"github.com/polos-dev/polos-sub001/tenant"
)

// Store defines the persistence contract for schedules.
type Store interface {
	// UpsertSchedule creates or updates the schedule identified by
	// (workflow_id, key) within the project and returns the stored
	// record. An update keeps the existing id.
	UpsertSchedule(ctx context.Context, s *Schedule) (*Schedule, error)

	// GetSchedule retrieves a schedule by workflow id and key.
	GetSchedule(ctx context.Context, project tenant.ProjectID, workflowID, key string) (*Schedule, error)

	// SetScheduleStatus pauses or resumes a schedule.
	SetScheduleStatus(ctx context.Context, project tenant.ProjectID, workflowID, key string, status Status) error

	// ListDueSchedules returns up to limit active schedules with
	// next_run_at at or before now, across all projects. Sweeper use
	// only.
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)

	// ClaimSchedule atomically advances the schedule from the observed
	// next_run_at to the new one, setting last_run_at. Returns
	// (false, nil) when next_run_at no longer matches, meaning another
	// sweeper already fired this instant.
	ClaimSchedule(ctx context.Context, s *Schedule, lastRun, nextRun time.Time) (bool, error)
}
