package wait

import (
	"context"
	"time"

	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Store defines the persistence contract for wait steps.
//
// Suspend and Resume are transactional with the execution status change:
// the wait step row and the waiting/queued status always agree.
type Store interface {
	// SuspendExecution atomically inserts the wait step and moves the
	// execution running → waiting. Returns (false, nil) when the
	// execution was not running.
	SuspendExecution(ctx context.Context, s *Step) (bool, error)

	// ResumeWaitStep atomically records the trigger as the wait step's
	// memoized output, deletes the wait step, and moves the execution
	// waiting → queued. Returns (false, nil) when the step no longer
	// exists or the execution is not waiting; resuming twice is a no-op,
	// the first trigger wins.
	ResumeWaitStep(ctx context.Context, project tenant.ProjectID, waitID id.WaitID, trigger Trigger) (bool, error)

	// GetWaitStep retrieves a wait step by id.
	GetWaitStep(ctx context.Context, project tenant.ProjectID, waitID id.WaitID) (*Step, error)

	// GetPendingWait returns the pending wait step for an execution, if
	// any.
	GetPendingWait(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) (*Step, error)

	// ListDueTimeWaits returns up to limit time waits whose deadline is
	// at or before now, across all projects. Sweeper use only.
	ListDueTimeWaits(ctx context.Context, now time.Time, limit int) ([]*Step, error)

	// ListEventWaits returns the event waits on a topic within a project,
	// oldest first.
	ListEventWaits(ctx context.Context, project tenant.ProjectID, topic string) ([]*Step, error)

	// ListPendingEventWaits returns up to limit pending event waits across
	// all projects, oldest first. Sweeper use only.
	ListPendingEventWaits(ctx context.Context, limit int) ([]*Step, error)

	// AdvanceWaitCursor moves an event wait's topic cursor to seq, so the
	// catch-up sweep does not re-read events that already failed to match.
	// Moving the cursor backward is a no-op.
	AdvanceWaitCursor(ctx context.Context, project tenant.ProjectID, waitID id.WaitID, seq int64) error

	// DeleteWaitStep removes a wait step without resuming, used when the
	// execution was cancelled out from under it.
	DeleteWaitStep(ctx context.Context, project tenant.ProjectID, waitID id.WaitID) error
}
