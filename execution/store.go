package execution

import (
	"context"

	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Store defines the persistence contract for executions.
//
// Every conditional operation returns (false, nil) when the execution was
// not in the expected state — another concurrent actor already acted, and
// the caller should skip the record, not treat it as an error.
type Store interface {
	// CreateExecution persists a new execution and assigns its creation
	// sequence (Seq is filled in on return).
	CreateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution by id within the project.
	// Returns polos.ErrExecutionNotFound for unknown ids and for ids
	// outside the project, indistinguishably.
	GetExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) (*Execution, error)

	// TransitionExecution atomically moves the execution from → to.
	// It does not validate edge legality; callers go through the Machine.
	TransitionExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, from, to Status) (bool, error)

	// ClaimExecution atomically moves queued → running and records the
	// claiming worker, but only while the worker's in-flight count is
	// below maxConcurrent. The capacity check and the status change are
	// one atomic operation; concurrent claimers for the same worker
	// cannot overshoot its limit. The claim-before-dispatch guard.
	ClaimExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, workerID id.WorkerID, maxConcurrent int) (bool, error)

	// ReleaseExecution atomically moves running → queued and clears the
	// worker, used when a push times out or is not acknowledged.
	ReleaseExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) (bool, error)

	// CompleteExecution atomically moves running → completed with the
	// worker-reported result.
	CompleteExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, result []byte) (bool, error)

	// FailExecution atomically moves the execution to failed from any
	// non-terminal state, recording the error message.
	FailExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, msg string) (bool, error)

	// ListQueuedExecutions returns up to limit queued executions across
	// all projects, ordered by creation sequence. Requires an elevated
	// context; used only by the dispatch sweeper.
	ListQueuedExecutions(ctx context.Context, limit int) ([]*Execution, error)

	// CountRunningByWorker returns the number of executions currently
	// running on the given worker (its in-flight count).
	CountRunningByWorker(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID) (int, error)
}
