package step

import (
	"context"

	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Store defines the persistence contract for step outputs.
type Store interface {
	// SaveStepOutput upserts the output for (execution_id, step_key).
	// A successful output is immutable: once Success is true the record
	// is never overwritten, and the call is a no-op.
	SaveStepOutput(ctx context.Context, o *Output) error

	// GetStepOutput retrieves the output for a step key within an
	// execution. Returns polos.ErrStepOutputNotFound when absent.
	GetStepOutput(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, stepKey string) (*Output, error)

	// ListStepOutputs returns all outputs recorded for an execution,
	// ordered by creation time.
	ListStepOutputs(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) ([]*Output, error)
}
