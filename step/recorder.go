package step

import (
	"context"
	"log/slog"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Recorder is the service surface workers hit to memoize and replay step
// results.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a step recorder.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With("component", "step"),
	}
}

// Lookup returns the memoized output for a step key, or
// polos.ErrStepOutputNotFound when the step has not completed yet. Only
// successful outputs satisfy a lookup; a recorded failure means the step
// must run again.
func (r *Recorder) Lookup(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, stepKey string) (*Output, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	o, err := r.store.GetStepOutput(ctx, project, execID, stepKey)
	if err != nil {
		return nil, err
	}
	if !o.Success {
		return nil, polos.ErrStepOutputNotFound
	}
	return o, nil
}

// Record persists a step result. Recording the same successful step key
// twice is a no-op; the first result wins.
func (r *Recorder) Record(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, stepKey string, value []byte, stepErr string) (*Output, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	o := &Output{
		Entity:      polos.NewEntity(),
		ID:          id.NewStepID(),
		ProjectID:   project,
		ExecutionID: execID,
		StepKey:     stepKey,
		Success:     stepErr == "",
		Value:       value,
		Error:       stepErr,
	}
	if err := r.store.SaveStepOutput(ctx, o); err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "step recorded",
		"execution_id", execID, "step_key", stepKey, "success", o.Success)
	return o, nil
}

// CopyFromExecution memoizes a step with a value produced by another
// execution, recording the provenance. Used when a sub-execution's result
// becomes a step output of its parent. Both executions must belong to the
// same project; the store's tenant scoping enforces this.
func (r *Recorder) CopyFromExecution(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, stepKey string, sourceID id.ExecutionID, value []byte) (*Output, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	o := &Output{
		Entity:            polos.NewEntity(),
		ID:                id.NewStepID(),
		ProjectID:         project,
		ExecutionID:       execID,
		StepKey:           stepKey,
		Success:           true,
		Value:             value,
		SourceExecutionID: &sourceID,
	}
	if err := r.store.SaveStepOutput(ctx, o); err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "step copied",
		"execution_id", execID, "step_key", stepKey, "source_execution_id", sourceID)
	return o, nil
}

// List returns every output recorded for an execution.
func (r *Recorder) List(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) ([]*Output, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	return r.store.ListStepOutputs(ctx, project, execID)
}
