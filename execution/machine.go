package execution

import (
	"context"
	"fmt"
	"log/slog"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/workflow"
)

// Emitter receives execution lifecycle signals. The observability package
// provides the real implementation; a nop is used when none is wired.
type Emitter interface {
	ExecutionCreated(ctx context.Context, e *Execution)
	ExecutionTransitioned(ctx context.Context, e *Execution, from, to Status)
}

type nopEmitter struct{}

func (nopEmitter) ExecutionCreated(context.Context, *Execution)                      {}
func (nopEmitter) ExecutionTransitioned(context.Context, *Execution, Status, Status) {}

// Machine validates and applies execution lifecycle transitions on top of
// the store's conditional primitives.
type Machine struct {
	store     Store
	workflows workflow.Store
	emitter   Emitter
	logger    *slog.Logger
}

// NewMachine creates an execution machine.
func NewMachine(store Store, workflows workflow.Store, logger *slog.Logger) *Machine {
	return &Machine{
		store:     store,
		workflows: workflows,
		emitter:   nopEmitter{},
		logger:    logger.With("component", "execution"),
	}
}

// SetEmitter installs the lifecycle emitter. Must be called before use.
func (m *Machine) SetEmitter(e Emitter) {
	if e != nil {
		m.emitter = e
	}
}

// CreateInput carries the caller-supplied fields for a new execution.
type CreateInput struct {
	ProjectID    tenant.ProjectID
	WorkflowID   string
	DeploymentID string
	Payload      []byte
	ParentID     *id.ExecutionID
}

// Create validates the target registration and persists a new execution in
// the queued state. The pending state is never visible outside this call.
func (m *Machine) Create(ctx context.Context, in CreateInput) (*Execution, error) {
	if in.ProjectID.IsZero() {
		return nil, polos.ErrMissingProject
	}
	if in.WorkflowID == "" || in.DeploymentID == "" {
		return nil, polos.NewError(polos.KindInvalidArgument, "workflow id and deployment id are required")
	}

	reg, err := m.workflows.GetRegistration(ctx, in.ProjectID, in.WorkflowID, in.DeploymentID)
	if err != nil {
		return nil, err
	}
	dep, err := m.workflows.GetDeployment(ctx, in.ProjectID, reg.DeploymentID)
	if err != nil {
		return nil, err
	}
	if dep.Status != workflow.DeploymentActive {
		return nil, polos.Errorf(polos.KindInvalidArgument, "deployment %s is not active", dep.ID)
	}

	e := &Execution{
		Entity:       polos.NewEntity(),
		ID:           id.NewExecutionID(),
		ProjectID:    in.ProjectID,
		WorkflowID:   in.WorkflowID,
		DeploymentID: in.DeploymentID,
		Status:       StatusQueued,
		Payload:      in.Payload,
		ParentID:     in.ParentID,
	}
	if err := m.store.CreateExecution(ctx, e); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	m.emitter.ExecutionCreated(ctx, e)
	m.logger.DebugContext(ctx, "execution created",
		"execution_id", e.ID, "workflow_id", e.WorkflowID, "seq", e.Seq)
	return e, nil
}

// Get retrieves an execution by id within the project.
func (m *Machine) Get(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) (*Execution, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	return m.store.GetExecution(ctx, project, execID)
}

// Transition applies a validated state transition. Returns
// polos.ErrAlreadyTerminal when the execution has finished, and
// polos.ErrInvalidTransition for an illegal edge.
func (m *Machine) Transition(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, to Status) error {
	e, err := m.store.GetExecution(ctx, project, execID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return polos.ErrAlreadyTerminal
	}
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: %s -> %s", polos.ErrInvalidTransition, e.Status, to)
	}

	ok, err := m.store.TransitionExecution(ctx, project, execID, e.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race; re-read so the error names the actual state.
		cur, gerr := m.store.GetExecution(ctx, project, execID)
		if gerr != nil {
			return gerr
		}
		if cur.Status.Terminal() {
			return polos.ErrAlreadyTerminal
		}
		return fmt.Errorf("%w: %s -> %s", polos.ErrInvalidTransition, cur.Status, to)
	}

	m.emitter.ExecutionTransitioned(ctx, e, e.Status, to)
	m.logger.DebugContext(ctx, "execution transitioned",
		"execution_id", execID, "from", e.Status, "to", to)
	return nil
}

// Complete records a successful result. Only a running execution may
// complete.
func (m *Machine) Complete(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, result []byte) error {
	e, err := m.store.GetExecution(ctx, project, execID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return polos.ErrAlreadyTerminal
	}
	if e.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", polos.ErrInvalidTransition, e.Status, StatusCompleted)
	}
	ok, err := m.store.CompleteExecution(ctx, project, execID, result)
	if err != nil {
		return err
	}
	if !ok {
		return polos.ErrAlreadyTerminal
	}
	m.emitter.ExecutionTransitioned(ctx, e, StatusRunning, StatusCompleted)
	m.logger.InfoContext(ctx, "execution completed", "execution_id", execID)
	return nil
}

// Fail records a failure from any non-terminal state.
func (m *Machine) Fail(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, msg string) error {
	e, err := m.store.GetExecution(ctx, project, execID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return polos.ErrAlreadyTerminal
	}
	ok, err := m.store.FailExecution(ctx, project, execID, msg)
	if err != nil {
		return err
	}
	if !ok {
		return polos.ErrAlreadyTerminal
	}
	m.emitter.ExecutionTransitioned(ctx, e, e.Status, StatusFailed)
	m.logger.InfoContext(ctx, "execution failed", "execution_id", execID, "error", msg)
	return nil
}

// Cancel moves a non-terminal execution to cancelled. Cancelling a waiting
// execution abandons its wait step; the wait manager skips steps whose
// execution is no longer waiting.
func (m *Machine) Cancel(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID) error {
	return m.Transition(ctx, project, execID, StatusCancelled)
}
