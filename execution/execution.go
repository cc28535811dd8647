// Package execution owns the authoritative lifecycle of an execution.
// All other components mutate executions only through the Machine and the
// conditional-transition store primitives defined here.
package execution

import (
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	// StatusPending exists transiently at creation, before validation.
	StatusPending Status = "pending"
	// StatusQueued means eligible for dispatch.
	StatusQueued Status = "queued"
	// StatusRunning means claimed by a worker.
	StatusRunning Status = "running"
	// StatusWaiting means suspended on a wait step.
	StatusWaiting Status = "waiting"
	// StatusCompleted is terminal success.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal failure.
	StatusFailed Status = "failed"
	// StatusCancelled is terminal operator cancellation.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// transitions is the legal edge set of the state machine. An execution
// may cycle running ⇄ waiting ⇄ queued arbitrarily many times.
var transitions = map[Status][]Status{
	StatusPending: {StatusQueued, StatusFailed, StatusCancelled},
	StatusQueued:  {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusWaiting, StatusCompleted, StatusFailed, StatusCancelled},
	StatusWaiting: {StatusQueued, StatusCancelled, StatusFailed},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Execution is one run instance of a registered workflow, agent, or tool.
type Execution struct {
	polos.Entity

	ID           id.ExecutionID   `json:"id"`
	ProjectID    tenant.ProjectID `json:"project_id"`
	WorkflowID   string           `json:"workflow_id"`
	DeploymentID string           `json:"deployment_id"`
	Status       Status           `json:"status"`

	// Payload is the opaque structured input; the core stores and
	// forwards it, never interprets it.
	Payload []byte `json:"payload,omitempty"`

	// Result is present only when the execution completed.
	Result []byte `json:"result,omitempty"`

	// Error is present only when the execution failed.
	Error string `json:"error,omitempty"`

	// ParentID links a sub-execution to the execution that spawned it.
	ParentID *id.ExecutionID `json:"parent_execution_id,omitempty"`

	// WorkerID is set while a worker holds the execution.
	WorkerID id.WorkerID `json:"worker_id,omitempty"`

	// Seq is the monotonically increasing creation sequence, assigned by
	// the store. Dispatch orders queued executions by Seq for fairness.
	Seq int64 `json:"seq"`

	// StartedAt is set on the first transition to running.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt is set on transition to a terminal state.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
