// Package step records memoized step outputs. A workflow re-executes its
// code from the top on every resume; completed steps short-circuit by
// replaying the recorded output instead of running again.
package step

import (
	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Output is the recorded result of one step within an execution.
// (execution_id, step_key) is unique; the step key is deterministic across
// replays of the same workflow code.
type Output struct {
	polos.Entity

	ID          id.StepID        `json:"id"`
	ProjectID   tenant.ProjectID `json:"project_id"`
	ExecutionID id.ExecutionID   `json:"execution_id"`
	StepKey     string           `json:"step_key"`

	// Success records whether the step finished. Failed attempts may be
	// recorded for diagnostics but never satisfy a replay lookup.
	Success bool `json:"success"`

	// Value is the opaque structured output of the step.
	Value []byte `json:"value,omitempty"`

	// Error holds the failure message when Success is false.
	Error string `json:"error,omitempty"`

	// SourceExecutionID is set when the output was copied from another
	// execution (a sub-execution feeding its parent's step).
	SourceExecutionID *id.ExecutionID `json:"source_execution_id,omitempty"`

	// OutputSchemaName optionally names the schema of Value for the
	// worker SDK; the core stores it verbatim.
	OutputSchemaName string `json:"output_schema_name,omitempty"`
}
