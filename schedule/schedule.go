// Package schedule computes due schedules and creates new executions from
// them on a cron cadence.
package schedule

import (
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Status is a schedule's lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Schedule is one recurring trigger for a workflow. (workflow_id, key,
// project_id) identifies a logical trigger; re-creating with the same key
// updates it in place.
type Schedule struct {
	polos.Entity

	ID           id.ScheduleID    `json:"id"`
	ProjectID    tenant.ProjectID `json:"project_id"`
	WorkflowID   string           `json:"workflow_id"`
	DeploymentID string           `json:"deployment_id"`

	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`

	// Key is the idempotency key, unique per workflow.
	Key string `json:"key"`

	Status Status `json:"status"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
}
