// Package workflow holds the slice of the definition registry the core
// needs: deployments and workflow registrations. The surrounding CRUD
// surface for agents, tools, and builds lives outside the engine; the
// core only asks "is workflow X registered under deployment Y, and is it
// scheduled or event-triggered?".
package workflow

import (
	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Type distinguishes the kinds of runnable definitions.
type Type string

const (
	TypeWorkflow Type = "workflow"
	TypeAgent    Type = "agent"
	TypeTool     Type = "tool"
)

// DeploymentStatus is the lifecycle state of a deployment.
type DeploymentStatus string

const (
	DeploymentActive   DeploymentStatus = "active"
	DeploymentInactive DeploymentStatus = "inactive"
)

// Deployment is one versioned bundle of workflow/agent/tool definitions.
// The build collaborator creates it; the core only reads id and status.
type Deployment struct {
	polos.Entity

	ID        string           `json:"id"`
	ProjectID tenant.ProjectID `json:"project_id"`
	Status    DeploymentStatus `json:"status"`
}

// Registration declares that a workflow may be executed under a
// deployment, and whether it may be scheduled or event-triggered.
// (workflow_id, deployment_id, project_id) is unique.
type Registration struct {
	polos.Entity

	WorkflowID     string           `json:"workflow_id"`
	DeploymentID   string           `json:"deployment_id"`
	ProjectID      tenant.ProjectID `json:"project_id"`
	Type           Type             `json:"type"`
	TriggerOnEvent bool             `json:"trigger_on_event"`
	Scheduled      bool             `json:"scheduled"`
}
