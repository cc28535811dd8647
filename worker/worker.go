// Package worker tracks worker liveness and capacity and dispatches queued
// executions to workers with free slots.
package worker

import (
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Mode is how a worker receives work.
type Mode string

const (
	// ModePush means the orchestrator delivers work to the worker's
	// endpoint.
	ModePush Mode = "push"
	// ModePull means the worker polls for work; the polling contract
	// lives outside this core, the registry only records the mode.
	ModePull Mode = "pull"
)

// Status is a worker's liveness state.
type Status string

const (
	// StatusOffline is the initial state, and the state after a
	// heartbeat timeout.
	StatusOffline Status = "offline"
	// StatusOnline means the worker heartbeated within the liveness
	// window.
	StatusOnline Status = "online"
)

// Worker is one registered execution host. Workers are never deleted,
// only marked offline.
type Worker struct {
	polos.Entity

	ID        id.WorkerID      `json:"id"`
	ProjectID tenant.ProjectID `json:"project_id"`

	// Capabilities is an opaque descriptor the core stores verbatim.
	Capabilities []byte `json:"capabilities,omitempty"`

	Mode Mode `json:"mode"`

	// PushEndpointURL is where push deliveries go. Required for push
	// mode.
	PushEndpointURL string `json:"push_endpoint_url,omitempty"`

	// MaxConcurrent caps the worker's in-flight executions.
	MaxConcurrent int `json:"max_concurrent_executions"`

	// CurrentDeploymentID is the deployment whose definitions the worker
	// is serving; dispatch only offers it executions for that deployment.
	CurrentDeploymentID string `json:"current_deployment_id"`

	Status        Status    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
