// Package store defines the composite persistence interface the engine
// runs against. Each subsystem declares its own narrow store contract;
// a backend implements all of them behind one value.
package store

import (
	"context"

	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/schedule"
	"github.com/polos-dev/polos-sub001/step"
	"github.com/polos-dev/polos-sub001/wait"
	"github.com/polos-dev/polos-sub001/worker"
	"github.com/polos-dev/polos-sub001/workflow"
)

// Store is the full persistence surface of the engine.
type Store interface {
	execution.Store
	step.Store
	wait.Store
	eventlog.Store
	worker.Store
	schedule.Store
	workflow.Store

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
