package worker

import (
	"context"
	"time"

	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Store defines the persistence contract for workers.
type Store interface {
	// UpsertWorker registers or re-registers a worker. Registration
	// leaves the worker offline; only a heartbeat brings it online.
	UpsertWorker(ctx context.Context, w *Worker) error

	// GetWorker retrieves a worker by id within the project.
	GetWorker(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID) (*Worker, error)

	// HeartbeatWorker records a heartbeat at the given time and moves an
	// offline worker online, returning the status the worker had before
	// this heartbeat. The read-and-replace is atomic: under racing
	// heartbeats exactly one caller sees the prior offline status.
	// Returns polos.ErrWorkerNotFound for unknown workers.
	HeartbeatWorker(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID, at time.Time) (Status, error)

	// MarkStaleWorkersOffline moves every online worker whose last
	// heartbeat is before the cutoff to offline, across all projects.
	// Sweeper use only; returns the workers marked.
	MarkStaleWorkersOffline(ctx context.Context, cutoff time.Time) ([]*Worker, error)

	// ListDispatchCandidates returns the online push-mode workers
	// serving the given deployment within the project, ordered by
	// earliest last heartbeat first.
	ListDispatchCandidates(ctx context.Context, project tenant.ProjectID, deploymentID string) ([]*Worker, error)
}
