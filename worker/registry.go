package worker

import (
	"context"
	"log/slog"
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// RegistryEmitter receives worker liveness signals.
type RegistryEmitter interface {
	WorkerOnline(ctx context.Context, w *Worker)
	WorkerOffline(ctx context.Context, w *Worker)
}

type nopRegistryEmitter struct{}

func (nopRegistryEmitter) WorkerOnline(context.Context, *Worker)  {}
func (nopRegistryEmitter) WorkerOffline(context.Context, *Worker) {}

// Registry manages worker registration, heartbeats, and the liveness
// sweep.
type Registry struct {
	store   Store
	emitter RegistryEmitter
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRegistry creates a worker registry. timeout is the liveness window:
// a worker silent for longer is marked offline by SweepLiveness.
func NewRegistry(store Store, timeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:   store,
		emitter: nopRegistryEmitter{},
		logger:  logger.With("component", "worker"),
		timeout: timeout,
		now:     time.Now,
	}
}

// SetEmitter installs the liveness emitter. Must be called before use.
func (r *Registry) SetEmitter(e RegistryEmitter) {
	if e != nil {
		r.emitter = e
	}
}

// RegisterInput carries the caller-supplied fields for registration.
type RegisterInput struct {
	WorkerID            id.WorkerID
	ProjectID           tenant.ProjectID
	Capabilities        []byte
	Mode                Mode
	PushEndpointURL     string
	MaxConcurrent       int
	CurrentDeploymentID string
}

// Register upserts the worker record. The worker stays offline until its
// first heartbeat.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*Worker, error) {
	if in.ProjectID.IsZero() {
		return nil, polos.ErrMissingProject
	}
	if in.WorkerID.IsNil() {
		return nil, polos.NewError(polos.KindInvalidArgument, "worker id is required")
	}
	if in.Mode == ModePush && in.PushEndpointURL == "" {
		return nil, polos.ErrPushEndpoint
	}
	if in.Mode != ModePush && in.Mode != ModePull {
		return nil, polos.Errorf(polos.KindInvalidArgument, "unknown worker mode %q", in.Mode)
	}
	if in.MaxConcurrent <= 0 {
		return nil, polos.NewError(polos.KindInvalidArgument, "max concurrent executions must be positive")
	}

	w := &Worker{
		Entity:              polos.NewEntity(),
		ID:                  in.WorkerID,
		ProjectID:           in.ProjectID,
		Capabilities:        in.Capabilities,
		Mode:                in.Mode,
		PushEndpointURL:     in.PushEndpointURL,
		MaxConcurrent:       in.MaxConcurrent,
		CurrentDeploymentID: in.CurrentDeploymentID,
		Status:              StatusOffline,
	}
	if err := r.store.UpsertWorker(ctx, w); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "worker registered",
		"worker_id", w.ID, "mode", w.Mode, "deployment_id", w.CurrentDeploymentID,
		"max_concurrent", w.MaxConcurrent)
	return w, nil
}

// Heartbeat records liveness for a worker, bringing it online if it was
// offline.
func (r *Registry) Heartbeat(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID) error {
	if project.IsZero() {
		return polos.ErrMissingProject
	}
	w, err := r.store.GetWorker(ctx, project, workerID)
	if err != nil {
		return err
	}
	// The store reports the status it atomically replaced, so exactly one
	// of any racing heartbeats observes the offline → online edge.
	prior, err := r.store.HeartbeatWorker(ctx, project, workerID, r.now())
	if err != nil {
		return err
	}
	if prior == StatusOffline {
		w.Status = StatusOnline
		r.emitter.WorkerOnline(ctx, w)
		r.logger.InfoContext(ctx, "worker online", "worker_id", workerID)
	}
	return nil
}

// Get retrieves a worker by id.
func (r *Registry) Get(ctx context.Context, project tenant.ProjectID, workerID id.WorkerID) (*Worker, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	return r.store.GetWorker(ctx, project, workerID)
}

// SweepLiveness marks every worker silent past the liveness window as
// offline. In-flight executions on a newly offline worker are not
// reassigned here; that is an explicit operator boundary. Runs under an
// admin context; returns the number marked.
func (r *Registry) SweepLiveness(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.timeout)
	stale, err := r.store.MarkStaleWorkersOffline(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, w := range stale {
		r.emitter.WorkerOffline(ctx, w)
		r.logger.WarnContext(ctx, "worker offline",
			"worker_id", w.ID, "last_heartbeat", w.LastHeartbeat)
	}
	return len(stale), nil
}
