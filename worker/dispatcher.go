package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/tenant"
)

// DispatchEmitter receives dispatch outcome signals.
type DispatchEmitter interface {
	ExecutionDispatched(ctx context.Context, e *execution.Execution, w *Worker)
	DispatchReleased(ctx context.Context, e *execution.Execution, w *Worker)
	DispatchNoCapacity(ctx context.Context, e *execution.Execution)
}

type nopDispatchEmitter struct{}

func (nopDispatchEmitter) ExecutionDispatched(context.Context, *execution.Execution, *Worker) {}
func (nopDispatchEmitter) DispatchReleased(context.Context, *execution.Execution, *Worker)    {}
func (nopDispatchEmitter) DispatchNoCapacity(context.Context, *execution.Execution)           {}

// Dispatcher assigns queued executions to online push workers with free
// capacity. It claims an execution (queued to running, worker recorded)
// before pushing, and releases it back to queued when the push fails or
// times out, so a crash mid-push can only leave the execution running
// with a worker that acknowledged it.
type Dispatcher struct {
	executions  execution.Store
	workers     Store
	transport   Transport
	emitter     DispatchEmitter
	logger      *slog.Logger
	batch       int
	pushTimeout time.Duration
	parallelism int

	// projectRate throttles dispatch per tenant so one project's backlog
	// cannot monopolize a pass.
	mu          sync.Mutex
	projectRate map[tenant.ProjectID]*rate.Limiter
	rateLimit   rate.Limit
	rateBurst   int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBatch sets how many queued executions one pass considers.
func WithBatch(n int) DispatcherOption {
	return func(d *Dispatcher) { d.batch = n }
}

// WithPushTimeout bounds each push delivery.
func WithPushTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.pushTimeout = t }
}

// WithParallelism caps concurrent pushes per pass.
func WithParallelism(n int) DispatcherOption {
	return func(d *Dispatcher) { d.parallelism = n }
}

// WithProjectRate sets the per-tenant dispatch rate limit.
func WithProjectRate(limit rate.Limit, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		d.rateLimit = limit
		d.rateBurst = burst
	}
}

// WithDispatchEmitter installs the outcome emitter.
func WithDispatchEmitter(e DispatchEmitter) DispatcherOption {
	return func(d *Dispatcher) {
		if e != nil {
			d.emitter = e
		}
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(executions execution.Store, workers Store, transport Transport, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		executions:  executions,
		workers:     workers,
		transport:   transport,
		emitter:     nopDispatchEmitter{},
		logger:      logger.With("component", "dispatch"),
		batch:       50,
		pushTimeout: 10 * time.Second,
		parallelism: 8,
		projectRate: make(map[tenant.ProjectID]*rate.Limiter),
		rateLimit:   rate.Limit(100),
		rateBurst:   50,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) limiter(project tenant.ProjectID) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.projectRate[project]
	if !ok {
		l = rate.NewLimiter(d.rateLimit, d.rateBurst)
		d.projectRate[project] = l
	}
	return l
}

// DispatchPass runs one scheduling pass: list queued executions in
// creation order and try to place each on a worker. Executions that find
// no capacity stay queued for the next pass; that is backpressure, not an
// error. Returns the number dispatched.
func (d *Dispatcher) DispatchPass(ctx context.Context) (int, error) {
	queued, err := d.executions.ListQueuedExecutions(ctx, d.batch)
	if err != nil {
		return 0, err
	}
	if len(queued) == 0 {
		return 0, nil
	}

	var dispatched sync.Map
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)

	for _, e := range queued {
		e := e
		if !d.limiter(e.ProjectID).Allow() {
			continue
		}
		g.Go(func() error {
			ok, err := d.dispatchOne(gctx, e)
			if err != nil {
				// Per-execution failures never abort the pass.
				d.logger.ErrorContext(gctx, "dispatch failed",
					"execution_id", e.ID, "error", err)
				return nil
			}
			if ok {
				dispatched.Store(e.ID, struct{}{})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	dispatched.Range(func(_, _ any) bool { n++; return true })
	return n, nil
}

// dispatchOne places a single queued execution. Returns (false, nil) when
// no worker had capacity or another dispatcher claimed it first.
func (d *Dispatcher) dispatchOne(ctx context.Context, e *execution.Execution) (bool, error) {
	candidates, err := d.workers.ListDispatchCandidates(ctx, e.ProjectID, e.DeploymentID)
	if err != nil {
		return false, err
	}

	// Candidates arrive ordered by earliest heartbeat, so the longest
	// idle worker is tried first. The count here is only a cheap
	// pre-filter; the claim enforces the capacity limit atomically.
	for _, w := range candidates {
		inFlight, err := d.executions.CountRunningByWorker(ctx, e.ProjectID, w.ID)
		if err != nil {
			return false, err
		}
		if inFlight >= w.MaxConcurrent {
			continue
		}

		claimed, err := d.executions.ClaimExecution(ctx, e.ProjectID, e.ID, w.ID, w.MaxConcurrent)
		if err != nil {
			return false, err
		}
		if !claimed {
			// Either the worker filled up since the pre-filter or another
			// dispatcher took the execution. Re-read to tell which: still
			// queued means the worker is at capacity, so try the next one.
			cur, gerr := d.executions.GetExecution(ctx, e.ProjectID, e.ID)
			if gerr != nil {
				return false, gerr
			}
			if cur.Status == execution.StatusQueued {
				continue
			}
			return false, nil
		}

		if err := d.push(ctx, w, e); err != nil {
			released, rerr := d.executions.ReleaseExecution(ctx, e.ProjectID, e.ID)
			if rerr != nil {
				return false, rerr
			}
			if released {
				d.emitter.DispatchReleased(ctx, e, w)
			}
			d.logger.WarnContext(ctx, "push not acknowledged, execution released",
				"execution_id", e.ID, "worker_id", w.ID, "error", err)
			// Try the next candidate on this pass.
			continue
		}

		d.emitter.ExecutionDispatched(ctx, e, w)
		d.logger.DebugContext(ctx, "execution dispatched",
			"execution_id", e.ID, "worker_id", w.ID)
		return true, nil
	}

	d.emitter.DispatchNoCapacity(ctx, e)
	return false, nil
}

func (d *Dispatcher) push(ctx context.Context, w *Worker, e *execution.Execution) error {
	pctx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()
	return d.transport.Deliver(pctx, w.PushEndpointURL, &PushRequest{
		ExecutionID:  e.ID,
		ProjectID:    e.ProjectID,
		WorkflowID:   e.WorkflowID,
		DeploymentID: e.DeploymentID,
		Payload:      e.Payload,
	})
}
