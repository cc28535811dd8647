// Package engine composes the subsystems into a running orchestrator:
// the execution machine, step recorder, wait manager, event log, worker
// registry, dispatcher, and schedule engine, plus the periodic sweepers
// that drive them. Multiple engine instances may run against the same
// store; every cross-instance invariant lives in the store's conditional
// updates, not in process memory.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/observability"
	"github.com/polos-dev/polos-sub001/schedule"
	"github.com/polos-dev/polos-sub001/step"
	"github.com/polos-dev/polos-sub001/store"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/wait"
	"github.com/polos-dev/polos-sub001/worker"
)

// Engine wires the subsystems together and runs the sweepers.
type Engine struct {
	cfg    polos.Config
	store  store.Store
	logger *slog.Logger

	machine   *execution.Machine
	recorder  *step.Recorder
	waits     *wait.Manager
	events    *eventlog.Log
	registry  *worker.Registry
	dispatch  *worker.Dispatcher
	schedules *schedule.Engine

	transport worker.Transport
	evaluator schedule.Evaluator
	meter     metric.Meter

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// Option configures the Engine.
type Option func(*Engine)

// WithConfig overrides the default timing and batch configuration.
func WithConfig(cfg polos.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger for the engine and all subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTransport sets the push transport. Defaults to HTTP with JSON
// encoding.
func WithTransport(t worker.Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// WithEvaluator sets the cron evaluator. Defaults to the standard
// five-field parser.
func WithEvaluator(ev schedule.Evaluator) Option {
	return func(e *Engine) { e.evaluator = ev }
}

// WithMeter enables OpenTelemetry metrics on every subsystem.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// New builds an engine over the given store.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, polos.ErrNoStore
	}

	e := &Engine{
		cfg:    polos.DefaultConfig(),
		store:  st,
		logger: slog.Default(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = worker.NewHTTPTransport()
	}
	if e.evaluator == nil {
		e.evaluator = schedule.NewCronEvaluator()
	}

	var metrics *observability.Metrics
	if e.meter != nil {
		var err error
		metrics, err = observability.NewMetrics(e.meter)
		if err != nil {
			return nil, err
		}
	}

	e.machine = execution.NewMachine(st, st, e.logger)
	e.recorder = step.NewRecorder(st, e.logger)
	e.waits = wait.NewManager(st, st, e.logger)
	e.events = eventlog.NewLog(st, e.logger)
	e.registry = worker.NewRegistry(st, e.cfg.LivenessTimeout, e.logger)

	dispatchOpts := []worker.DispatcherOption{
		worker.WithBatch(e.cfg.DispatchBatch),
		worker.WithPushTimeout(e.cfg.PushTimeout),
	}
	if metrics != nil {
		dispatchOpts = append(dispatchOpts, worker.WithDispatchEmitter(metrics))
	}
	e.dispatch = worker.NewDispatcher(st, st, e.transport, e.logger, dispatchOpts...)
	e.schedules = schedule.NewEngine(st, st, e.evaluator, e.machine, e.logger)

	// Event publishes feed event waits.
	e.events.AddNotifier(&waitNotifier{waits: e.waits, logger: e.logger})

	if metrics != nil {
		e.machine.SetEmitter(metrics)
		e.waits.SetEmitter(metrics)
		e.events.SetEmitter(metrics)
		e.registry.SetEmitter(metrics)
		e.schedules.SetEmitter(metrics)
	}

	return e, nil
}

// waitNotifier resumes event waits after each committed publish.
type waitNotifier struct {
	waits  *wait.Manager
	logger *slog.Logger
}

func (n *waitNotifier) EventPublished(ctx context.Context, project tenant.ProjectID, topicName string, e *eventlog.Event) {
	if _, err := n.waits.OnPublished(ctx, project, topicName, e.Seq, e.PartitionKey, e.Payload); err != nil {
		n.logger.ErrorContext(ctx, "event wait notification failed",
			"topic", topicName, "event_seq", e.Seq, "error", err)
	}
}

// Start launches the sweepers: dispatch, time-wait resumption, event-wait
// catch-up, worker liveness, and schedule firing. Each runs on its own
// ticker until Stop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return err
	}

	e.loop(e.cfg.DispatchInterval, "dispatch", func(ctx context.Context) error {
		_, err := e.dispatch.DispatchPass(ctx)
		return err
	})
	e.loop(e.cfg.TimeWaitInterval, "time_wait", func(ctx context.Context) error {
		_, err := e.waits.SweepDue(ctx, e.cfg.SweepBatch)
		return err
	})
	e.loop(e.cfg.EventWaitInterval, "event_wait", func(ctx context.Context) error {
		_, err := e.waits.SweepEvents(ctx, e.cfg.SweepBatch)
		return err
	})
	e.loop(e.cfg.LivenessInterval, "liveness", func(ctx context.Context) error {
		_, err := e.registry.SweepLiveness(ctx)
		return err
	})
	e.loop(e.cfg.ScheduleInterval, "schedule", func(ctx context.Context) error {
		_, err := e.schedules.FireDue(ctx, e.cfg.SweepBatch)
		return err
	})

	e.logger.Info("engine started")
	return nil
}

// loop runs fn every interval under an elevated tenant context until the
// engine stops.
func (e *Engine) loop(interval time.Duration, name string, fn func(context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.stopCh:
				return
			case <-ticker.C:
				ctx := tenant.WithAdmin(context.Background())
				if err := fn(ctx); err != nil {
					e.logger.Error("sweep failed", "sweep", name, "error", err)
				}
			}
		}
	}()
}

// Stop halts the sweepers and waits for in-flight passes to finish.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopped.Do(func() { close(e.stopCh) })

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executions returns the execution state machine.
func (e *Engine) Executions() *execution.Machine { return e.machine }

// Steps returns the step recorder.
func (e *Engine) Steps() *step.Recorder { return e.recorder }

// Waits returns the wait manager.
func (e *Engine) Waits() *wait.Manager { return e.waits }

// Events returns the event log.
func (e *Engine) Events() *eventlog.Log { return e.events }

// Workers returns the worker registry.
func (e *Engine) Workers() *worker.Registry { return e.registry }

// Dispatcher returns the dispatcher, for driving passes manually.
func (e *Engine) Dispatcher() *worker.Dispatcher { return e.dispatch }

// Schedules returns the schedule engine.
func (e *Engine) Schedules() *schedule.Engine { return e.schedules }

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }
