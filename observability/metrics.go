// Package observability implements the subsystem emitter interfaces on
// top of OpenTelemetry metrics. Wiring it is optional; every subsystem
// defaults to a nop emitter.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/schedule"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/wait"
	"github.com/polos-dev/polos-sub001/worker"
)

// Metrics records engine activity as OpenTelemetry counters. It satisfies
// the emitter interface of every subsystem.
type Metrics struct {
	executionsCreated metric.Int64Counter
	transitions       metric.Int64Counter
	waitsSuspended    metric.Int64Counter
	waitsResumed      metric.Int64Counter
	eventsPublished   metric.Int64Counter
	workersOnline     metric.Int64UpDownCounter
	dispatched        metric.Int64Counter
	released          metric.Int64Counter
	noCapacity        metric.Int64Counter
	schedulesFired    metric.Int64Counter
}

// NewMetrics creates the instrument set on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.executionsCreated, err = meter.Int64Counter("polos.executions.created",
		metric.WithDescription("Executions created")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("polos.executions.transitions",
		metric.WithDescription("Execution status transitions")); err != nil {
		return nil, err
	}
	if m.waitsSuspended, err = meter.Int64Counter("polos.waits.suspended",
		metric.WithDescription("Executions suspended on a wait step")); err != nil {
		return nil, err
	}
	if m.waitsResumed, err = meter.Int64Counter("polos.waits.resumed",
		metric.WithDescription("Wait steps resumed")); err != nil {
		return nil, err
	}
	if m.eventsPublished, err = meter.Int64Counter("polos.events.published",
		metric.WithDescription("Events appended to topics")); err != nil {
		return nil, err
	}
	if m.workersOnline, err = meter.Int64UpDownCounter("polos.workers.online",
		metric.WithDescription("Workers currently online")); err != nil {
		return nil, err
	}
	if m.dispatched, err = meter.Int64Counter("polos.dispatch.delivered",
		metric.WithDescription("Executions pushed to a worker")); err != nil {
		return nil, err
	}
	if m.released, err = meter.Int64Counter("polos.dispatch.released",
		metric.WithDescription("Claims released after a failed push")); err != nil {
		return nil, err
	}
	if m.noCapacity, err = meter.Int64Counter("polos.dispatch.no_capacity",
		metric.WithDescription("Dispatch passes that found no free worker")); err != nil {
		return nil, err
	}
	if m.schedulesFired, err = meter.Int64Counter("polos.schedules.fired",
		metric.WithDescription("Schedule instants fired")); err != nil {
		return nil, err
	}
	return m, nil
}

func projectAttr(p tenant.ProjectID) attribute.KeyValue {
	return attribute.String("project_id", p.String())
}

// ExecutionCreated implements execution.Emitter.
func (m *Metrics) ExecutionCreated(ctx context.Context, e *execution.Execution) {
	m.executionsCreated.Add(ctx, 1, metric.WithAttributes(
		projectAttr(e.ProjectID),
		attribute.String("workflow_id", e.WorkflowID),
	))
}

// ExecutionTransitioned implements execution.Emitter.
func (m *Metrics) ExecutionTransitioned(ctx context.Context, e *execution.Execution, from, to execution.Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		projectAttr(e.ProjectID),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

// WaitSuspended implements wait.Emitter.
func (m *Metrics) WaitSuspended(ctx context.Context, s *wait.Step) {
	m.waitsSuspended.Add(ctx, 1, metric.WithAttributes(
		projectAttr(s.ProjectID),
		attribute.String("kind", string(s.Kind)),
	))
}

// WaitResumed implements wait.Emitter.
func (m *Metrics) WaitResumed(ctx context.Context, s *wait.Step, t wait.Trigger) {
	m.waitsResumed.Add(ctx, 1, metric.WithAttributes(
		projectAttr(s.ProjectID),
		attribute.String("kind", string(t.Kind)),
	))
}

// EventsPublished implements eventlog.Emitter.
func (m *Metrics) EventsPublished(ctx context.Context, project tenant.ProjectID, topicName string, count int) {
	m.eventsPublished.Add(ctx, int64(count), metric.WithAttributes(
		projectAttr(project),
		attribute.String("topic", topicName),
	))
}

// WorkerOnline implements worker.RegistryEmitter.
func (m *Metrics) WorkerOnline(ctx context.Context, w *worker.Worker) {
	m.workersOnline.Add(ctx, 1, metric.WithAttributes(projectAttr(w.ProjectID)))
}

// WorkerOffline implements worker.RegistryEmitter.
func (m *Metrics) WorkerOffline(ctx context.Context, w *worker.Worker) {
	m.workersOnline.Add(ctx, -1, metric.WithAttributes(projectAttr(w.ProjectID)))
}

// ExecutionDispatched implements worker.DispatchEmitter.
func (m *Metrics) ExecutionDispatched(ctx context.Context, e *execution.Execution, w *worker.Worker) {
	m.dispatched.Add(ctx, 1, metric.WithAttributes(projectAttr(e.ProjectID)))
}

// DispatchReleased implements worker.DispatchEmitter.
func (m *Metrics) DispatchReleased(ctx context.Context, e *execution.Execution, w *worker.Worker) {
	m.released.Add(ctx, 1, metric.WithAttributes(projectAttr(e.ProjectID)))
}

// DispatchNoCapacity implements worker.DispatchEmitter.
func (m *Metrics) DispatchNoCapacity(ctx context.Context, e *execution.Execution) {
	m.noCapacity.Add(ctx, 1, metric.WithAttributes(projectAttr(e.ProjectID)))
}

// ScheduleFired implements schedule.Emitter.
func (m *Metrics) ScheduleFired(ctx context.Context, s *schedule.Schedule, e *execution.Execution) {
	m.schedulesFired.Add(ctx, 1, metric.WithAttributes(
		projectAttr(s.ProjectID),
		attribute.String("workflow_id", s.WorkflowID),
	))
}
