// Package memory is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/schedule"
	"github.com/polos-dev/polos-sub001/step"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/wait"
	"github.com/polos-dev/polos-sub001/worker"
	"github.com/polos-dev/polos-sub001/workflow"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ execution.Store = (*Store)(nil)
	_ step.Store      = (*Store)(nil)
	_ wait.Store      = (*Store)(nil)
	_ eventlog.Store  = (*Store)(nil)
	_ worker.Store    = (*Store)(nil)
	_ schedule.Store  = (*Store)(nil)
	_ workflow.Store  = (*Store)(nil)
)

// Store is an in-memory backend. Tenant scoping is enforced here too:
// project-scoped reads only see rows of that project, and cross-project
// scans demand an elevated context, mirroring the relational backend's
// row security.
type Store struct {
	mu sync.RWMutex

	executions    map[string]*execution.Execution
	execSeq       int64
	steps         map[string]*step.Output       // key: "execID:stepKey"
	waits         map[string]*wait.Step         // key: waitID
	topics        map[string]*eventlog.Topic    // key: "project\x00name"
	events        map[string][]*eventlog.Event
	workers       map[string]*worker.Worker
	schedules     map[string]*schedule.Schedule // key: "project\x00workflowID\x00key"
	deployments   map[string]*workflow.Deployment
	registrations map[string]*workflow.Registration
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		executions:    make(map[string]*execution.Execution),
		steps:         make(map[string]*step.Output),
		waits:         make(map[string]*wait.Step),
		topics:        make(map[string]*eventlog.Topic),
		events:        make(map[string][]*eventlog.Event),
		workers:       make(map[string]*worker.Worker),
		schedules:     make(map[string]*schedule.Schedule),
		deployments:   make(map[string]*workflow.Deployment),
		registrations: make(map[string]*workflow.Registration),
	}
}

func scopedKey(project tenant.ProjectID, parts ...string) string {
	k := project.String()
	for _, p := range parts {
		k += "\x00" + p
	}
	return k
}

func requireAdmin(ctx context.Context) error {
	if !tenant.IsAdmin(ctx) {
		return polos.ErrAdminRequired
	}
	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle — Ping / Close
// ──────────────────────────────────────────────────

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Execution Store
// ──────────────────────────────────────────────────

// CreateExecution persists a new execution and assigns its creation
// sequence.
func (m *Store) CreateExecution(_ context.Context, e *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, exists := m.executions[key]; exists {
		return polos.Errorf(polos.KindConflict, "execution %s already exists", e.ID)
	}
	m.execSeq++
	e.Seq = m.execSeq
	cp := *e
	m.executions[key] = &cp
	return nil
}

func (m *Store) getExecutionLocked(project tenant.ProjectID, execID id.ExecutionID) (*execution.Execution, error) {
	e, ok := m.executions[execID.String()]
	if !ok || e.ProjectID != project {
		return nil, polos.ErrExecutionNotFound
	}
	return e, nil
}

// GetExecution retrieves an execution by id within the project.
func (m *Store) GetExecution(_ context.Context, project tenant.ProjectID, execID id.ExecutionID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.getExecutionLocked(project, execID)
	if err != nil {
		return nil, err
	}
	cp := *e
	return &cp, nil
}

func (m *Store) transitionLocked(project tenant.ProjectID, execID id.ExecutionID, from, to execution.Status) (bool, error) {
	e, err := m.getExecutionLocked(project, execID)
	if err != nil {
		return false, err
	}
	if e.Status != from {
		return false, nil
	}
	e.Status = to
	e.Touch()
	now := time.Now().UTC()
	if to == execution.StatusRunning && e.StartedAt == nil {
		e.StartedAt = &now
	}
	if to.Terminal() {
		e.FinishedAt = &now
	}
	return true, nil
}

// TransitionExecution atomically moves the execution from one status to
// another.
func (m *Store) TransitionExecution(_ context.Context, project tenant.ProjectID, execID id.ExecutionID, from, to execution.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(project, execID, from, to)
}

// ClaimExecution atomically moves queued → running and records the
// worker, holding the lock across the capacity check so concurrent
// claimers cannot push the worker past maxConcurrent.
func (m *Store) ClaimExecution(_ context.Context, project tenant.ProjectID, execID id.ExecutionID, workerID id.WorkerID, maxConcurrent int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inFlight := 0
	for _, e := range m.executions {
		if e.ProjectID == project && e.Status == execution.StatusRunning && e.WorkerID == workerID {
			inFlight++
		}
	}
	if inFlight >= maxConcurrent {
		return false, nil
	}

	ok, err := m.transitionLocked(project, execID, execution.StatusQueued, execution.StatusRunning)
	if err != nil || !ok {
		return ok, err
	}
	m.executions[execID.String()].WorkerID = workerID
	return true, nil
}

// ReleaseExecution atomically moves running → queued and clears the worker.
func (m *Store) ReleaseExecution(_ context.Context, project tenant.ProjectID, execID id.ExecutionID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.transitionLocked(project, execID, execution.StatusRunning, execution.StatusQueued)
	if err != nil || !ok {
		return ok, err
	}
	m.executions[execID.String()].WorkerID = id.WorkerID{}
	return true, nil
}

// CompleteExecution atomically moves running → completed with the result.
func (m *Store) CompleteExecution(_ context.Context, project tenant.ProjectID, execID id.ExecutionID, result []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.transitionLocked(project, execID, execution.StatusRunning, execution.StatusCompleted)
	if err != nil || !ok {
		return ok, err
	}
	m.executions[execID.String()].Result = result
	return true, nil
}

// FailExecution atomically moves the execution to failed from any
// non-terminal state.
func (m *Store) FailExecution(_ context.Context, project tenant.ProjectID, execID id.ExecutionID, msg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.getExecutionLocked(project, execID)
	if err != nil {
		return false, err
	}
	if e.Status.Terminal() {
		return false, nil
	}
	e.Status = execution.StatusFailed
	e.Error = msg
	e.Touch()
	now := time.Now().UTC()
	e.FinishedAt = &now
	return true, nil
}

// ListQueuedExecutions returns queued executions across all projects in
// creation order.
func (m *Store) ListQueuedExecutions(ctx context.Context, limit int) ([]*execution.Execution, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	queued := make([]*execution.Execution, 0)
	for _, e := range m.executions {
		if e.Status == execution.StatusQueued {
			cp := *e
			queued = append(queued, &cp)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].Seq < queued[j].Seq })
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

// CountRunningByWorker returns the worker's in-flight execution count.
func (m *Store) CountRunningByWorker(_ context.Context, project tenant.ProjectID, workerID id.WorkerID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.executions {
		if e.ProjectID == project && e.Status == execution.StatusRunning && e.WorkerID == workerID {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Step Store
// ──────────────────────────────────────────────────

func stepKey(execID id.ExecutionID, key string) string {
	return execID.String() + ":" + key
}

// SaveStepOutput upserts a step output; a successful output is immutable.
func (m *Store) SaveStepOutput(_ context.Context, o *step.Output) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveStepOutputLocked(o)
}

func (m *Store) saveStepOutputLocked(o *step.Output) error {
	key := stepKey(o.ExecutionID, o.StepKey)
	if cur, ok := m.steps[key]; ok {
		if cur.ProjectID != o.ProjectID {
			return polos.ErrStepOutputNotFound
		}
		if cur.Success {
			return nil
		}
	}
	cp := *o
	m.steps[key] = &cp
	return nil
}

// GetStepOutput retrieves the output for a step key within an execution.
func (m *Store) GetStepOutput(_ context.Context, project tenant.ProjectID, execID id.ExecutionID, key string) (*step.Output, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.steps[stepKey(execID, key)]
	if !ok || o.ProjectID != project {
		return nil, polos.ErrStepOutputNotFound
	}
	cp := *o
	return &cp, nil
}

// ListStepOutputs returns all outputs for an execution in creation order.
func (m *Store) ListStepOutputs(_ context.Context, project tenant.ProjectID, execID id.ExecutionID) ([]*step.Output, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outputs := make([]*step.Output, 0)
	for _, o := range m.steps {
		if o.ExecutionID == execID && o.ProjectID == project {
			cp := *o
			outputs = append(outputs, &cp)
		}
	}
	sort.Slice(outputs, func(i, j int) bool {
		return outputs[i].CreatedAt.Before(outputs[j].CreatedAt)
	})
	return outputs, nil
}

// ──────────────────────────────────────────────────
// Wait Store
// ──────────────────────────────────────────────────

// SuspendExecution atomically inserts the wait step and moves the
// execution running → waiting.
func (m *Store) SuspendExecution(_ context.Context, s *wait.Step) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := m.transitionLocked(s.ProjectID, s.ExecutionID, execution.StatusRunning, execution.StatusWaiting)
	if err != nil || !ok {
		return ok, err
	}
	cp := *s
	m.waits[s.ID.String()] = &cp
	return true, nil
}

// ResumeWaitStep atomically records the trigger as the step's memoized
// output, deletes the wait step, and moves the execution waiting → queued.
func (m *Store) ResumeWaitStep(_ context.Context, project tenant.ProjectID, waitID id.WaitID, trigger wait.Trigger) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.waits[waitID.String()]
	if !ok || s.ProjectID != project {
		return false, nil
	}
	moved, err := m.transitionLocked(project, s.ExecutionID, execution.StatusWaiting, execution.StatusQueued)
	if err != nil {
		return false, err
	}
	if !moved {
		// Cancelled or failed out from under the wait; drop the step so
		// the sweeper stops re-listing it.
		delete(m.waits, waitID.String())
		return false, nil
	}
	if err := m.saveStepOutputLocked(&step.Output{
		Entity:      polos.NewEntity(),
		ID:          id.NewStepID(),
		ProjectID:   project,
		ExecutionID: s.ExecutionID,
		StepKey:     s.StepKey,
		Success:     true,
		Value:       trigger.Encode(),
	}); err != nil {
		return false, err
	}
	m.executions[s.ExecutionID.String()].WorkerID = id.WorkerID{}
	delete(m.waits, waitID.String())
	return true, nil
}

// GetWaitStep retrieves a wait step by id.
func (m *Store) GetWaitStep(_ context.Context, project tenant.ProjectID, waitID id.WaitID) (*wait.Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.waits[waitID.String()]
	if !ok || s.ProjectID != project {
		return nil, polos.Errorf(polos.KindNotFound, "wait step %s not found", waitID)
	}
	cp := *s
	return &cp, nil
}

// GetPendingWait returns the pending wait step for an execution, if any.
func (m *Store) GetPendingWait(_ context.Context, project tenant.ProjectID, execID id.ExecutionID) (*wait.Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.waits {
		if s.ExecutionID == execID && s.ProjectID == project {
			cp := *s
			return &cp, nil
		}
	}
	return nil, polos.Errorf(polos.KindNotFound, "no pending wait for execution %s", execID)
}

// ListDueTimeWaits returns due time waits across all projects.
func (m *Store) ListDueTimeWaits(ctx context.Context, now time.Time, limit int) ([]*wait.Step, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]*wait.Step, 0)
	for _, s := range m.waits {
		if s.Kind != wait.KindTime || s.WaitUntil == nil || s.WaitUntil.After(now) {
			continue
		}
		cp := *s
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].WaitUntil.Before(*due[j].WaitUntil) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// ListEventWaits returns the event waits on a topic within a project.
func (m *Store) ListEventWaits(_ context.Context, project tenant.ProjectID, topic string) ([]*wait.Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	waits := make([]*wait.Step, 0)
	for _, s := range m.waits {
		if s.Kind == wait.KindEvent && s.ProjectID == project && s.Topic == topic {
			cp := *s
			waits = append(waits, &cp)
		}
	}
	sort.Slice(waits, func(i, j int) bool {
		return waits[i].CreatedAt.Before(waits[j].CreatedAt)
	})
	return waits, nil
}

// ListPendingEventWaits returns pending event waits across all projects,
// oldest first.
func (m *Store) ListPendingEventWaits(ctx context.Context, limit int) ([]*wait.Step, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending := make([]*wait.Step, 0)
	for _, s := range m.waits {
		if s.Kind != wait.KindEvent {
			continue
		}
		cp := *s
		pending = append(pending, &cp)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// AdvanceWaitCursor moves an event wait's topic cursor forward. Moving
// backward is a no-op.
func (m *Store) AdvanceWaitCursor(_ context.Context, project tenant.ProjectID, waitID id.WaitID, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.waits[waitID.String()]
	if !ok || s.ProjectID != project {
		return polos.Errorf(polos.KindNotFound, "wait step %s not found", waitID)
	}
	if seq > s.EventCursor {
		s.EventCursor = seq
		s.Touch()
	}
	return nil
}

// DeleteWaitStep removes a wait step without resuming.
func (m *Store) DeleteWaitStep(_ context.Context, project tenant.ProjectID, waitID id.WaitID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.waits[waitID.String()]
	if !ok || s.ProjectID != project {
		return polos.Errorf(polos.KindNotFound, "wait step %s not found", waitID)
	}
	delete(m.waits, waitID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Event Log Store
// ──────────────────────────────────────────────────

// PublishEvents creates the topic if absent and appends the batch with a
// contiguous sequence block.
func (m *Store) PublishEvents(_ context.Context, project tenant.ProjectID, topicName string, msgs []eventlog.Message) ([]*eventlog.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopedKey(project, topicName)
	t, ok := m.topics[key]
	if !ok {
		t = &eventlog.Topic{
			Entity:    polos.NewEntity(),
			ID:        id.NewTopicID(),
			ProjectID: project,
			Name:      topicName,
			NextSeq:   1,
		}
		m.topics[key] = t
	}

	now := time.Now().UTC()
	events := make([]*eventlog.Event, 0, len(msgs))
	for _, msg := range msgs {
		e := &eventlog.Event{
			ID:           id.NewEventID(),
			TopicID:      t.ID,
			Seq:          t.NextSeq,
			Type:         msg.Type,
			Payload:      msg.Payload,
			PartitionKey: msg.PartitionKey,
			PublishedAt:  now,
		}
		t.NextSeq++
		m.events[key] = append(m.events[key], e)
		cp := *e
		events = append(events, &cp)
	}
	t.Touch()
	return events, nil
}

// GetTopic retrieves a topic by name within the project.
func (m *Store) GetTopic(_ context.Context, project tenant.ProjectID, topicName string) (*eventlog.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.topics[scopedKey(project, topicName)]
	if !ok {
		return nil, polos.ErrTopicNotFound
	}
	cp := *t
	return &cp, nil
}

// ReadEvents returns committed events after the sequence cursor.
func (m *Store) ReadEvents(_ context.Context, project tenant.ProjectID, topicName string, afterSeq int64, limit int) ([]*eventlog.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := scopedKey(project, topicName)
	if _, ok := m.topics[key]; !ok {
		return nil, polos.ErrTopicNotFound
	}
	out := make([]*eventlog.Event, 0)
	for _, e := range m.events[key] {
		if e.Seq <= afterSeq {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Worker Store
// ──────────────────────────────────────────────────

// UpsertWorker registers or re-registers a worker.
func (m *Store) UpsertWorker(_ context.Context, w *worker.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.ID.String()
	if cur, ok := m.workers[key]; ok {
		if cur.ProjectID != w.ProjectID {
			return polos.Errorf(polos.KindConflict, "worker id %s is taken", w.ID)
		}
		// Re-registration keeps liveness state.
		w.Status = cur.Status
		w.LastHeartbeat = cur.LastHeartbeat
	}
	cp := *w
	m.workers[key] = &cp
	return nil
}

// GetWorker retrieves a worker by id within the project.
func (m *Store) GetWorker(_ context.Context, project tenant.ProjectID, workerID id.WorkerID) (*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[workerID.String()]
	if !ok || w.ProjectID != project {
		return nil, polos.ErrWorkerNotFound
	}
	cp := *w
	return &cp, nil
}

// HeartbeatWorker records a heartbeat and moves an offline worker online,
// returning the status the worker had before this heartbeat.
func (m *Store) HeartbeatWorker(_ context.Context, project tenant.ProjectID, workerID id.WorkerID, at time.Time) (worker.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok || w.ProjectID != project {
		return "", polos.ErrWorkerNotFound
	}
	prior := w.Status
	w.LastHeartbeat = at
	w.Status = worker.StatusOnline
	w.Touch()
	return prior, nil
}

// MarkStaleWorkersOffline moves silent online workers offline.
func (m *Store) MarkStaleWorkersOffline(ctx context.Context, cutoff time.Time) ([]*worker.Worker, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stale := make([]*worker.Worker, 0)
	for _, w := range m.workers {
		if w.Status != worker.StatusOnline || !w.LastHeartbeat.Before(cutoff) {
			continue
		}
		w.Status = worker.StatusOffline
		w.Touch()
		cp := *w
		stale = append(stale, &cp)
	}
	return stale, nil
}

// ListDispatchCandidates returns online push workers for the deployment,
// earliest heartbeat first.
func (m *Store) ListDispatchCandidates(_ context.Context, project tenant.ProjectID, deploymentID string) ([]*worker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*worker.Worker, 0)
	for _, w := range m.workers {
		if w.ProjectID != project || w.Status != worker.StatusOnline {
			continue
		}
		if w.Mode != worker.ModePush || w.CurrentDeploymentID != deploymentID {
			continue
		}
		cp := *w
		candidates = append(candidates, &cp)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastHeartbeat.Before(candidates[j].LastHeartbeat)
	})
	return candidates, nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// UpsertSchedule creates or updates the schedule keyed by
// (workflow_id, key).
func (m *Store) UpsertSchedule(_ context.Context, s *schedule.Schedule) (*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopedKey(s.ProjectID, s.WorkflowID, s.Key)
	if cur, ok := m.schedules[key]; ok {
		cur.Cron = s.Cron
		cur.Timezone = s.Timezone
		cur.DeploymentID = s.DeploymentID
		cur.NextRunAt = s.NextRunAt
		cur.Touch()
		cp := *cur
		return &cp, nil
	}
	cp := *s
	m.schedules[key] = &cp
	out := cp
	return &out, nil
}

// GetSchedule retrieves a schedule by workflow id and key.
func (m *Store) GetSchedule(_ context.Context, project tenant.ProjectID, workflowID, key string) (*schedule.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[scopedKey(project, workflowID, key)]
	if !ok {
		return nil, polos.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

// SetScheduleStatus pauses or resumes a schedule.
func (m *Store) SetScheduleStatus(_ context.Context, project tenant.ProjectID, workflowID, key string, status schedule.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[scopedKey(project, workflowID, key)]
	if !ok {
		return polos.ErrScheduleNotFound
	}
	s.Status = status
	s.Touch()
	return nil
}

// ListDueSchedules returns active due schedules across all projects.
func (m *Store) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]*schedule.Schedule, 0)
	for _, s := range m.schedules {
		if s.Status != schedule.StatusActive || s.NextRunAt.After(now) {
			continue
		}
		cp := *s
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// ClaimSchedule advances next_run_at only if it still matches the observed
// value, guarding the fire against concurrent sweepers.
func (m *Store) ClaimSchedule(_ context.Context, s *schedule.Schedule, lastRun, nextRun time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.schedules[scopedKey(s.ProjectID, s.WorkflowID, s.Key)]
	if !ok {
		return false, polos.ErrScheduleNotFound
	}
	if !cur.NextRunAt.Equal(s.NextRunAt) {
		return false, nil
	}
	lr := lastRun
	cur.LastRunAt = &lr
	cur.NextRunAt = nextRun
	cur.Touch()
	return true, nil
}

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// PutDeployment upserts a deployment record.
func (m *Store) PutDeployment(_ context.Context, d *workflow.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.deployments[scopedKey(d.ProjectID, d.ID)] = &cp
	return nil
}

// GetDeployment retrieves a deployment by id within the project.
func (m *Store) GetDeployment(_ context.Context, project tenant.ProjectID, deploymentID string) (*workflow.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deployments[scopedKey(project, deploymentID)]
	if !ok {
		return nil, polos.ErrDeploymentNotFound
	}
	cp := *d
	return &cp, nil
}

// PutRegistration upserts a workflow registration.
func (m *Store) PutRegistration(_ context.Context, r *workflow.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.registrations[scopedKey(r.ProjectID, r.WorkflowID, r.DeploymentID)] = &cp
	return nil
}

// GetRegistration retrieves the registration for a workflow under a
// deployment.
func (m *Store) GetRegistration(_ context.Context, project tenant.ProjectID, workflowID, deploymentID string) (*workflow.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.registrations[scopedKey(project, workflowID, deploymentID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s under %s", polos.ErrRegistrationNotFound, workflowID, deploymentID)
	}
	cp := *r
	return &cp, nil
}
