package wait

import (
	"context"
	"log/slog"
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Emitter receives wait lifecycle signals.
type Emitter interface {
	WaitSuspended(ctx context.Context, s *Step)
	WaitResumed(ctx context.Context, s *Step, t Trigger)
}

type nopEmitter struct{}

func (nopEmitter) WaitSuspended(context.Context, *Step)        {}
func (nopEmitter) WaitResumed(context.Context, *Step, Trigger) {}

// EventReader is the slice of the event log the manager needs: the topic
// head for recording a cursor at suspension, and committed events for the
// catch-up sweep.
type EventReader interface {
	GetTopic(ctx context.Context, project tenant.ProjectID, topicName string) (*eventlog.Topic, error)
	ReadEvents(ctx context.Context, project tenant.ProjectID, topicName string, afterSeq int64, limit int) ([]*eventlog.Event, error)
}

// Manager suspends executions onto wait steps and resumes them.
type Manager struct {
	store   Store
	events  EventReader
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager creates a wait manager.
func NewManager(store Store, events EventReader, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		events:  events,
		emitter: nopEmitter{},
		logger:  logger.With("component", "wait"),
		now:     time.Now,
	}
}

// SetEmitter installs the lifecycle emitter. Must be called before use.
func (m *Manager) SetEmitter(e Emitter) {
	if e != nil {
		m.emitter = e
	}
}

// SuspendTime suspends a running execution until the given deadline.
func (m *Manager) SuspendTime(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, stepKey string, until time.Time) (*Step, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	if stepKey == "" {
		return nil, polos.NewError(polos.KindInvalidArgument, "step key is required")
	}
	s := &Step{
		Entity:      polos.NewEntity(),
		ID:          id.NewWaitID(),
		ProjectID:   project,
		ExecutionID: execID,
		StepKey:     stepKey,
		Kind:        KindTime,
		WaitUntil:   &until,
	}
	return m.suspend(ctx, s)
}

// SuspendEvent suspends a running execution until an event arrives on the
// topic, optionally filtered by correlation key.
func (m *Manager) SuspendEvent(ctx context.Context, project tenant.ProjectID, execID id.ExecutionID, stepKey, topic, correlationKey string) (*Step, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	if stepKey == "" || topic == "" {
		return nil, polos.NewError(polos.KindInvalidArgument, "step key and topic are required")
	}

	// Record the topic head so only events published after the suspension
	// can satisfy the wait, and the catch-up sweep knows where to read
	// from. A topic that does not exist yet starts at zero.
	var cursor int64
	t, err := m.events.GetTopic(ctx, project, topic)
	if err != nil && !polos.IsNotFound(err) {
		return nil, err
	}
	if err == nil {
		cursor = t.NextSeq - 1
	}

	s := &Step{
		Entity:         polos.NewEntity(),
		ID:             id.NewWaitID(),
		ProjectID:      project,
		ExecutionID:    execID,
		StepKey:        stepKey,
		Kind:           KindEvent,
		Topic:          topic,
		CorrelationKey: correlationKey,
		EventCursor:    cursor,
	}
	return m.suspend(ctx, s)
}

func (m *Manager) suspend(ctx context.Context, s *Step) (*Step, error) {
	ok, err := m.store.SuspendExecution(ctx, s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, polos.Errorf(polos.KindConflict, "execution %s is not running", s.ExecutionID)
	}
	m.emitter.WaitSuspended(ctx, s)
	m.logger.DebugContext(ctx, "execution suspended",
		"execution_id", s.ExecutionID, "wait_id", s.ID, "kind", s.Kind, "step_key", s.StepKey)
	return s, nil
}

// Resume fires a wait step with the given trigger. Idempotent: a step
// already resumed (or whose execution was cancelled) is skipped silently.
func (m *Manager) Resume(ctx context.Context, s *Step, t Trigger) (bool, error) {
	if t.FiredAt.IsZero() {
		t.FiredAt = m.now()
	}
	ok, err := m.store.ResumeWaitStep(ctx, s.ProjectID, s.ID, t)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	m.emitter.WaitResumed(ctx, s, t)
	m.logger.DebugContext(ctx, "execution resumed",
		"execution_id", s.ExecutionID, "wait_id", s.ID, "kind", s.Kind)
	return true, nil
}

// SweepDue resumes every time wait whose deadline has passed. Runs under
// an admin context; returns the number resumed.
func (m *Manager) SweepDue(ctx context.Context, limit int) (int, error) {
	due, err := m.store.ListDueTimeWaits(ctx, m.now(), limit)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, s := range due {
		ok, err := m.Resume(ctx, s, Trigger{Kind: KindTime})
		if err != nil {
			m.logger.ErrorContext(ctx, "time wait resume failed",
				"wait_id", s.ID, "execution_id", s.ExecutionID, "error", err)
			continue
		}
		if ok {
			resumed++
		}
	}
	return resumed, nil
}

// OnPublished resumes every event wait on the topic that matches the
// published event's correlation key. Called by the event log after a
// publish commits.
func (m *Manager) OnPublished(ctx context.Context, project tenant.ProjectID, topic string, eventSeq int64, correlationKey string, payload []byte) (int, error) {
	waits, err := m.store.ListEventWaits(ctx, project, topic)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, s := range waits {
		if s.EventCursor >= eventSeq {
			// The wait suspended after this event; it cannot satisfy it.
			continue
		}
		if s.CorrelationKey != "" && s.CorrelationKey != correlationKey {
			continue
		}
		ok, err := m.Resume(ctx, s, Trigger{
			Kind:     KindEvent,
			EventSeq: eventSeq,
			Payload:  payload,
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "event wait resume failed",
				"wait_id", s.ID, "execution_id", s.ExecutionID, "error", err)
			continue
		}
		if ok {
			resumed++
		}
	}
	return resumed, nil
}

// SweepEvents resumes event waits whose post-publish notification was
// missed: a crash between commit and notify, or a publish on another
// instance. Each pending wait reads its topic from the recorded cursor;
// the first matching event resumes it, and non-matching events advance
// the cursor so later sweeps skip them. Runs under an admin context;
// returns the number resumed.
func (m *Manager) SweepEvents(ctx context.Context, limit int) (int, error) {
	pending, err := m.store.ListPendingEventWaits(ctx, limit)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, s := range pending {
		events, err := m.events.ReadEvents(ctx, s.ProjectID, s.Topic, s.EventCursor, limit)
		if err != nil {
			if polos.IsNotFound(err) {
				// No events published on the topic yet.
				continue
			}
			m.logger.ErrorContext(ctx, "event wait catch-up read failed",
				"wait_id", s.ID, "topic", s.Topic, "error", err)
			continue
		}

		matched := false
		seen := s.EventCursor
		for _, e := range events {
			seen = e.Seq
			if s.CorrelationKey != "" && s.CorrelationKey != e.PartitionKey {
				continue
			}
			matched = true
			ok, rerr := m.Resume(ctx, s, Trigger{
				Kind:     KindEvent,
				EventSeq: e.Seq,
				Payload:  e.Payload,
			})
			if rerr != nil {
				m.logger.ErrorContext(ctx, "event wait resume failed",
					"wait_id", s.ID, "execution_id", s.ExecutionID, "error", rerr)
				break
			}
			if ok {
				resumed++
			}
			break
		}
		if !matched && seen > s.EventCursor {
			if err := m.store.AdvanceWaitCursor(ctx, s.ProjectID, s.ID, seen); err != nil && !polos.IsNotFound(err) {
				m.logger.ErrorContext(ctx, "event wait cursor advance failed",
					"wait_id", s.ID, "error", err)
			}
		}
	}
	return resumed, nil
}
