package eventlog

import (
	"context"
	"log/slog"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Notifier is told about committed events after a publish. The wait
// manager hangs off this hook to resume matching event waits; notification
// failures never roll back the publish.
type Notifier interface {
	EventPublished(ctx context.Context, project tenant.ProjectID, topicName string, e *Event)
}

// Emitter receives publish metrics.
type Emitter interface {
	EventsPublished(ctx context.Context, project tenant.ProjectID, topicName string, count int)
}

type nopEmitter struct{}

func (nopEmitter) EventsPublished(context.Context, tenant.ProjectID, string, int) {}

// Log is the publish/read service over the event store.
type Log struct {
	store     Store
	notifiers []Notifier
	emitter   Emitter
	logger    *slog.Logger
}

// NewLog creates an event log service.
func NewLog(store Store, logger *slog.Logger) *Log {
	return &Log{
		store:   store,
		emitter: nopEmitter{},
		logger:  logger.With("component", "eventlog"),
	}
}

// SetEmitter installs the metrics emitter. Must be called before use.
func (l *Log) SetEmitter(e Emitter) {
	if e != nil {
		l.emitter = e
	}
}

// AddNotifier registers a post-publish hook. Must be called before use.
func (l *Log) AddNotifier(n Notifier) {
	if n != nil {
		l.notifiers = append(l.notifiers, n)
	}
}

// Publish appends a batch of messages to the topic, creating it on first
// use, and returns the stored events carrying their assigned sequence ids
// in input order. After the batch commits, notifiers run per event.
func (l *Log) Publish(ctx context.Context, project tenant.ProjectID, topicName string, msgs []Message) ([]*Event, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	if topicName == "" {
		return nil, polos.NewError(polos.KindInvalidArgument, "topic name is required")
	}
	if len(msgs) == 0 {
		return nil, polos.NewError(polos.KindInvalidArgument, "empty publish batch")
	}
	for _, m := range msgs {
		if m.Type == "" {
			return nil, polos.NewError(polos.KindInvalidArgument, "event type is required")
		}
	}

	events, err := l.store.PublishEvents(ctx, project, topicName, msgs)
	if err != nil {
		return nil, err
	}

	l.emitter.EventsPublished(ctx, project, topicName, len(events))
	l.logger.DebugContext(ctx, "events published",
		"topic", topicName, "count", len(events),
		"first_seq", events[0].Seq, "last_seq", events[len(events)-1].Seq)

	for _, e := range events {
		for _, n := range l.notifiers {
			n.EventPublished(ctx, project, topicName, e)
		}
	}
	return events, nil
}

// Read returns committed events after the given sequence cursor.
func (l *Log) Read(ctx context.Context, project tenant.ProjectID, topicName string, afterSeq int64, limit int) ([]*Event, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	if limit <= 0 {
		limit = 100
	}
	return l.store.ReadEvents(ctx, project, topicName, afterSeq, limit)
}

// GetTopic returns the topic record by name.
func (l *Log) GetTopic(ctx context.Context, project tenant.ProjectID, topicName string) (*Topic, error) {
	if project.IsZero() {
		return nil, polos.ErrMissingProject
	}
	return l.store.GetTopic(ctx, project, topicName)
}
