package eventlog

import (
	"context"

	"github.com/polos-dev/polos-sub001/tenant"
)

// Store defines the persistence contract for topics and events.
type Store interface {
	// PublishEvents creates the topic if absent and appends the batch,
	// allocating a contiguous, strictly increasing block of sequence ids
	// in one atomic unit with the inserts. Two concurrent publishers to
	// the same topic never receive interleaved ids, and a rolled-back
	// publish leaves no gap. Returns the stored events in input order.
	// Returns a Conflict-kind error on storage contention; the caller
	// retries, events are never dropped.
	PublishEvents(ctx context.Context, project tenant.ProjectID, topicName string, msgs []Message) ([]*Event, error)

	// GetTopic retrieves a topic by name within the project. Returns
	// polos.ErrTopicNotFound when absent.
	GetTopic(ctx context.Context, project tenant.ProjectID, topicName string) (*Topic, error)

	// ReadEvents returns up to limit committed events on the topic with
	// Seq > afterSeq, in sequence order. The cursor is a sequence id,
	// never wall-clock time, so resumption is deterministic.
	ReadEvents(ctx context.Context, project tenant.ProjectID, topicName string, afterSeq int64, limit int) ([]*Event, error)
}
