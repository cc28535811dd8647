// Package eventlog is the append-only, per-topic, gap-free ordered event
// store. Topics are tenant-scoped and auto-created on first publish;
// sequence ids within a topic are contiguous for committed events, so a
// reader can infer write order and completeness from the sequence alone.
package eventlog

import (
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Topic is a named, tenant-scoped ordered event stream.
type Topic struct {
	polos.Entity

	ID        id.TopicID       `json:"id"`
	ProjectID tenant.ProjectID `json:"project_id"`
	Name      string           `json:"name"`

	// NextSeq is the sequence id the next published event will receive.
	// Managed by the store inside the publish transaction.
	NextSeq int64 `json:"next_seq"`
}

// Event is one immutable entry in a topic.
type Event struct {
	ID      id.EventID `json:"id"`
	TopicID id.TopicID `json:"topic_id"`

	// Seq is strictly increasing and gap-free within the topic.
	Seq int64 `json:"seq"`

	Type string `json:"type"`

	// Payload is opaque to the core.
	Payload []byte `json:"payload,omitempty"`

	// PartitionKey doubles as the correlation key for event waits.
	PartitionKey string `json:"partition_key,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// Message is one entry of a publish batch.
type Message struct {
	Type         string `json:"type"`
	Payload      []byte `json:"payload,omitempty"`
	PartitionKey string `json:"partition_key,omitempty"`
}
