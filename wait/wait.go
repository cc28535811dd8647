// Package wait manages durable suspension. An execution that calls sleep
// or wait-for-event suspends into the waiting state with a wait step row;
// the manager resumes it when the deadline passes or a matching event is
// published, carrying the trigger forward as the wait step's memoized
// output so the replay can read it.
package wait

import (
	"encoding/json"
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/tenant"
)

// Kind distinguishes time waits from event waits.
type Kind string

const (
	KindTime  Kind = "time"
	KindEvent Kind = "event"
)

// Step is one pending suspension. An execution has at most one pending
// wait step at a time.
type Step struct {
	polos.Entity

	ID          id.WaitID        `json:"id"`
	ProjectID   tenant.ProjectID `json:"project_id"`
	ExecutionID id.ExecutionID   `json:"execution_id"`

	// StepKey names the wait within the workflow code, so the replayed
	// run finds the trigger under the same key it suspended on.
	StepKey string `json:"step_key"`

	Kind Kind `json:"kind"`

	// WaitUntil is the resumption deadline for time waits.
	WaitUntil *time.Time `json:"wait_until,omitempty"`

	// Topic is the awaited topic for event waits.
	Topic string `json:"topic,omitempty"`

	// CorrelationKey, when set, narrows the match to events carrying the
	// same key. Empty matches any event on the topic.
	CorrelationKey string `json:"correlation_key,omitempty"`

	// EventCursor is the topic sequence already observed when the event
	// wait suspended. Only events with Seq > EventCursor can satisfy the
	// wait; the catch-up sweep resumes reading from here after a missed
	// in-process notification.
	EventCursor int64 `json:"event_cursor,omitempty"`
}

// Trigger is what resumed a wait step. It is recorded as the step's
// memoized output so the re-executed workflow can read what woke it.
type Trigger struct {
	Kind Kind `json:"kind"`

	// FiredAt is when the resume happened.
	FiredAt time.Time `json:"fired_at"`

	// EventSeq and Payload are set for event triggers.
	EventSeq int64  `json:"event_seq,omitempty"`
	Payload  []byte `json:"payload,omitempty"`
}

// Encode serializes the trigger for step-output storage.
func (t Trigger) Encode() []byte {
	b, _ := json.Marshal(t)
	return b
}

// DecodeTrigger parses a step-output value back into a trigger.
func DecodeTrigger(b []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(b, &t); err != nil {
		return Trigger{}, polos.Errorf(polos.KindInternal, "decode wait trigger: %v", err)
	}
	return t, nil
}
