package polos

import "time"

// Config holds tuning for the engine's periodic sweepers and dispatch.
type Config struct {
	// DispatchInterval is how often the dispatcher scans for queued
	// executions.
	DispatchInterval time.Duration

	// DispatchBatch is the maximum number of queued executions considered
	// per dispatch pass.
	DispatchBatch int

	// PushTimeout bounds a single push call to a worker. A timed-out push
	// leaves the execution queued for retry.
	PushTimeout time.Duration

	// TimeWaitInterval is how often due time waits are swept and resumed.
	TimeWaitInterval time.Duration

	// EventWaitInterval is how often event waits are checked against their
	// topics for publishes whose in-process notification was missed.
	EventWaitInterval time.Duration

	// LivenessInterval is how often worker heartbeats are checked.
	LivenessInterval time.Duration

	// LivenessTimeout is how stale a heartbeat may be before the worker is
	// marked offline.
	LivenessTimeout time.Duration

	// ScheduleInterval is how often due schedules are fired.
	ScheduleInterval time.Duration

	// SweepBatch is the maximum number of records handled per sweep pass
	// for time waits and schedules.
	SweepBatch int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DispatchInterval:  500 * time.Millisecond,
		DispatchBatch:     50,
		PushTimeout:       10 * time.Second,
		TimeWaitInterval:  1 * time.Second,
		EventWaitInterval: 1 * time.Second,
		LivenessInterval:  5 * time.Second,
		LivenessTimeout:   30 * time.Second,
		ScheduleInterval:  1 * time.Second,
		SweepBatch:        100,
	}
}
