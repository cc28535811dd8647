// Package polos provides a multi-tenant durable workflow orchestration
// engine. It accepts workflow, agent, and tool executions, pushes them to
// remote workers with free capacity, lets a running execution suspend on a
// timer or an external event and resume deterministically, and persists
// per-step results so that completed work survives crashes.
//
// Polos is designed as a library, not a service. Import it, configure a
// store, and start the engine:
//
//	st, err := postgres.New(ctx, connString)
//	eng, err := engine.New(st)
//	err = eng.Start(ctx)
//
// # Architecture
//
// Polos follows a composable store pattern where each subsystem
// (execution, step, wait, eventlog, worker, schedule, workflow) defines
// its own store interface. A single backend implements all of them; the
// backend is the only source of truth, so any number of orchestrator
// processes can run against it concurrently.
//
// Every cross-step invariant — claim-before-dispatch, resume-exactly-once,
// gap-free event sequencing, schedule-fire-at-most-once — is expressed as
// an atomic conditional update in the store, never as in-process locking.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package polos
