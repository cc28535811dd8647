package wait_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/store/memory"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/wait"
)

const testProject = tenant.ProjectID("p1")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runningExecution seeds an execution in the running state.
func runningExecution(t *testing.T, s *memory.Store) *execution.Execution {
	t.Helper()
	ctx := context.Background()
	e := &execution.Execution{
		Entity:       polos.NewEntity(),
		ID:           id.NewExecutionID(),
		ProjectID:    testProject,
		WorkflowID:   "wf1",
		DeploymentID: "d1",
		Status:       execution.StatusQueued,
	}
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	claimed, err := s.ClaimExecution(ctx, testProject, e.ID, id.NewWorkerID(), 1)
	if err != nil || !claimed {
		t.Fatalf("ClaimExecution: claimed=%v err=%v", claimed, err)
	}
	return e
}

func execStatus(t *testing.T, s *memory.Store, execID id.ExecutionID) execution.Status {
	t.Helper()
	e, err := s.GetExecution(context.Background(), testProject, execID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	return e.Status
}

func TestManager_SuspendTime(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()
	e := runningExecution(t, s)

	until := time.Now().Add(time.Minute)
	ws, err := m.SuspendTime(ctx, testProject, e.ID, "s1", until)
	if err != nil {
		t.Fatalf("SuspendTime: %v", err)
	}
	if ws.Kind != wait.KindTime {
		t.Errorf("Kind = %q, want %q", ws.Kind, wait.KindTime)
	}
	if got := execStatus(t, s, e.ID); got != execution.StatusWaiting {
		t.Errorf("status = %q, want %q", got, execution.StatusWaiting)
	}

	// Only a running execution may suspend.
	if _, err := m.SuspendTime(ctx, testProject, e.ID, "s2", until); !polos.IsConflict(err) {
		t.Fatalf("SuspendTime while waiting: err = %v, want Conflict kind", err)
	}
}

func TestManager_ResumeIdempotent(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()
	e := runningExecution(t, s)

	ws, err := m.SuspendTime(ctx, testProject, e.ID, "s1", time.Now())
	if err != nil {
		t.Fatalf("SuspendTime: %v", err)
	}

	ok, err := m.Resume(ctx, ws, wait.Trigger{Kind: wait.KindTime})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !ok {
		t.Fatal("first Resume = false, want true")
	}
	if got := execStatus(t, s, e.ID); got != execution.StatusQueued {
		t.Errorf("status = %q, want %q", got, execution.StatusQueued)
	}

	// Racing timer sweep and event match: the second resume is a no-op.
	ok, err = m.Resume(ctx, ws, wait.Trigger{Kind: wait.KindEvent, EventSeq: 7})
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	if ok {
		t.Fatal("second Resume = true, want false (no-op)")
	}
	if got := execStatus(t, s, e.ID); got != execution.StatusQueued {
		t.Errorf("status after double resume = %q, want %q", got, execution.StatusQueued)
	}

	// The trigger is memoized under the wait's step key.
	out, err := s.GetStepOutput(ctx, testProject, e.ID, "s1")
	if err != nil {
		t.Fatalf("GetStepOutput: %v", err)
	}
	trig, err := wait.DecodeTrigger(out.Value)
	if err != nil {
		t.Fatalf("DecodeTrigger: %v", err)
	}
	if trig.Kind != wait.KindTime {
		t.Errorf("trigger kind = %q, want %q (first resume wins)", trig.Kind, wait.KindTime)
	}
}

func TestManager_SweepDue(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()

	past := runningExecution(t, s)
	future := runningExecution(t, s)

	if _, err := m.SuspendTime(ctx, testProject, past.ID, "s1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SuspendTime past: %v", err)
	}
	if _, err := m.SuspendTime(ctx, testProject, future.ID, "s1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SuspendTime future: %v", err)
	}

	resumed, err := m.SweepDue(tenant.WithAdmin(ctx), 100)
	if err != nil {
		t.Fatalf("SweepDue: %v", err)
	}
	if resumed != 1 {
		t.Fatalf("SweepDue resumed %d, want 1", resumed)
	}
	if got := execStatus(t, s, past.ID); got != execution.StatusQueued {
		t.Errorf("past status = %q, want %q", got, execution.StatusQueued)
	}
	if got := execStatus(t, s, future.ID); got != execution.StatusWaiting {
		t.Errorf("future status = %q, want %q", got, execution.StatusWaiting)
	}
}

func TestManager_SweepDue_RequiresElevation(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())

	if _, err := m.SweepDue(context.Background(), 100); err == nil {
		t.Fatal("SweepDue without elevated context: err = nil, want error")
	}
}

func TestManager_OnPublished_CorrelationFilter(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()

	matched := runningExecution(t, s)
	filtered := runningExecution(t, s)
	anyKey := runningExecution(t, s)

	if _, err := m.SuspendEvent(ctx, testProject, matched.ID, "s1", "orders", "order-1"); err != nil {
		t.Fatalf("SuspendEvent matched: %v", err)
	}
	if _, err := m.SuspendEvent(ctx, testProject, filtered.ID, "s1", "orders", "order-2"); err != nil {
		t.Fatalf("SuspendEvent filtered: %v", err)
	}
	if _, err := m.SuspendEvent(ctx, testProject, anyKey.ID, "s1", "orders", ""); err != nil {
		t.Fatalf("SuspendEvent any: %v", err)
	}

	resumed, err := m.OnPublished(ctx, testProject, "orders", 42, "order-1", []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("OnPublished: %v", err)
	}
	if resumed != 2 {
		t.Fatalf("OnPublished resumed %d, want 2 (matching key and empty filter)", resumed)
	}

	if got := execStatus(t, s, matched.ID); got != execution.StatusQueued {
		t.Errorf("matched status = %q, want queued", got)
	}
	if got := execStatus(t, s, filtered.ID); got != execution.StatusWaiting {
		t.Errorf("filtered status = %q, want waiting", got)
	}
	if got := execStatus(t, s, anyKey.ID); got != execution.StatusQueued {
		t.Errorf("any-key status = %q, want queued", got)
	}

	// The matched event's sequence id is readable as the step output.
	out, err := s.GetStepOutput(ctx, testProject, matched.ID, "s1")
	if err != nil {
		t.Fatalf("GetStepOutput: %v", err)
	}
	trig, err := wait.DecodeTrigger(out.Value)
	if err != nil {
		t.Fatalf("DecodeTrigger: %v", err)
	}
	if trig.EventSeq != 42 {
		t.Errorf("trigger EventSeq = %d, want 42", trig.EventSeq)
	}
}

func TestManager_SweepDue_DropsWaitOfCancelledExecution(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()

	e := runningExecution(t, s)
	ws, err := m.SuspendTime(ctx, testProject, e.ID, "s1", time.Now().Add(-time.Second))
	if err != nil {
		t.Fatalf("SuspendTime: %v", err)
	}

	// Cancel the execution out from under the wait.
	if ok, err := s.TransitionExecution(ctx, testProject, e.ID, execution.StatusWaiting, execution.StatusCancelled); err != nil || !ok {
		t.Fatalf("TransitionExecution: ok=%v err=%v", ok, err)
	}

	admin := tenant.WithAdmin(ctx)
	resumed, err := m.SweepDue(admin, 100)
	if err != nil {
		t.Fatalf("SweepDue: %v", err)
	}
	if resumed != 0 {
		t.Fatalf("SweepDue resumed %d, want 0", resumed)
	}

	// The orphaned step is dropped, not re-listed by every later sweep.
	if _, err := s.GetWaitStep(ctx, testProject, ws.ID); !polos.IsNotFound(err) {
		t.Fatalf("GetWaitStep after sweep: err = %v, want NotFound", err)
	}
	due, err := s.ListDueTimeWaits(admin, time.Now(), 100)
	if err != nil {
		t.Fatalf("ListDueTimeWaits: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("still %d due waits after sweep, want 0", len(due))
	}
}

func TestManager_SweepEvents_ResumesMissedPublish(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()

	e := runningExecution(t, s)
	if _, err := m.SuspendEvent(ctx, testProject, e.ID, "s1", "orders", "order-3"); err != nil {
		t.Fatalf("SuspendEvent: %v", err)
	}

	// Publish at the store level: the in-process notification never runs,
	// as after a crash between commit and notify or a publish elsewhere.
	events, err := s.PublishEvents(ctx, testProject, "orders", []eventlog.Message{
		{Type: "order.paid", Payload: []byte(`{"n":3}`), PartitionKey: "order-3"},
	})
	if err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}

	resumed, err := m.SweepEvents(tenant.WithAdmin(ctx), 100)
	if err != nil {
		t.Fatalf("SweepEvents: %v", err)
	}
	if resumed != 1 {
		t.Fatalf("SweepEvents resumed %d, want 1", resumed)
	}
	if got := execStatus(t, s, e.ID); got != execution.StatusQueued {
		t.Errorf("status = %q, want queued", got)
	}

	out, err := s.GetStepOutput(ctx, testProject, e.ID, "s1")
	if err != nil {
		t.Fatalf("GetStepOutput: %v", err)
	}
	trig, err := wait.DecodeTrigger(out.Value)
	if err != nil {
		t.Fatalf("DecodeTrigger: %v", err)
	}
	if trig.Kind != wait.KindEvent || trig.EventSeq != events[0].Seq {
		t.Errorf("trigger = %+v, want event trigger with seq %d", trig, events[0].Seq)
	}
}

func TestManager_SweepEvents_IgnoresEventsBeforeSuspension(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()

	if _, err := s.PublishEvents(ctx, testProject, "orders", []eventlog.Message{
		{Type: "order.paid", Payload: []byte(`{"n":1}`), PartitionKey: "order-1"},
	}); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}

	e := runningExecution(t, s)
	if _, err := m.SuspendEvent(ctx, testProject, e.ID, "s1", "orders", "order-1"); err != nil {
		t.Fatalf("SuspendEvent: %v", err)
	}

	admin := tenant.WithAdmin(ctx)
	resumed, err := m.SweepEvents(admin, 100)
	if err != nil {
		t.Fatalf("SweepEvents: %v", err)
	}
	if resumed != 0 {
		t.Fatalf("SweepEvents resumed %d, want 0 (event predates the wait)", resumed)
	}
	if got := execStatus(t, s, e.ID); got != execution.StatusWaiting {
		t.Errorf("status = %q, want waiting", got)
	}

	// A publish after the suspension does satisfy it.
	if _, err := s.PublishEvents(ctx, testProject, "orders", []eventlog.Message{
		{Type: "order.paid", Payload: []byte(`{"n":2}`), PartitionKey: "order-1"},
	}); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}
	if resumed, err = m.SweepEvents(admin, 100); err != nil || resumed != 1 {
		t.Fatalf("second SweepEvents: resumed=%d err=%v, want 1", resumed, err)
	}
}

func TestManager_SweepEvents_AdvancesCursorPastMismatches(t *testing.T) {
	s := memory.New()
	m := wait.NewManager(s, s, testLogger())
	ctx := context.Background()

	e := runningExecution(t, s)
	ws, err := m.SuspendEvent(ctx, testProject, e.ID, "s1", "orders", "order-9")
	if err != nil {
		t.Fatalf("SuspendEvent: %v", err)
	}

	if _, err := s.PublishEvents(ctx, testProject, "orders", []eventlog.Message{
		{Type: "order.paid", PartitionKey: "order-1"},
		{Type: "order.paid", PartitionKey: "order-2"},
	}); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}

	admin := tenant.WithAdmin(ctx)
	resumed, err := m.SweepEvents(admin, 100)
	if err != nil {
		t.Fatalf("SweepEvents: %v", err)
	}
	if resumed != 0 {
		t.Fatalf("SweepEvents resumed %d, want 0", resumed)
	}

	cur, err := s.GetWaitStep(ctx, testProject, ws.ID)
	if err != nil {
		t.Fatalf("GetWaitStep: %v", err)
	}
	if cur.EventCursor != 2 {
		t.Errorf("EventCursor = %d, want 2 (read past mismatched events)", cur.EventCursor)
	}
}
