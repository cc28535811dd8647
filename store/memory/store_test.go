package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/execution"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/step"
	"github.com/polos-dev/polos-sub001/store/memory"
	"github.com/polos-dev/polos-sub001/tenant"
	"github.com/polos-dev/polos-sub001/wait"
	"github.com/polos-dev/polos-sub001/worker"
)

func seedExecution(t *testing.T, s *memory.Store, project tenant.ProjectID) *execution.Execution {
	t.Helper()
	e := &execution.Execution{
		Entity:       polos.NewEntity(),
		ID:           id.NewExecutionID(),
		ProjectID:    project,
		WorkflowID:   "wf1",
		DeploymentID: "d1",
		Status:       execution.StatusQueued,
	}
	if err := s.CreateExecution(context.Background(), e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	return e
}

func TestStore_TenantScopedReads(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	e := seedExecution(t, s, "p1")

	// A different project cannot see the row at all.
	if _, err := s.GetExecution(ctx, "p2", e.ID); !errors.Is(err, polos.ErrExecutionNotFound) {
		t.Errorf("cross-tenant GetExecution: err = %v, want ErrExecutionNotFound", err)
	}

	// Nor mutate it through the conditional updates.
	if ok, err := s.TransitionExecution(ctx, "p2", e.ID, execution.StatusQueued, execution.StatusCancelled); err == nil && ok {
		t.Error("cross-tenant TransitionExecution succeeded")
	}
	cur, err := s.GetExecution(ctx, "p1", e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if cur.Status != execution.StatusQueued {
		t.Errorf("status = %q after cross-tenant transition attempt, want queued", cur.Status)
	}
}

func TestStore_StepOutputsTenantScoped(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	e := seedExecution(t, s, "p1")
	o := &step.Output{
		Entity:      polos.NewEntity(),
		ID:          id.NewStepID(),
		ProjectID:   "p1",
		ExecutionID: e.ID,
		StepKey:     "k",
		Success:     true,
		Value:       []byte(`1`),
	}
	if err := s.SaveStepOutput(ctx, o); err != nil {
		t.Fatalf("SaveStepOutput: %v", err)
	}

	if _, err := s.GetStepOutput(ctx, "p2", e.ID, "k"); !errors.Is(err, polos.ErrStepOutputNotFound) {
		t.Errorf("cross-tenant GetStepOutput: err = %v, want ErrStepOutputNotFound", err)
	}

	// A foreign project cannot overwrite the memoized value either.
	forged := &step.Output{
		Entity:      polos.NewEntity(),
		ID:          id.NewStepID(),
		ProjectID:   "p2",
		ExecutionID: e.ID,
		StepKey:     "k",
		Success:     true,
		Value:       []byte(`99`),
	}
	if err := s.SaveStepOutput(ctx, forged); err == nil {
		t.Error("cross-tenant SaveStepOutput on existing key succeeded")
	}
	cur, err := s.GetStepOutput(ctx, "p1", e.ID, "k")
	if err != nil {
		t.Fatalf("GetStepOutput: %v", err)
	}
	if string(cur.Value) != `1` {
		t.Errorf("value = %s after cross-tenant write attempt, want 1", cur.Value)
	}
}

func TestStore_CrossProjectScansRequireElevation(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ListQueuedExecutions(ctx, 10); !errors.Is(err, polos.ErrAdminRequired) {
		t.Errorf("ListQueuedExecutions: err = %v, want ErrAdminRequired", err)
	}
	if _, err := s.ListDueTimeWaits(ctx, time.Now(), 10); !errors.Is(err, polos.ErrAdminRequired) {
		t.Errorf("ListDueTimeWaits: err = %v, want ErrAdminRequired", err)
	}
	if _, err := s.MarkStaleWorkersOffline(ctx, time.Now()); !errors.Is(err, polos.ErrAdminRequired) {
		t.Errorf("MarkStaleWorkersOffline: err = %v, want ErrAdminRequired", err)
	}
	if _, err := s.ListDueSchedules(ctx, time.Now(), 10); !errors.Is(err, polos.ErrAdminRequired) {
		t.Errorf("ListDueSchedules: err = %v, want ErrAdminRequired", err)
	}
	if _, err := s.ListPendingEventWaits(ctx, 10); !errors.Is(err, polos.ErrAdminRequired) {
		t.Errorf("ListPendingEventWaits: err = %v, want ErrAdminRequired", err)
	}

	admin := tenant.WithAdmin(ctx)
	if _, err := s.ListQueuedExecutions(admin, 10); err != nil {
		t.Errorf("elevated ListQueuedExecutions: %v", err)
	}
	if _, err := s.ListDueTimeWaits(admin, time.Now(), 10); err != nil {
		t.Errorf("elevated ListDueTimeWaits: %v", err)
	}
}

func TestStore_UpsertWorkerRejectsIDTakeover(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	workerID := id.NewWorkerID()

	w := &worker.Worker{
		Entity:          polos.NewEntity(),
		ID:              workerID,
		ProjectID:       "p1",
		Mode:            worker.ModePush,
		PushEndpointURL: "http://w1/push",
		MaxConcurrent:   1,
		Status:          worker.StatusOffline,
	}
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}

	stolen := *w
	stolen.ProjectID = "p2"
	if err := s.UpsertWorker(ctx, &stolen); polos.KindOf(err) != polos.KindConflict {
		t.Errorf("cross-project worker id takeover: err = %v, want Conflict kind", err)
	}
}

func TestStore_UpsertWorkerPreservesLiveness(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	workerID := id.NewWorkerID()

	w := &worker.Worker{
		Entity:          polos.NewEntity(),
		ID:              workerID,
		ProjectID:       "p1",
		Mode:            worker.ModePush,
		PushEndpointURL: "http://w1/push",
		MaxConcurrent:   1,
		Status:          worker.StatusOffline,
	}
	if err := s.UpsertWorker(ctx, w); err != nil {
		t.Fatalf("UpsertWorker: %v", err)
	}
	beat := time.Now().Add(-time.Second)
	if _, err := s.HeartbeatWorker(ctx, "p1", workerID, beat); err != nil {
		t.Fatalf("HeartbeatWorker: %v", err)
	}

	again := *w
	again.MaxConcurrent = 4
	if err := s.UpsertWorker(ctx, &again); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	cur, err := s.GetWorker(ctx, "p1", workerID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if cur.Status != worker.StatusOnline {
		t.Errorf("status = %q after re-registration, want online preserved", cur.Status)
	}
	if !cur.LastHeartbeat.Equal(beat) {
		t.Errorf("LastHeartbeat = %v, want preserved %v", cur.LastHeartbeat, beat)
	}
	if cur.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want updated to 4", cur.MaxConcurrent)
	}
}

func TestStore_ResumeCancelledExecutionIsNoOp(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	e := seedExecution(t, s, "p1")
	if ok, err := s.ClaimExecution(ctx, "p1", e.ID, id.NewWorkerID(), 1); err != nil || !ok {
		t.Fatalf("ClaimExecution: ok=%v err=%v", ok, err)
	}
	ws := &wait.Step{
		Entity:      polos.NewEntity(),
		ID:          id.NewWaitID(),
		ProjectID:   "p1",
		ExecutionID: e.ID,
		StepKey:     "sleep",
		Kind:        wait.KindTime,
	}
	if ok, err := s.SuspendExecution(ctx, ws); err != nil || !ok {
		t.Fatalf("SuspendExecution: ok=%v err=%v", ok, err)
	}
	if ok, err := s.TransitionExecution(ctx, "p1", e.ID, execution.StatusWaiting, execution.StatusCancelled); err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	// Resuming an abandoned wait step neither errors nor revives the run.
	ok, err := s.ResumeWaitStep(ctx, "p1", ws.ID, wait.Trigger{Kind: wait.KindTime})
	if err != nil {
		t.Fatalf("ResumeWaitStep: %v", err)
	}
	if ok {
		t.Error("ResumeWaitStep resumed a cancelled execution")
	}
	cur, _ := s.GetExecution(ctx, "p1", e.ID)
	if cur.Status != execution.StatusCancelled {
		t.Errorf("status = %q, want cancelled", cur.Status)
	}

	// The abandoned step is dropped so the due sweep stops seeing it.
	if _, err := s.GetWaitStep(ctx, "p1", ws.ID); !polos.IsNotFound(err) {
		t.Errorf("GetWaitStep after no-op resume: err = %v, want NotFound", err)
	}
	due, err := s.ListDueTimeWaits(tenant.WithAdmin(ctx), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("ListDueTimeWaits: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("%d due waits after no-op resume, want 0", len(due))
	}
}

func TestStore_ClaimExecutionEnforcesCapacity(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	workerID := id.NewWorkerID()

	first := seedExecution(t, s, "p1")
	second := seedExecution(t, s, "p1")

	if ok, err := s.ClaimExecution(ctx, "p1", first.ID, workerID, 1); err != nil || !ok {
		t.Fatalf("first ClaimExecution: ok=%v err=%v", ok, err)
	}
	ok, err := s.ClaimExecution(ctx, "p1", second.ID, workerID, 1)
	if err != nil {
		t.Fatalf("second ClaimExecution: %v", err)
	}
	if ok {
		t.Fatal("ClaimExecution exceeded the worker's capacity")
	}
	cur, _ := s.GetExecution(ctx, "p1", second.ID)
	if cur.Status != execution.StatusQueued {
		t.Errorf("status = %q, want queued", cur.Status)
	}

	// Releasing the running execution frees the slot.
	if ok, err := s.ReleaseExecution(ctx, "p1", first.ID); err != nil || !ok {
		t.Fatalf("ReleaseExecution: ok=%v err=%v", ok, err)
	}
	if ok, err := s.ClaimExecution(ctx, "p1", second.ID, workerID, 1); err != nil || !ok {
		t.Fatalf("ClaimExecution after release: ok=%v err=%v", ok, err)
	}
}

func TestStore_EventsScopedPerProject(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.PublishEvents(ctx, "p1", "t1", []eventlog.Message{{Type: "a"}}); err != nil {
		t.Fatalf("PublishEvents: %v", err)
	}
	if _, err := s.ReadEvents(ctx, "p2", "t1", 0, 10); !errors.Is(err, polos.ErrTopicNotFound) {
		t.Errorf("cross-tenant ReadEvents: err = %v, want ErrTopicNotFound", err)
	}
}
