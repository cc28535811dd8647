package step_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/id"
	"github.com/polos-dev/polos-sub001/step"
	"github.com/polos-dev/polos-sub001/store/memory"
	"github.com/polos-dev/polos-sub001/tenant"
)

const testProject = tenant.ProjectID("p1")

func newRecorder() *step.Recorder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return step.NewRecorder(memory.New(), logger)
}

func TestRecorder_RecordAndLookup(t *testing.T) {
	r := newRecorder()
	ctx := context.Background()
	execID := id.NewExecutionID()

	if _, err := r.Lookup(ctx, testProject, execID, "s1"); !errors.Is(err, polos.ErrStepOutputNotFound) {
		t.Fatalf("Lookup before record: err = %v, want ErrStepOutputNotFound", err)
	}

	if _, err := r.Record(ctx, testProject, execID, "s1", []byte(`{"y":2}`), ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	o, err := r.Lookup(ctx, testProject, execID, "s1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !o.Success {
		t.Error("Success = false, want true")
	}
	if string(o.Value) != `{"y":2}` {
		t.Errorf("Value = %s, want {\"y\":2}", o.Value)
	}
}

func TestRecorder_FirstSuccessWins(t *testing.T) {
	r := newRecorder()
	ctx := context.Background()
	execID := id.NewExecutionID()

	if _, err := r.Record(ctx, testProject, execID, "s1", []byte(`1`), ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// A replay computing a different value must not overwrite the
	// memoized output.
	if _, err := r.Record(ctx, testProject, execID, "s1", []byte(`2`), ""); err != nil {
		t.Fatalf("Record replay: %v", err)
	}

	o, err := r.Lookup(ctx, testProject, execID, "s1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(o.Value) != `1` {
		t.Errorf("Value = %s, want 1 (first write wins)", o.Value)
	}
}

func TestRecorder_FailedStepDoesNotMemoize(t *testing.T) {
	r := newRecorder()
	ctx := context.Background()
	execID := id.NewExecutionID()

	if _, err := r.Record(ctx, testProject, execID, "s1", nil, "boom"); err != nil {
		t.Fatalf("Record failure: %v", err)
	}

	// A failed attempt never satisfies replay; the step must run again.
	if _, err := r.Lookup(ctx, testProject, execID, "s1"); !errors.Is(err, polos.ErrStepOutputNotFound) {
		t.Fatalf("Lookup of failed step: err = %v, want ErrStepOutputNotFound", err)
	}

	// A later success replaces the failed attempt.
	if _, err := r.Record(ctx, testProject, execID, "s1", []byte(`ok`), ""); err != nil {
		t.Fatalf("Record retry: %v", err)
	}
	o, err := r.Lookup(ctx, testProject, execID, "s1")
	if err != nil {
		t.Fatalf("Lookup after retry: %v", err)
	}
	if string(o.Value) != `ok` {
		t.Errorf("Value = %s, want ok", o.Value)
	}
}

func TestRecorder_CopyFromExecution(t *testing.T) {
	r := newRecorder()
	ctx := context.Background()
	parent := id.NewExecutionID()
	child := id.NewExecutionID()

	o, err := r.CopyFromExecution(ctx, testProject, parent, "sub", child, []byte(`{"done":true}`))
	if err != nil {
		t.Fatalf("CopyFromExecution: %v", err)
	}
	if o.SourceExecutionID == nil || *o.SourceExecutionID != child {
		t.Errorf("SourceExecutionID = %v, want %v", o.SourceExecutionID, child)
	}

	got, err := r.Lookup(ctx, testProject, parent, "sub")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if string(got.Value) != `{"done":true}` {
		t.Errorf("Value = %s, want {\"done\":true}", got.Value)
	}
}

func TestRecorder_TenantScoped(t *testing.T) {
	r := newRecorder()
	ctx := context.Background()
	execID := id.NewExecutionID()

	if _, err := r.Record(ctx, testProject, execID, "s1", []byte(`x`), ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := r.Lookup(ctx, "p2", execID, "s1"); !errors.Is(err, polos.ErrStepOutputNotFound) {
		t.Fatalf("cross-tenant Lookup: err = %v, want ErrStepOutputNotFound", err)
	}
}
