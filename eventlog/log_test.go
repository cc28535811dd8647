package eventlog_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	polos "github.com/polos-dev/polos-sub001"
	"github.com/polos-dev/polos-sub001/eventlog"
	"github.com/polos-dev/polos-sub001/store/memory"
	"github.com/polos-dev/polos-sub001/tenant"
)

const testProject = tenant.ProjectID("p1")

func newLog() *eventlog.Log {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return eventlog.NewLog(memory.New(), logger)
}

func msgs(types ...string) []eventlog.Message {
	out := make([]eventlog.Message, 0, len(types))
	for _, typ := range types {
		out = append(out, eventlog.Message{Type: typ, Payload: []byte(`{}`)})
	}
	return out
}

func TestLog_Publish_SequenceBlocks(t *testing.T) {
	l := newLog()
	ctx := context.Background()

	first, err := l.Publish(ctx, testProject, "t1", msgs("a", "b", "c"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for i, e := range first {
		if e.Seq != int64(i+1) {
			t.Errorf("first batch seq[%d] = %d, want %d", i, e.Seq, i+1)
		}
	}

	second, err := l.Publish(ctx, testProject, "t1", msgs("d", "e"))
	if err != nil {
		t.Fatalf("Publish second: %v", err)
	}
	if second[0].Seq != 4 || second[1].Seq != 5 {
		t.Errorf("second batch seqs = [%d %d], want [4 5]", second[0].Seq, second[1].Seq)
	}
}

func TestLog_Publish_AutoCreatesTopic(t *testing.T) {
	l := newLog()
	ctx := context.Background()

	if _, err := l.GetTopic(ctx, testProject, "t1"); !errors.Is(err, polos.ErrTopicNotFound) {
		t.Fatalf("GetTopic before publish: err = %v, want ErrTopicNotFound", err)
	}

	if _, err := l.Publish(ctx, testProject, "t1", msgs("a")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	topic, err := l.GetTopic(ctx, testProject, "t1")
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if topic.Name != "t1" {
		t.Errorf("Name = %q, want t1", topic.Name)
	}
}

func TestLog_Publish_ConcurrentBatchesDisjoint(t *testing.T) {
	l := newLog()
	ctx := context.Background()

	const publishers = 8
	const perBatch = 5

	var g errgroup.Group
	for range publishers {
		g.Go(func() error {
			_, err := l.Publish(ctx, testProject, "t1", msgs("a", "b", "c", "d", "e"))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Publish: %v", err)
	}

	events, err := l.Read(ctx, testProject, "t1", 0, publishers*perBatch+1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != publishers*perBatch {
		t.Fatalf("committed events = %d, want %d", len(events), publishers*perBatch)
	}
	// Strictly increasing, gap-free.
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Fatalf("seq[%d] = %d, want %d (gap or interleave)", i, e.Seq, i+1)
		}
	}
}

func TestLog_Read_AfterCursor(t *testing.T) {
	l := newLog()
	ctx := context.Background()

	if _, err := l.Publish(ctx, testProject, "t1", msgs("a", "b", "c", "d")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	events, err := l.Read(ctx, testProject, "t1", 2, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 3 || events[1].Seq != 4 {
		t.Errorf("seqs = [%d %d], want [3 4]", events[0].Seq, events[1].Seq)
	}
}

func TestLog_Publish_Validation(t *testing.T) {
	l := newLog()
	ctx := context.Background()

	if _, err := l.Publish(ctx, testProject, "t1", nil); polos.KindOf(err) != polos.KindInvalidArgument {
		t.Errorf("empty batch: err = %v, want InvalidArgument kind", err)
	}
	if _, err := l.Publish(ctx, testProject, "", msgs("a")); polos.KindOf(err) != polos.KindInvalidArgument {
		t.Errorf("empty topic: err = %v, want InvalidArgument kind", err)
	}
	if _, err := l.Publish(ctx, "", "t1", msgs("a")); polos.KindOf(err) != polos.KindInvalidArgument {
		t.Errorf("missing project: err = %v, want InvalidArgument kind", err)
	}
	if _, err := l.Publish(ctx, testProject, "t1", []eventlog.Message{{}}); polos.KindOf(err) != polos.KindInvalidArgument {
		t.Errorf("missing type: err = %v, want InvalidArgument kind", err)
	}
}

func TestLog_TenantScopedTopics(t *testing.T) {
	l := newLog()
	ctx := context.Background()

	if _, err := l.Publish(ctx, "p1", "t1", msgs("a")); err != nil {
		t.Fatalf("Publish p1: %v", err)
	}
	if _, err := l.Publish(ctx, "p2", "t1", msgs("a", "b")); err != nil {
		t.Fatalf("Publish p2: %v", err)
	}

	// Same topic name, independent sequences per tenant.
	p2Events, err := l.Read(ctx, "p2", "t1", 0, 10)
	if err != nil {
		t.Fatalf("Read p2: %v", err)
	}
	if len(p2Events) != 2 || p2Events[0].Seq != 1 {
		t.Fatalf("p2 events = %d (first seq %d), want 2 starting at 1", len(p2Events), p2Events[0].Seq)
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []int64
}

func (c *captureNotifier) EventPublished(_ context.Context, _ tenant.ProjectID, _ string, e *eventlog.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e.Seq)
}

func TestLog_NotifierRunsPerEvent(t *testing.T) {
	l := newLog()
	n := &captureNotifier{}
	l.AddNotifier(n)

	if _, err := l.Publish(context.Background(), testProject, "t1", msgs("a", "b", "c")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) != 3 {
		t.Fatalf("notified %d times, want 3", len(n.events))
	}
	for i, seq := range n.events {
		if seq != int64(i+1) {
			t.Errorf("notified seq[%d] = %d, want %d", i, seq, i+1)
		}
	}
}
