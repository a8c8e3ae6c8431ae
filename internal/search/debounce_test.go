package search

import (
	"context"
	"sync"
	"testing"
	"time"
)

type queryRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *queryRecorder) record(ctx context.Context, query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
}

func (r *queryRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queries))
	copy(out, r.queries)
	return out
}

func TestDebounceCoalescesRapidInput(t *testing.T) {
	rec := &queryRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.record)

	ctx := context.Background()
	d.Submit(ctx, "a")
	d.Submit(ctx, "ab")
	d.Submit(ctx, "abc")

	time.Sleep(120 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "abc" {
		t.Fatalf("expected exactly one query for abc, got %v", got)
	}
}

func TestDebounceIssuesSpacedQueries(t *testing.T) {
	rec := &queryRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.record)

	ctx := context.Background()
	d.Submit(ctx, "first")
	time.Sleep(80 * time.Millisecond)
	d.Submit(ctx, "second")
	time.Sleep(80 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("expected both spaced queries, got %v", got)
	}
}

func TestDebounceFlushDropsPending(t *testing.T) {
	rec := &queryRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.record)

	d.Submit(context.Background(), "doomed")
	d.Flush()
	time.Sleep(100 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("flushed query must not fire, got %v", got)
	}
}

func TestDrainIssuesPendingQuery(t *testing.T) {
	rec := &queryRecorder{}
	d := NewDebouncer(time.Hour, rec.record)

	d.Submit(context.Background(), "final")
	d.Drain(context.Background())

	if got := rec.snapshot(); len(got) != 1 || got[0] != "final" {
		t.Fatalf("drain must issue the pending query, got %v", got)
	}
}

func TestDrainWaitsForInFlightRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	d := NewDebouncer(time.Millisecond, func(ctx context.Context, query string) {
		close(entered)
		<-release
	})

	d.Submit(context.Background(), "slow")
	<-entered
	go func() {
		d.Drain(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("drain must wait out the in-flight run")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done
}

func TestLatestGuardsSlowResults(t *testing.T) {
	started := make(chan context.Context, 1)
	release := make(chan struct{})
	committed := make(chan bool, 1)

	d := NewDebouncer(10*time.Millisecond, func(ctx context.Context, query string) {
		if query == "slow" {
			started <- ctx
			<-release
			committed <- Latest(ctx)
		}
	})

	d.Submit(context.Background(), "slow")
	slowCtx := <-started

	// A newer query arrives while the slow one is in flight.
	d.Submit(context.Background(), "newer")
	close(release)

	if <-committed {
		t.Fatalf("stale in-flight query must not commit")
	}
	if Latest(slowCtx) {
		t.Fatalf("guard must report the slow query as superseded")
	}
	if Latest(context.Background()) != true {
		t.Fatalf("unguarded context defaults to latest")
	}
}
