package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/jobs"
	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/dontdude/jobstream/internal/platform/queue"
)

const (
	testKey      = "test:jobs"
	testGroup    = "test:workers"
	testConsumer = "consumer-1"
	testPoll     = 10 * time.Millisecond
)

type runnerFunc func(ctx context.Context, job domain.Job) error

func (f runnerFunc) Run(ctx context.Context, job domain.Job) error { return f(ctx, job) }

func newGroupFixture(t *testing.T) (*queue.MemoryStream, *GroupDelivery) {
	t.Helper()
	stream := queue.NewMemoryStream()
	if err := jobs.NewBootstrapper(stream, logger.NewNop()).EnsureGroup(context.Background(), testKey, testGroup); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return stream, NewGroupDelivery(stream, testKey, testGroup, testConsumer, testPoll, logger.NewNop())
}

func startProcessor(t *testing.T, p *Processor) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func nextOutcome(t *testing.T, p *Processor) domain.Outcome {
	t.Helper()
	select {
	case o, ok := <-p.Outcomes():
		if !ok {
			t.Fatal("outcomes channel closed")
		}
		return o
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
	return domain.Outcome{}
}

func TestProcessor_GroupModeCompletesInOrder(t *testing.T) {
	ctx := context.Background()
	stream, delivery := newGroupFixture(t)
	for _, id := range []int64{1, 2, 3} {
		stream.Append(ctx, testKey, domain.Job{ID: id, Name: "job"})
	}

	var (
		mu  sync.Mutex
		ran []int64
	)
	runner := runnerFunc(func(ctx context.Context, job domain.Job) error {
		mu.Lock()
		ran = append(ran, job.ID)
		mu.Unlock()
		return nil
	})

	p := NewProcessor(delivery, runner, Config{}, logger.NewNop())
	startProcessor(t, p)

	for _, want := range []int64{1, 2, 3} {
		o := nextOutcome(t, p)
		if o.JobID != want || o.Status != domain.OutcomeCompleted {
			t.Fatalf("unexpected outcome %+v, want completed job %d", o, want)
		}
	}

	entries, _ := stream.ReadAll(ctx, testKey)
	if len(entries) != 0 {
		t.Fatalf("expected processed entries to be deleted, got %+v", entries)
	}
	if n := stream.PendingCount(testKey, testGroup); n != 0 {
		t.Fatalf("expected all entries acknowledged, %d pending", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 3 || ran[0] != 1 || ran[1] != 2 || ran[2] != 3 {
		t.Fatalf("expected FIFO execution, got %v", ran)
	}
}

func TestProcessor_SimpleModeDeletesHead(t *testing.T) {
	ctx := context.Background()
	stream := queue.NewMemoryStream()
	stream.Append(ctx, testKey, domain.Job{ID: 7, Name: "simple"})

	p := NewProcessor(NewSimpleDelivery(stream, testKey, testPoll), SleepRunner{Duration: time.Millisecond}, Config{}, logger.NewNop())
	startProcessor(t, p)

	o := nextOutcome(t, p)
	if o.JobID != 7 || o.Status != domain.OutcomeCompleted {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	entries, _ := stream.ReadAll(ctx, testKey)
	if len(entries) != 0 {
		t.Fatalf("expected empty stream, got %+v", entries)
	}
}

func TestProcessor_FailedBodyIsNotRetried(t *testing.T) {
	ctx := context.Background()
	stream, delivery := newGroupFixture(t)
	stream.Append(ctx, testKey, domain.Job{ID: 1})
	stream.Append(ctx, testKey, domain.Job{ID: 2})

	var (
		mu    sync.Mutex
		calls = map[int64]int{}
	)
	runner := runnerFunc(func(ctx context.Context, job domain.Job) error {
		mu.Lock()
		calls[job.ID]++
		mu.Unlock()
		if job.ID == 1 {
			return errors.New("boom")
		}
		return nil
	})

	p := NewProcessor(delivery, runner, Config{}, logger.NewNop())
	startProcessor(t, p)

	if o := nextOutcome(t, p); o.JobID != 1 || o.Status != domain.OutcomeFailed || o.Error != "boom" {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	if o := nextOutcome(t, p); o.JobID != 2 || o.Status != domain.OutcomeCompleted {
		t.Fatalf("unexpected outcome: %+v", o)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls[1] != 1 {
		t.Fatalf("expected the failed job to run once, ran %d times", calls[1])
	}
}

func blockingRunner(started chan<- domain.Job) runnerFunc {
	return func(ctx context.Context, job domain.Job) error {
		started <- job
		<-ctx.Done()
		return errors.Join(domain.ErrInterrupted, ctx.Err())
	}
}

func TestProcessor_InterruptedEntryIsRedeliveredInGroupMode(t *testing.T) {
	ctx := context.Background()
	stream, delivery := newGroupFixture(t)
	id, _ := stream.Append(ctx, testKey, domain.Job{ID: 11, Name: "long"})

	started := make(chan domain.Job, 1)
	p := NewProcessor(delivery, blockingRunner(started), Config{}, logger.NewNop())
	cancel, done := startProcessor(t, p)

	<-started
	cancel()
	o := nextOutcome(t, p)
	if o.Status != domain.OutcomeInterrupted || o.EntryID != id {
		t.Fatalf("expected interrupted outcome for %s, got %+v", id, o)
	}
	<-done

	entries, _ := stream.ReadAll(ctx, testKey)
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("interrupted entry must stay in the stream, got %+v", entries)
	}
	if n := stream.PendingCount(testKey, testGroup); n != 1 {
		t.Fatalf("interrupted entry must stay pending, %d pending", n)
	}

	// A fresh processor for the same consumer picks it up first.
	restarted := NewProcessor(
		NewGroupDelivery(stream, testKey, testGroup, testConsumer, testPoll, logger.NewNop()),
		SleepRunner{Duration: time.Millisecond}, Config{}, logger.NewNop(),
	)
	startProcessor(t, restarted)
	o = nextOutcome(t, restarted)
	if o.EntryID != id || o.Status != domain.OutcomeCompleted {
		t.Fatalf("expected redelivered entry to complete, got %+v", o)
	}
}

func TestProcessor_ShutdownGraceLetsBodyFinish(t *testing.T) {
	ctx := context.Background()
	stream, delivery := newGroupFixture(t)
	stream.Append(ctx, testKey, domain.Job{ID: 3})

	started := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, job domain.Job) error {
		close(started)
		return SleepRunner{Duration: 50 * time.Millisecond}.Run(ctx, job)
	})

	p := NewProcessor(delivery, runner, Config{ShutdownGrace: 5 * time.Second}, logger.NewNop())
	cancel, done := startProcessor(t, p)

	<-started
	cancel()
	if o := nextOutcome(t, p); o.Status != domain.OutcomeCompleted {
		t.Fatalf("expected body to finish within grace, got %+v", o)
	}
	<-done

	if p.Active() {
		t.Fatal("processor should not be active after Run returns")
	}
	entries, _ := stream.ReadAll(ctx, testKey)
	if len(entries) != 0 {
		t.Fatalf("expected entry deleted after completion, got %+v", entries)
	}
}

func TestProcessor_DiscardsEntriesWithoutPayload(t *testing.T) {
	ctx := context.Background()
	stream, _ := newGroupFixture(t)
	stream.Append(ctx, testKey, domain.Job{ID: 1})
	if _, err := stream.ReadGroup(ctx, testKey, testGroup, testConsumer, false, 0); err != nil {
		t.Fatalf("read group: %v", err)
	}
	stream.Trim(ctx, testKey)

	delivery := NewGroupDelivery(stream, testKey, testGroup, testConsumer, testPoll, logger.NewNop())
	entry, ok, err := delivery.Next(ctx)
	if err != nil || ok {
		t.Fatalf("expected no delivery, got %+v %v %v", entry, ok, err)
	}
	if n := stream.PendingCount(testKey, testGroup); n != 0 {
		t.Fatalf("expected orphaned pending entry acknowledged, %d pending", n)
	}
}

type flakyStream struct {
	*queue.MemoryStream
	mu       sync.Mutex
	failures int
}

func (f *flakyStream) ReadAll(ctx context.Context, key string) ([]domain.Entry, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.MemoryStream.ReadAll(ctx, key)
}

func TestProcessor_SurvivesPollErrors(t *testing.T) {
	ctx := context.Background()
	stream := &flakyStream{MemoryStream: queue.NewMemoryStream(), failures: 2}
	stream.Append(ctx, testKey, domain.Job{ID: 4})

	p := NewProcessor(
		NewSimpleDelivery(stream, testKey, testPoll),
		SleepRunner{Duration: time.Millisecond},
		Config{RetryDelay: 5 * time.Millisecond},
		logger.NewNop(),
	)
	startProcessor(t, p)

	if o := nextOutcome(t, p); o.JobID != 4 || o.Status != domain.OutcomeCompleted {
		t.Fatalf("unexpected outcome: %+v", o)
	}
}

func TestSleepRunner_Interrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SleepRunner{Duration: time.Hour}.Run(ctx, domain.Job{ID: 1})
	if !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if err := (SleepRunner{Duration: time.Millisecond}).Run(context.Background(), domain.Job{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"group", "simple"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("unexpected error for %q: %v", s, err)
		}
	}
	if _, err := ParseMode("fanout"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
