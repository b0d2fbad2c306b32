package worker

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/jobs"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

// TestQueueLifecycle walks admission, listing, removal, head protection and consumption
// against one stream with a processor running.
func TestQueueLifecycle(t *testing.T) {
	for _, mode := range []Mode{GroupMode, SimpleMode} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			stream, groupDelivery := newGroupFixture(t)
			q := jobs.NewQueue(stream, jobs.Options{StreamKey: testKey}, logger.NewNop())

			var delivery Delivery = groupDelivery
			if mode == SimpleMode {
				delivery = NewSimpleDelivery(stream, testKey, testPoll)
			}

			release := make(chan struct{})
			started := make(chan domain.Job, 1)
			runner := runnerFunc(func(ctx context.Context, job domain.Job) error {
				started <- job
				select {
				case <-release:
					return nil
				case <-ctx.Done():
					return domain.ErrInterrupted
				}
			})
			p := NewProcessor(delivery, runner, Config{}, logger.NewNop())

			mustList := func(want ...int64) {
				t.Helper()
				got, err := q.ListPendingIDs(ctx)
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				if want == nil {
					want = []int64{}
				}
				if !slices.Equal(got, want) {
					t.Fatalf("pending ids = %v, want %v", got, want)
				}
			}

			if _, err := q.Admit(ctx, domain.Job{ID: 15, Name: "x"}); err != nil {
				t.Fatalf("admit 15: %v", err)
			}
			mustList(15)
			if _, err := q.Admit(ctx, domain.Job{ID: 20, Name: "y"}); err != nil {
				t.Fatalf("admit 20: %v", err)
			}
			mustList(15, 20)

			if err := q.Remove(ctx, 20); err != nil {
				t.Fatalf("remove 20: %v", err)
			}
			mustList(15)

			startProcessor(t, p)
			select {
			case job := <-started:
				if job.ID != 15 {
					t.Fatalf("expected job 15 to run, got %v", job)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("processor did not pick up job 15")
			}

			if err := q.Remove(ctx, 15); !errors.Is(err, domain.ErrIsRunning) {
				t.Fatalf("expected ErrIsRunning for the running head, got %v", err)
			}

			close(release)
			if o := nextOutcome(t, p); o.JobID != 15 || o.Status != domain.OutcomeCompleted {
				t.Fatalf("unexpected outcome: %+v", o)
			}
			mustList()
		})
	}
}
