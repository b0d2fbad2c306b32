package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dontdude/jobstream/internal/config"
	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/dontdude/jobstream/internal/platform/web"
	"github.com/gorilla/websocket"
)

func memoryConfig(mode string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Stream.Backend = config.BackendMemory
	cfg.Stream.Mode = mode
	cfg.Worker.JobDuration = 10 * time.Millisecond
	cfg.Worker.PollInterval = 5 * time.Millisecond
	cfg.Worker.ShutdownGrace = time.Second
	return cfg
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig(config.ModeGroup)
	cfg.Stream.Backend = "etcd"
	if _, err := New(cfg, logger.NewNop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewRedisFailsFast(t *testing.T) {
	cfg := memoryConfig(config.ModeGroup)
	cfg.Stream.Backend = config.BackendRedis
	cfg.Redis.URL = "://not-a-url"
	if _, err := New(cfg, logger.NewNop()); err == nil {
		t.Fatal("expected error for an invalid redis url")
	}
}

func TestWorkerProcessesAdmittedJobs(t *testing.T) {
	for _, mode := range []string{config.ModeGroup, config.ModeSimple} {
		t.Run(mode, func(t *testing.T) {
			a, err := New(memoryConfig(mode), logger.NewNop())
			if err != nil {
				t.Fatal(err)
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(context.Background())
			w, err := a.NewWorker(ctx)
			if err != nil {
				t.Fatal(err)
			}
			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			for _, id := range []int64{1, 2, 3} {
				if _, err := a.Queue().Admit(ctx, domain.Job{ID: id}); err != nil {
					t.Fatal(err)
				}
			}

			deadline := time.Now().Add(3 * time.Second)
			for {
				n, err := a.Queue().Count(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if n == 0 {
					break
				}
				if time.Now().After(deadline) {
					t.Fatalf("%d jobs still queued", n)
				}
				time.Sleep(5 * time.Millisecond)
			}

			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("worker returned %v", err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("worker did not stop")
			}
			if w.Processor.Active() {
				t.Fatal("processor still reported active after shutdown")
			}
		})
	}
}

func TestServerStreamsWorkerOutcomes(t *testing.T) {
	a, err := New(memoryConfig(config.ModeGroup), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := a.NewWorker(ctx)
	if err != nil {
		t.Fatal(err)
	}
	go w.Run(ctx)

	hub := web.NewHub(logger.NewNop())
	outcomes, err := a.stream.SubscribeOutcomes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	go hub.Run(ctx, outcomes)
	ts := httptest.NewServer(a.newServer(hub, w.Processor).Handler())
	defer ts.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/jobs/ws?job_id=7", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for hub.Clients() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/v1/jobs/start", "application/json", strings.NewReader(`{"id":7,"name":"seven"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: got %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var got domain.Outcome
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read outcome: %v", err)
	}
	if got.JobID != 7 || got.Status != domain.OutcomeCompleted {
		t.Fatalf("unexpected outcome %+v", got)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: got %d", resp.StatusCode)
	}
}
