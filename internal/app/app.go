// Package app wires configuration into the queue, the job processor and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dontdude/jobstream/internal/config"
	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/jobs"
	"github.com/dontdude/jobstream/internal/platform/docker"
	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/dontdude/jobstream/internal/platform/metrics"
	"github.com/dontdude/jobstream/internal/platform/queue"
	"github.com/dontdude/jobstream/internal/platform/web"
	"github.com/dontdude/jobstream/internal/worker"
)

// store is what the app needs from a stream backend.
type store interface {
	domain.Stream
	domain.OutcomeBus
}

// App holds the components shared by every command.
type App struct {
	cfg     *config.Config
	log     logger.Logger
	stream  store
	queue   *jobs.Queue
	metrics *metrics.Metrics
	closers []func() error
}

// New opens the configured stream backend. A connection failure is returned, not retried.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	switch strings.ToLower(cfg.Stream.Backend) {
	case config.BackendMemory:
		log.Warn("Using the in-memory stream, jobs do not survive a restart")
		a.stream = queue.NewMemoryStream()
	case config.BackendRedis:
		rs, err := queue.NewRedisStream(queue.RedisConfig{
			URL:              cfg.Redis.URL,
			OperationTimeout: cfg.Redis.OperationTimeout,
			OutcomesChannel:  cfg.Stream.OutcomesChannel,
		}, log)
		if err != nil {
			return nil, err
		}
		a.stream = rs
		a.closers = append(a.closers, rs.Close)
	default:
		return nil, fmt.Errorf("unknown stream backend %q", cfg.Stream.Backend)
	}

	a.queue = jobs.NewQueue(a.stream, jobs.Options{
		StreamKey:       cfg.Stream.Key,
		AtomicAdmission: cfg.Stream.AtomicAdmission,
	}, log)
	return a, nil
}

// Queue returns the admission, inspection and removal surface.
func (a *App) Queue() *jobs.Queue { return a.queue }

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Worker is a processor together with its delivery strategy.
type Worker struct {
	Processor *worker.Processor
	delivery  worker.Delivery
	reporter  *worker.Reporter
	cfg       config.WorkerConfig
	closers   []func() error
}

// NewWorker prepares the job processor. In group mode it makes sure the consumer group
// exists first; failing to do so is fatal.
func (a *App) NewWorker(ctx context.Context) (*Worker, error) {
	mode, err := worker.ParseMode(a.cfg.Stream.Mode)
	if err != nil {
		return nil, err
	}

	var delivery worker.Delivery
	switch mode {
	case worker.GroupMode:
		if err := jobs.NewBootstrapper(a.stream, a.log).EnsureGroup(ctx, a.cfg.Stream.Key, a.cfg.Stream.Group); err != nil {
			return nil, err
		}
		delivery = worker.NewGroupDelivery(a.stream, a.cfg.Stream.Key, a.cfg.Stream.Group,
			a.cfg.Stream.Consumer, a.cfg.Worker.PollInterval, a.log.With("consumer", a.cfg.Stream.Consumer))
	case worker.SimpleMode:
		delivery = worker.NewSimpleDelivery(a.stream, a.cfg.Stream.Key, a.cfg.Worker.PollInterval)
	}

	w := &Worker{delivery: delivery, cfg: a.cfg.Worker}

	var runner domain.Runner
	switch strings.ToLower(a.cfg.Worker.Runner) {
	case config.RunnerDocker:
		dr, err := docker.NewRunner(ctx, docker.Config{Image: a.cfg.Worker.Image, Duration: a.cfg.Worker.JobDuration}, a.log)
		if err != nil {
			return nil, err
		}
		runner = dr
		w.closers = append(w.closers, dr.Close)
	default:
		runner = worker.SleepRunner{Duration: a.cfg.Worker.JobDuration}
	}

	w.Processor = worker.NewProcessor(delivery, runner, worker.Config{
		ShutdownGrace: a.cfg.Worker.ShutdownGrace,
		RetryDelay:    a.cfg.Worker.PollInterval,
	}, a.log)
	w.reporter = worker.NewReporter(a.stream, a.metrics, a.log)
	return w, nil
}

// Run processes jobs until ctx is cancelled and the in-flight body has settled.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reporter.Run(ctx, w.Processor.Outcomes())
	}()

	if gd, ok := w.delivery.(*worker.GroupDelivery); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gd.RunReclaimer(ctx, w.cfg.ReclaimInterval, w.cfg.ReclaimMinIdle)
		}()
	}

	err := w.Processor.Run(ctx)
	wg.Wait()

	for _, closeFn := range w.closers {
		err = errors.Join(err, closeFn())
	}
	return err
}

// Serve runs the HTTP API until ctx is cancelled. Outcomes published on the bus are
// streamed to websocket clients. processor is nil when jobs are consumed elsewhere.
func (a *App) Serve(ctx context.Context, processor web.ProcessorState) error {
	hub := web.NewHub(a.log)
	outcomes, err := a.stream.SubscribeOutcomes(ctx)
	if err != nil {
		return err
	}
	go hub.Run(ctx, outcomes)
	return a.newServer(hub, processor).Run(ctx)
}

func (a *App) newServer(hub *web.Hub, processor web.ProcessorState) *web.Server {
	return web.NewServer(web.Config{
		Addr:      a.cfg.HTTP.Addr,
		RateLimit: a.cfg.HTTP.RateLimit,
		RateBurst: a.cfg.HTTP.RateBurst,
	}, web.Deps{
		Queue:          a.queue,
		Store:          a.stream,
		Processor:      processor,
		Hub:            hub,
		Recorder:       a.metrics,
		MetricsHandler: a.metrics.Handler(),
		Log:            a.log,
	})
}

// Close releases the store connection.
func (a *App) Close() error {
	var err error
	for _, closeFn := range a.closers {
		err = errors.Join(err, closeFn())
	}
	return err
}
