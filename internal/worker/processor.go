package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

const (
	defaultRetryDelay    = time.Second
	defaultSettleTimeout = 5 * time.Second
	defaultOutcomeBuffer = 64
)

// Config tunes a Processor.
type Config struct {
	// ShutdownGrace is how long the in-flight body may keep running once Run's context is
	// cancelled. After it the body is interrupted. Zero interrupts immediately.
	ShutdownGrace time.Duration
	// RetryDelay is the pause after a failed poll.
	RetryDelay time.Duration
	// OutcomeBuffer is the capacity of the outcomes channel.
	OutcomeBuffer int
}

// Processor is the single logical consumer of the queue. It processes one entry at a time:
// the body fully completes, fails, or is interrupted before the next poll is issued.
type Processor struct {
	delivery Delivery
	runner   domain.Runner
	log      logger.Logger
	cfg      Config
	outcomes chan domain.Outcome
	active   atomic.Bool
}

// NewProcessor returns a Processor pulling from delivery and executing bodies with runner.
func NewProcessor(delivery Delivery, runner domain.Runner, cfg Config, log logger.Logger) *Processor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.OutcomeBuffer <= 0 {
		cfg.OutcomeBuffer = defaultOutcomeBuffer
	}
	return &Processor{
		delivery: delivery,
		runner:   runner,
		log:      log.With("mode", string(delivery.Mode())),
		cfg:      cfg,
		outcomes: make(chan domain.Outcome, cfg.OutcomeBuffer),
	}
}

// Outcomes streams the result of every processed entry. It is closed when Run returns.
func (p *Processor) Outcomes() <-chan domain.Outcome {
	return p.outcomes
}

// Active reports whether Run is currently polling.
func (p *Processor) Active() bool {
	return p.active.Load()
}

// Run polls and processes entries until ctx is cancelled. Cancellation is honoured between
// entries; an in-flight body gets the shutdown grace period first. Run must be called once.
func (p *Processor) Run(ctx context.Context) error {
	p.active.Store(true)
	defer func() {
		p.active.Store(false)
		close(p.outcomes)
	}()

	p.log.Info("Job processor started")
	for ctx.Err() == nil {
		entry, ok, err := p.delivery.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.log.Error("Stream poll failed", "error", err)
			if !sleep(ctx, p.cfg.RetryDelay) {
				break
			}
			continue
		}
		if !ok {
			continue
		}
		p.process(ctx, entry)
	}
	p.log.Info("Job processor stopped")
	return nil
}

func (p *Processor) process(ctx context.Context, entry domain.Entry) {
	job := entry.Job
	log := p.log.With("job", job.String(), "entry_id", entry.ID)
	log.Info("starting to process job")

	bodyCtx, release := p.bodyContext(ctx)
	start := time.Now()
	err := p.runner.Run(bodyCtx, job)
	interrupted := errors.Is(err, domain.ErrInterrupted) || (err != nil && bodyCtx.Err() != nil)
	release()

	outcome := domain.Outcome{
		JobID:    job.ID,
		Name:     job.Name,
		EntryID:  entry.ID,
		Duration: time.Since(start),
		At:       time.Now().UTC(),
	}

	switch {
	case err == nil:
		outcome.Status = domain.OutcomeCompleted
		log.Info("successfully processed job", "duration", outcome.Duration)
	case interrupted:
		// Completion is unconfirmed: leave the entry pending so it is delivered again.
		outcome.Status = domain.OutcomeInterrupted
		outcome.Error = err.Error()
		log.Error("failed to process job", "error", err)
		p.emit(outcome)
		return
	default:
		outcome.Status = domain.OutcomeFailed
		outcome.Error = err.Error()
		log.Error("failed to process job", "error", err)
	}

	// The body is over, so settle even if shutdown has started.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultSettleTimeout)
	defer cancel()
	if err := p.delivery.Complete(settleCtx, entry); err != nil {
		log.Error("failed to remove processed job from the queue", "error", err)
	}
	p.emit(outcome)
}

// bodyContext detaches the body from ctx so that cancellation only reaches it after the
// shutdown grace period. release must be called once the body returns.
func (p *Processor) bodyContext(ctx context.Context) (context.Context, func()) {
	bodyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(p.cfg.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			cancel()
		}
	}()

	return bodyCtx, func() {
		close(done)
		cancel()
	}
}

func (p *Processor) emit(outcome domain.Outcome) {
	select {
	case p.outcomes <- outcome:
	default:
		p.log.Warn("Outcome dropped, reporter is not keeping up", "job_id", outcome.JobID)
	}
}

// sleep waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
