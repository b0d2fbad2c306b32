package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
)

// SleepRunner is the placeholder job body: it waits for Duration.
type SleepRunner struct {
	Duration time.Duration
}

var _ domain.Runner = SleepRunner{}

// Run waits for the configured duration. Cancellation interrupts the wait.
func (r SleepRunner) Run(ctx context.Context, job domain.Job) error {
	timer := time.NewTimer(r.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
	case <-timer.C:
		return nil
	}
}
