package worker

import (
	"context"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

const broadcastTimeout = 2 * time.Second

// OutcomeRecorder receives every outcome, typically to update metrics.
type OutcomeRecorder interface {
	ObserveOutcome(outcome domain.Outcome)
}

// Reporter consumes a processor's outcomes, records them and broadcasts them.
type Reporter struct {
	bus      domain.OutcomeBus
	recorder OutcomeRecorder
	log      logger.Logger
}

// NewReporter returns a Reporter. bus and recorder may be nil.
func NewReporter(bus domain.OutcomeBus, recorder OutcomeRecorder, log logger.Logger) *Reporter {
	return &Reporter{bus: bus, recorder: recorder, log: log}
}

// Run drains outcomes until the channel is closed, so the last outcomes of a shutting
// down processor are still published.
func (r *Reporter) Run(ctx context.Context, outcomes <-chan domain.Outcome) {
	for outcome := range outcomes {
		if r.recorder != nil {
			r.recorder.ObserveOutcome(outcome)
		}
		if r.bus == nil {
			continue
		}

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), broadcastTimeout)
		if err := r.bus.Broadcast(bctx, outcome); err != nil {
			r.log.Error("Failed to broadcast outcome", "job_id", outcome.JobID, "error", err)
		}
		cancel()
	}
}
