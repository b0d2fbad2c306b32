package jobs

import (
	"context"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

// Options configures a Queue.
type Options struct {
	StreamKey       string
	AtomicAdmission bool
}

// Queue is the surface exposed to transports: admit, list, count, remove, clear.
type Queue struct {
	admission *Admission
	inspector *Inspector
	removal   *Removal
}

// NewQueue wires the controllers over one stream.
func NewQueue(stream domain.Stream, opts Options, log logger.Logger) *Queue {
	return &Queue{
		admission: NewAdmission(stream, opts.StreamKey, opts.AtomicAdmission, log),
		inspector: NewInspector(stream, opts.StreamKey),
		removal:   NewRemoval(stream, opts.StreamKey, log),
	}
}

func (q *Queue) Admit(ctx context.Context, job domain.Job) (domain.EntryID, error) {
	return q.admission.Admit(ctx, job)
}

func (q *Queue) ListPendingIDs(ctx context.Context) ([]int64, error) {
	return q.inspector.ListPendingIDs(ctx)
}

func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.inspector.Count(ctx)
}

func (q *Queue) Remove(ctx context.Context, jobID int64) error {
	return q.removal.Remove(ctx, jobID)
}

func (q *Queue) Clear(ctx context.Context) error {
	return q.removal.Clear(ctx)
}
