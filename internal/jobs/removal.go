package jobs

import (
	"context"
	"fmt"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

// Removal cancels pending entries.
type Removal struct {
	stream    domain.Stream
	inspector *Inspector
	key       string
	log       logger.Logger
}

// NewRemoval returns a Removal controller over the stream at key.
func NewRemoval(stream domain.Stream, key string, log logger.Logger) *Removal {
	return &Removal{
		stream:    stream,
		inspector: NewInspector(stream, key),
		key:       key,
		log:       log,
	}
}

// Remove deletes the pending entry of jobID.
// The head entry is running and yields domain.ErrIsRunning; an id without a pending
// entry yields domain.ErrNotQueued.
func (r *Removal) Remove(ctx context.Context, jobID int64) error {
	entries, err := r.inspector.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return domain.NewJobError(domain.ErrNotQueued, jobID)
	}
	if entries[0].Job.ID == jobID {
		return domain.NewJobError(domain.ErrIsRunning, jobID)
	}

	for _, entry := range entries[1:] {
		if entry.Job.ID != jobID {
			continue
		}
		if err := r.stream.Delete(ctx, r.key, entry.ID); err != nil {
			return fmt.Errorf("delete entry %s of job %d: %w", entry.ID, jobID, err)
		}
		r.log.Info("job was removed from the queue", "job", entry.Job.String(), "entry_id", entry.ID)
		return nil
	}
	return domain.NewJobError(domain.ErrNotQueued, jobID)
}

// Clear drops every entry, including the running head.
func (r *Removal) Clear(ctx context.Context) error {
	if err := r.stream.Trim(ctx, r.key); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	r.log.Warn("job queue cleared", "stream", r.key)
	return nil
}
