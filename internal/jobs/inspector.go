package jobs

import (
	"context"
	"fmt"

	"github.com/dontdude/jobstream/internal/domain"
)

// Inspector provides read-only views over pending entries.
type Inspector struct {
	stream domain.Stream
	key    string
}

// NewInspector returns an Inspector over the stream at key.
func NewInspector(stream domain.Stream, key string) *Inspector {
	return &Inspector{stream: stream, key: key}
}

// Entries returns every pending entry, oldest first.
func (i *Inspector) Entries(ctx context.Context) ([]domain.Entry, error) {
	entries, err := i.stream.ReadAll(ctx, i.key)
	if err != nil {
		return nil, fmt.Errorf("read pending entries: %w", err)
	}
	return entries, nil
}

// ListPendingIDs returns the job ids of pending entries ordered by entry id.
func (i *Inspector) ListPendingIDs(ctx context.Context) ([]int64, error) {
	entries, err := i.Entries(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.Job.ID)
	}
	return ids, nil
}

// Count returns the number of pending entries.
func (i *Inspector) Count(ctx context.Context) (int, error) {
	entries, err := i.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
