package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

// Bootstrapper makes sure a consumer group exists before consumption starts.
type Bootstrapper struct {
	stream domain.Stream
	log    logger.Logger
}

// NewBootstrapper returns a Bootstrapper.
func NewBootstrapper(stream domain.Stream, log logger.Logger) *Bootstrapper {
	return &Bootstrapper{stream: stream, log: log}
}

// EnsureGroup creates group on key, reading only entries appended from now on and creating
// the stream if needed. An existing group is not an error, so it is safe on every start.
func (b *Bootstrapper) EnsureGroup(ctx context.Context, key, group string) error {
	err := b.stream.CreateGroup(ctx, key, group, true, true)
	if errors.Is(err, domain.ErrGroupExists) {
		b.log.Info("redis group already exists, skipping group creation", "stream", key, "group", group)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create consumer group %s on %s: %w", group, key, err)
	}
	b.log.Info("consumer group created", "stream", key, "group", group)
	return nil
}
