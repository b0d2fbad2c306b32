package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

// Mode selects how the processor receives entries.
type Mode string

const (
	// GroupMode claims entries through a consumer group and acknowledges them before deletion.
	GroupMode Mode = "group"
	// SimpleMode reads the stream from its start and treats the head as the entry to process.
	SimpleMode Mode = "simple"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case GroupMode, SimpleMode:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid delivery mode: %q", s)
}

// Delivery hands the processor one entry at a time and settles it afterwards.
type Delivery interface {
	// Next waits up to one poll interval for an entry. ok is false when none arrived.
	Next(ctx context.Context) (entry domain.Entry, ok bool, err error)

	// Complete releases a processed entry from the stream.
	Complete(ctx context.Context, entry domain.Entry) error

	Mode() Mode
}

// GroupDelivery reads through a consumer group. It first drains the consumer's own
// unacknowledged entries (left over from a crash or an interrupted shutdown), then reads
// new entries. Complete acknowledges the entry before deleting it.
type GroupDelivery struct {
	stream       domain.Stream
	key          string
	group        string
	consumer     string
	pollInterval time.Duration
	log          logger.Logger

	// backlog is set while the consumer may still own pending entries.
	backlog atomic.Bool
}

// NewGroupDelivery returns a GroupDelivery for consumer in group.
func NewGroupDelivery(stream domain.Stream, key, group, consumer string, pollInterval time.Duration, log logger.Logger) *GroupDelivery {
	d := &GroupDelivery{
		stream:       stream,
		key:          key,
		group:        group,
		consumer:     consumer,
		pollInterval: pollInterval,
		log:          log,
	}
	d.backlog.Store(true)
	return d
}

func (d *GroupDelivery) Mode() Mode { return GroupMode }

func (d *GroupDelivery) Next(ctx context.Context) (domain.Entry, bool, error) {
	for d.backlog.Load() {
		entries, err := d.stream.ReadGroup(ctx, d.key, d.group, d.consumer, true, 0)
		if err != nil {
			return domain.Entry{}, false, err
		}
		if len(entries) == 0 {
			d.backlog.Store(false)
			break
		}
		entry := entries[0]
		if !entry.Missing {
			d.log.Info("redelivering unacknowledged job", "job", entry.Job.String(), "entry_id", entry.ID)
			return entry, true, nil
		}
		if err := d.discard(ctx, entry); err != nil {
			return domain.Entry{}, false, err
		}
	}

	entries, err := d.stream.ReadGroup(ctx, d.key, d.group, d.consumer, false, d.pollInterval)
	if err != nil {
		return domain.Entry{}, false, err
	}
	for _, entry := range entries {
		if entry.Missing {
			if err := d.discard(ctx, entry); err != nil {
				return domain.Entry{}, false, err
			}
			continue
		}
		return entry, true, nil
	}
	return domain.Entry{}, false, nil
}

// discard settles an entry whose payload is gone so it stops being redelivered.
func (d *GroupDelivery) discard(ctx context.Context, entry domain.Entry) error {
	d.log.Warn("discarding entry without job payload", "entry_id", entry.ID)
	return d.Complete(ctx, entry)
}

func (d *GroupDelivery) Complete(ctx context.Context, entry domain.Entry) error {
	if err := d.stream.Acknowledge(ctx, d.key, d.group, entry.ID); err != nil {
		return err
	}
	return d.stream.Delete(ctx, d.key, entry.ID)
}

// Reclaim takes over entries that crashed consumers left pending for at least minIdle.
// It is a no-op on stores that cannot reclaim.
func (d *GroupDelivery) Reclaim(ctx context.Context, minIdle time.Duration) (int, error) {
	reclaimer, ok := d.stream.(domain.Reclaimer)
	if !ok {
		return 0, nil
	}
	n, err := reclaimer.Reclaim(ctx, d.key, d.group, d.consumer, minIdle)
	if n > 0 {
		d.backlog.Store(true)
	}
	return n, err
}

// RunReclaimer calls Reclaim every interval until ctx is done.
func (d *GroupDelivery) RunReclaimer(ctx context.Context, interval, minIdle time.Duration) {
	if _, ok := d.stream.(domain.Reclaimer); !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Info("Starting stale entry reclaimer", "interval", interval, "min_idle", minIdle)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Reclaim(ctx, minIdle)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.log.Error("Reclaim failed", "error", err)
				continue
			}
			if n > 0 {
				d.log.Info("Recovered stale jobs", "count", n)
			}
		}
	}
}

// SimpleDelivery polls the stream from its start without a consumer group. The head entry
// is the one being processed and deleting it marks completion. A crash mid-body leaves the
// entry at the head, where it is processed again on the next start.
type SimpleDelivery struct {
	stream       domain.Stream
	key          string
	pollInterval time.Duration
}

// NewSimpleDelivery returns a SimpleDelivery over key.
func NewSimpleDelivery(stream domain.Stream, key string, pollInterval time.Duration) *SimpleDelivery {
	return &SimpleDelivery{stream: stream, key: key, pollInterval: pollInterval}
}

func (d *SimpleDelivery) Mode() Mode { return SimpleMode }

func (d *SimpleDelivery) Next(ctx context.Context) (domain.Entry, bool, error) {
	entries, err := d.stream.ReadAll(ctx, d.key)
	if err != nil {
		return domain.Entry{}, false, err
	}
	if len(entries) > 0 {
		return entries[0], true, nil
	}

	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.Entry{}, false, ctx.Err()
	case <-timer.C:
		return domain.Entry{}, false, nil
	}
}

func (d *SimpleDelivery) Complete(ctx context.Context, entry domain.Entry) error {
	return d.stream.Delete(ctx, d.key, entry.ID)
}
