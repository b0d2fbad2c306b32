package domain

import (
	"context"
	"time"
)

// Stream is the contract of the append-only, consumer-group-capable log that backs the queue.
// It decouples the controllers from the underlying store (Redis Streams, in-memory).
// Each call is atomic on the store side; sequences of calls are not.
type Stream interface {
	// Append adds a job to the tail of the stream and returns its entry id.
	// An empty id with a nil error means the store assigned no id.
	Append(ctx context.Context, key string, job Job) (EntryID, error)

	// ReadAll returns every entry from the start of the stream, oldest first.
	ReadAll(ctx context.Context, key string) ([]Entry, error)

	// Delete removes one entry. Deleting an entry that is already gone is not an error.
	Delete(ctx context.Context, key string, id EntryID) error

	// Trim drops every entry of the stream.
	Trim(ctx context.Context, key string) error

	// CreateGroup creates a consumer group. fromLatest positions it after the current tail,
	// mkStream creates an empty stream when the key is absent.
	// It returns ErrGroupExists when the group is already there.
	CreateGroup(ctx context.Context, key, group string, fromLatest, mkStream bool) error

	// Acknowledge marks an entry as processed for the group.
	Acknowledge(ctx context.Context, key, group string, id EntryID) error

	// ReadGroup claims at most one entry for consumer, waiting up to block.
	// With pending set it returns the consumer's own unacknowledged entries instead of new ones.
	// A nil slice with a nil error means nothing was available.
	ReadGroup(ctx context.Context, key, group, consumer string, pending bool, block time.Duration) ([]Entry, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// UniqueAppender is implemented by stores that can check for a pending job id and append
// in a single atomic step. It returns a JobError of kind ErrDuplicateJob on conflict.
type UniqueAppender interface {
	AppendUnique(ctx context.Context, key string, job Job) (EntryID, error)
}

// Reclaimer is implemented by stores that can transfer entries left pending by other
// consumers of a group once they have been idle for minIdle. It returns how many were claimed.
type Reclaimer interface {
	Reclaim(ctx context.Context, key, group, consumer string, minIdle time.Duration) (int, error)
}

// OutcomeBus fans processing outcomes out to every interested process.
type OutcomeBus interface {
	// Broadcast publishes an outcome.
	Broadcast(ctx context.Context, outcome Outcome) error

	// SubscribeOutcomes returns a channel that streams outcomes from all processors.
	// The channel is closed when ctx is done.
	SubscribeOutcomes(ctx context.Context) (<-chan Outcome, error)
}
