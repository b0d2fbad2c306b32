package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/dontdude/jobstream/internal/platform/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// payloadField is the stream entry field holding the JSON encoded job.
	payloadField = "job"

	defaultOperationTimeout = 5 * time.Second
	defaultOutcomesChannel  = "jobstream:outcomes"
)

// RedisConfig configures the Redis Streams adapter.
type RedisConfig struct {
	URL              string
	OperationTimeout time.Duration
	OutcomesChannel  string
}

// RedisStream implements domain.Stream on Redis Streams and domain.OutcomeBus on Redis pub/sub.
type RedisStream struct {
	client  *redis.Client
	log     logger.Logger
	channel string
}

var (
	_ domain.Stream         = (*RedisStream)(nil)
	_ domain.UniqueAppender = (*RedisStream)(nil)
	_ domain.Reclaimer      = (*RedisStream)(nil)
	_ domain.OutcomeBus     = (*RedisStream)(nil)
)

// NewRedisStream connects to Redis and verifies the connection with a ping.
func NewRedisStream(cfg RedisConfig, log logger.Logger) (*RedisStream, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	if cfg.OutcomesChannel == "" {
		cfg.OutcomesChannel = defaultOutcomesChannel
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url failed: %w", err)
	}
	opts.ReadTimeout = cfg.OperationTimeout
	opts.WriteTimeout = cfg.OperationTimeout
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connection established", "addr", opts.Addr, "db", opts.DB)
	return &RedisStream{client: rdb, log: log, channel: cfg.OutcomesChannel}, nil
}

// Append adds the job to the stream using XADD with a Redis generated id.
func (r *RedisStream) Append(ctx context.Context, key string, job domain.Job) (domain.EntryID, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{
			payloadField: string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis append failed: %w", err)
	}
	return domain.EntryID(id), nil
}

// ReadAll returns the whole stream with XRANGE - +. Entries that do not decode are skipped.
func (r *RedisStream) ReadAll(ctx context.Context, key string) ([]domain.Entry, error) {
	messages, err := r.client.XRange(ctx, key, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis read failed: %w", err)
	}

	entries := make([]domain.Entry, 0, len(messages))
	for _, msg := range messages {
		entry := decodeMessage(msg)
		if entry.Missing {
			r.log.Warn("Skipping stream entry without a valid job payload", "msgID", msg.ID)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisStream) Delete(ctx context.Context, key string, id domain.EntryID) error {
	if err := r.client.XDel(ctx, key, string(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Trim drops every entry with XTRIM MAXLEN 0.
func (r *RedisStream) Trim(ctx context.Context, key string) error {
	if err := r.client.XTrimMaxLen(ctx, key, 0).Err(); err != nil {
		return fmt.Errorf("redis trim failed: %w", err)
	}
	return nil
}

func (r *RedisStream) CreateGroup(ctx context.Context, key, group string, fromLatest, mkStream bool) error {
	start := "0"
	if fromLatest {
		start = "$"
	}

	var err error
	if mkStream {
		err = r.client.XGroupCreateMkStream(ctx, key, group, start).Err()
	} else {
		err = r.client.XGroupCreate(ctx, key, group, start).Err()
	}
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return domain.ErrGroupExists
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Acknowledge confirms processing using XACK.
func (r *RedisStream) Acknowledge(ctx context.Context, key, group string, id domain.EntryID) error {
	if err := r.client.XAck(ctx, key, group, string(id)).Err(); err != nil {
		return fmt.Errorf("redis ack failed: %w", err)
	}
	return nil
}

// ReadGroup claims one entry with XREADGROUP. Reading ">" waits up to block for new entries,
// reading "0" returns this consumer's pending entries without blocking.
func (r *RedisStream) ReadGroup(ctx context.Context, key, group, consumer string, pending bool, block time.Duration) ([]domain.Entry, error) {
	start := ">"
	if pending {
		start = "0"
		block = -1
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{key, start},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis read group failed: %w", err)
	}

	var entries []domain.Entry
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			entries = append(entries, decodeMessage(msg))
		}
	}
	return entries, nil
}

func (r *RedisStream) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Broadcast publishes the outcome on the outcomes channel.
func (r *RedisStream) Broadcast(ctx context.Context, outcome domain.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// SubscribeOutcomes subscribes to the outcomes channel and streams outcomes to a Go channel.
func (r *RedisStream) SubscribeOutcomes(ctx context.Context) (<-chan domain.Outcome, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)

	// Wait for confirmation that we are subscribed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to outcomes: %w", err)
	}

	outCh := make(chan domain.Outcome)
	go func() {
		defer close(outCh)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var outcome domain.Outcome
				if err := json.Unmarshal([]byte(msg.Payload), &outcome); err != nil {
					r.log.Error("Failed to unmarshal outcome", "error", err)
					continue
				}

				select {
				case outCh <- outcome:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return outCh, nil
}

// Close releases the connection pool.
func (r *RedisStream) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}

// decodeMessage turns a stream message into an Entry. Messages whose payload was deleted
// (XREADGROUP returns them with no fields) or is not a job come back flagged Missing.
func decodeMessage(msg redis.XMessage) domain.Entry {
	entry := domain.Entry{ID: domain.EntryID(msg.ID)}
	val, ok := msg.Values[payloadField].(string)
	if !ok {
		entry.Missing = true
		return entry
	}
	if err := json.Unmarshal([]byte(val), &entry.Job); err != nil {
		entry.Missing = true
	}
	return entry
}
