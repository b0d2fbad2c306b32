package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reclaimBatch is how many stale entries one XAUTOCLAIM call transfers.
const reclaimBatch = 10

// Reclaim transfers entries that other consumers of group left pending for longer than
// minIdle to consumer, using XAUTOCLAIM. The caller then reads them as its own pending entries.
func (r *RedisStream) Reclaim(ctx context.Context, key, group, consumer string, minIdle time.Duration) (int, error) {
	start := "0-0"
	claimed := 0

	for {
		messages, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   key,
			Group:    group,
			MinIdle:  minIdle,
			Start:    start,
			Count:    reclaimBatch,
			Consumer: consumer,
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("redis reclaim failed: %w", err)
		}

		for _, msg := range messages {
			r.log.Warn("Stale job claimed", "msgID", msg.ID, "consumer", consumer)
		}
		claimed += len(messages)

		start = next
		if start == "0-0" || len(messages) == 0 {
			return claimed, nil
		}
	}
}
