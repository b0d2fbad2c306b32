package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dontdude/jobstream/internal/domain"
	"github.com/redis/go-redis/v9"
)

// appendUniqueScript scans the stream for a job with the same id and appends only when there
// is none. It returns the new entry id, or nil on a duplicate.
var appendUniqueScript = redis.NewScript(`
local entries = redis.call("XRANGE", KEYS[1], "-", "+")
for _, entry in ipairs(entries) do
  local fields = entry[2]
  for i = 1, #fields, 2 do
    if fields[i] == ARGV[1] then
      local ok, decoded = pcall(cjson.decode, fields[i + 1])
      if ok and type(decoded) == "table" and type(decoded["id"]) == "number"
          and string.format("%.0f", decoded["id"]) == ARGV[3] then
        return false
      end
    end
  end
end
return redis.call("XADD", KEYS[1], "*", ARGV[1], ARGV[2])
`)

// AppendUnique is Append with the pending-id check done inside Redis, so concurrent
// admissions of the same id cannot both succeed.
func (r *RedisStream) AppendUnique(ctx context.Context, key string, job domain.Job) (domain.EntryID, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	id, err := appendUniqueScript.Run(ctx, r.client, []string{key},
		payloadField, string(data), strconv.FormatInt(job.ID, 10),
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", domain.NewJobError(domain.ErrDuplicateJob, job.ID)
	}
	if err != nil {
		return "", fmt.Errorf("redis append failed: %w", err)
	}
	return domain.EntryID(id), nil
}
