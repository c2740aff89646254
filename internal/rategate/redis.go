// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package rategate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript performs the trim-old + count + add sequence atomically on
// the redis side, so concurrent workers cannot both consume the last slot.
//
// KEYS[1] = budget key (sorted set of request timestamps)
// ARGV[1] = now, unix milliseconds
// ARGV[2] = window, milliseconds
// ARGV[3] = limit
// ARGV[4] = unique member for this request
//
// Returns {1} on admission, {0, oldest_ms} on denial.
var admitScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, cutoff)
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return {1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, oldest[2]}
`)

// RedisBackend stores budget windows in redis sorted sets keyed by budget
// key, member-per-request scored with the request timestamp.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a backend over the given client. Keys are
// namespaced under "svodka:gate:".
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client, prefix: "svodka:gate:"}
}

// Admit runs the atomic admission script. Any redis error is returned to
// the gate, which fails open.
func (r *RedisBackend) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := admitScript.Run(ctx, r.client, []string{r.prefix + key},
		nowMs, windowMs, limit, member).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rategate admit script: %w", err)
	}
	if len(res) < 1 {
		return Decision{}, fmt.Errorf("rategate admit script: empty reply")
	}

	admitted, ok := res[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("rategate admit script: unexpected reply %T", res[0])
	}
	if admitted == 1 {
		return Decision{Allowed: true}, nil
	}

	var oldestMs int64
	if len(res) > 1 {
		switch v := res[1].(type) {
		case int64:
			oldestMs = v
		case string:
			// ZRANGE WITHSCORES returns scores as strings.
			fmt.Sscanf(v, "%d", &oldestMs)
		}
	}
	oldestAge := time.Duration(nowMs-oldestMs) * time.Millisecond
	return Decision{
		Allowed:    false,
		RetryAfter: retryAfter(window, oldestAge),
	}, nil
}
