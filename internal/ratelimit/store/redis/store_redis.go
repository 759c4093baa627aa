// Package redis provides a Redis-backed sliding window for multi-instance
// deployments. Each key is a sorted set of reservation IDs scored by their
// reservation time; check+reserve runs as one Lua script so the sequence is
// atomic across engine replicas.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/ratelimit"
)

const keyPrefix = "warden:ratewindow:"

// reserveScript prunes expired slots, checks the ceiling, and reserves in a
// single round trip. KEYS[1] window key; ARGV: now-millis, window-millis,
// limit, reservation ID. Returns {allowed, live-count}.
var reserveScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cutoff)
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  return {0, count}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, count + 1}
`)

// WindowStore implements ratelimit.WindowStore on a Redis sorted set.
type WindowStore struct {
	client *redis.Client
}

func NewWindowStore(client *redis.Client) *WindowStore {
	return &WindowStore{client: client}
}

func (s *WindowStore) Reserve(ctx context.Context, key, reservationID string, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := time.Now().UnixMilli()
	raw, err := reserveScript.Run(ctx, s.client, []string{keyPrefix + key},
		now, window.Milliseconds(), limit, reservationID).Slice()
	if err != nil {
		return nil, fmt.Errorf("rate window script: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("rate window script: unexpected reply %v", raw)
	}
	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)

	result := &ratelimit.Result{
		Allowed:   allowed == 1,
		Limit:     limit,
		Remaining: limit - int(count),
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if result.Allowed {
		result.Reservation = ratelimit.Reservation{Key: key, ID: reservationID}
	}
	return result, nil
}

func (s *WindowStore) Release(ctx context.Context, key, reservationID string) error {
	if err := s.client.ZRem(ctx, keyPrefix+key, reservationID).Err(); err != nil {
		return fmt.Errorf("release rate slot: %w", err)
	}
	return nil
}

func (s *WindowStore) Count(ctx context.Context, key string) (int, error) {
	cutoff := time.Now().Add(-ratelimit.Window).UnixMilli()
	full := keyPrefix + key
	if err := s.client.ZRemRangeByScore(ctx, full, "-inf", fmt.Sprintf("%d", cutoff)).Err(); err != nil {
		return 0, fmt.Errorf("prune rate window: %w", err)
	}
	n, err := s.client.ZCard(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("count rate window: %w", err)
	}
	return int(n), nil
}
