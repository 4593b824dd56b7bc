// Package ratelimit provides the distributed sliding-window store on Redis,
// the circuit breaker guarding it and the emergency bypass controller.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/errors"
	"github.com/turtacn/renewguard/pkg/logger"
)

var _ service.CounterStore = (*RedisCounterStore)(nil)

// slidingWindowLuaScript prunes, records, counts and refreshes the TTL of one
// window as a single atomic step.
//
// KEYS[1] window key
// ARGV[1] now (ms)
// ARGV[2] prune cutoff, now - window (ms)
// ARGV[3] unique member
// ARGV[4] ttl (s)
const slidingWindowLuaScript = `
local key = KEYS[1]

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
redis.call('ZADD', key, ARGV[1], ARGV[3])
local count = redis.call('ZCARD', key)
redis.call('EXPIRE', key, ARGV[4])

return count
`

// trimLuaScript removes entries scored at or before the cutoff and reports
// how many were removed and how many remain. Redis drops the key itself once
// the set is empty.
//
// KEYS[1] key
// ARGV[1] cutoff (ms)
const trimLuaScript = `
local removed = redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local remaining = redis.call('ZCARD', KEYS[1])
return {removed, remaining}
`

// RedisCounterStore implements service.CounterStore on Redis sorted sets.
// It never retries; every failure surfaces as a store_unavailable error.
type RedisCounterStore struct {
	client        redis.UniversalClient
	logger        logger.Logger
	slidingWindow *redis.Script
	trim          *redis.Script
}

// NewRedisCounterStore creates a new Redis-backed counter store.
func NewRedisCounterStore(client redis.UniversalClient, log logger.Logger) *RedisCounterStore {
	return &RedisCounterStore{
		client:        client,
		logger:        log.WithComponent("counter_store"),
		slidingWindow: redis.NewScript(slidingWindowLuaScript),
		trim:          redis.NewScript(trimLuaScript),
	}
}

// RecordAndCount implements service.CounterStore.
func (s *RedisCounterStore) RecordAndCount(ctx context.Context, windowKey string, now time.Time, window time.Duration) (int64, error) {
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	count, err := s.slidingWindow.Run(ctx, s.client, []string{windowKey},
		nowMs, nowMs-window.Milliseconds(), member, ttlSeconds(window),
	).Int64()
	if err != nil {
		s.logger.Debug(ctx, "Sliding window script failed", logger.Fields{"key": windowKey, "error": err.Error()})
		return 0, errors.ErrStoreUnavailable("record_and_count", err)
	}
	return count, nil
}

// CountWindow implements service.CounterStore.
func (s *RedisCounterStore) CountWindow(ctx context.Context, windowKey string, now time.Time, window time.Duration) (int64, error) {
	lower := "(" + strconv.FormatInt(now.UnixMilli()-window.Milliseconds(), 10)
	count, err := s.client.ZCount(ctx, windowKey, lower, "+inf").Result()
	if err != nil {
		return 0, errors.ErrStoreUnavailable("count_window", err)
	}
	return count, nil
}

// SetBlock implements service.CounterStore.
func (s *RedisCounterStore) SetBlock(ctx context.Context, blockKey string, ttl time.Duration) error {
	if err := s.client.Set(ctx, blockKey, "1", ttl).Err(); err != nil {
		return errors.ErrStoreUnavailable("set_block", err)
	}
	return nil
}

// IsBlocked implements service.CounterStore.
func (s *RedisCounterStore) IsBlocked(ctx context.Context, blockKey string) (bool, error) {
	n, err := s.client.Exists(ctx, blockKey).Result()
	if err != nil {
		return false, errors.ErrStoreUnavailable("is_blocked", err)
	}
	return n > 0, nil
}

// RemainingBlockSeconds implements service.CounterStore. Missing keys yield -2
// and keys without expiry -1, mirroring the Redis TTL reply.
func (s *RedisCounterStore) RemainingBlockSeconds(ctx context.Context, blockKey string) (int64, error) {
	d, err := s.client.TTL(ctx, blockKey).Result()
	if err != nil {
		return 0, errors.ErrStoreUnavailable("ttl", err)
	}
	if d < 0 {
		// go-redis passes -1/-2 through unscaled
		return int64(d), nil
	}
	return int64(math.Ceil(d.Seconds())), nil
}

// DeleteKeys implements service.CounterStore. Keys are deleted one per
// command so the call also works across cluster slots.
func (s *RedisCounterStore) DeleteKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, k)
		}
		return nil
	})
	if err != nil {
		return errors.ErrStoreUnavailable("delete_keys", err)
	}
	return nil
}

// ListKeysByPrefix implements service.CounterStore using SCAN, never KEYS.
// On a cluster every master is scanned.
func (s *RedisCounterStore) ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"

	if cc, ok := s.client.(*redis.ClusterClient); ok {
		var (
			mu   sync.Mutex
			keys []string
		)
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			found, err := scanAll(ctx, node, pattern)
			if err != nil {
				return err
			}
			mu.Lock()
			keys = append(keys, found...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, errors.ErrStoreUnavailable("scan", err)
		}
		return keys, nil
	}

	keys, err := scanAll(ctx, s.client, pattern)
	if err != nil {
		return nil, errors.ErrStoreUnavailable("scan", err)
	}
	return keys, nil
}

// TrimBefore implements service.CounterStore.
func (s *RedisCounterStore) TrimBefore(ctx context.Context, key string, cutoff time.Time) (int64, int64, error) {
	res, err := s.trim.Run(ctx, s.client, []string{key}, cutoff.UnixMilli()).Int64Slice()
	if err != nil {
		return 0, 0, errors.ErrStoreUnavailable("trim", err)
	}
	if len(res) != 2 {
		return 0, 0, errors.ErrStoreUnavailable("trim", fmt.Errorf("unexpected reply length %d", len(res)))
	}
	return res[0], res[1], nil
}

// SetFlag implements service.CounterStore.
func (s *RedisCounterStore) SetFlag(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.ErrStoreUnavailable("set_flag", err)
	}
	return nil
}

// GetFlag implements service.CounterStore.
func (s *RedisCounterStore) GetFlag(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.ErrStoreUnavailable("get_flag", err)
	}
	return val, true, nil
}

// scanner is the part of go-redis shared by *redis.Client and UniversalClient.
type scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

func scanAll(ctx context.Context, c scanner, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.Scan(ctx, cursor, pattern, constants.ScanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// ttlSeconds rounds a window up to whole seconds, at least one.
func ttlSeconds(window time.Duration) int64 {
	secs := int64(math.Ceil(window.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes SCAN MATCH metacharacters so identifiers match literally.
func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}

//Personal.AI order the ending
