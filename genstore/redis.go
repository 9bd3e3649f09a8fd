package genstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares per-key generations across processes and survives restarts,
// so an invalidation issued by one replica is seen by all of them.
// Optionally, a TTL can be applied to generation keys to prevent unbounded growth.
// If a generation key expires, readers observe gen=0 and stored results self-heal.
type Redis struct {
	rdb redis.UniversalClient
	ns  string        // logical namespace; should match the coordinator namespace
	ttl time.Duration // optional TTL for generation keys; 0 disables expiry
}

var _ GenStore = (*Redis)(nil)

// NewRedis creates a Redis-backed generation store without TTL.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

// NewRedisWithTTL creates a Redis-backed generation store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key(k string) string { return "gen:" + s.ns + ":" + k }

// Snapshot returns the current generation.
// Missing keys are treated as generation 0.
func (s *Redis) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(storageKey)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

// Bump atomically increments the generation and (optionally) refreshes TTL.
func (s *Redis) Bump(ctx context.Context, storageKey string) (uint64, error) {
	gens, err := s.BumpMany(ctx, []string{storageKey})
	if err != nil {
		return 0, err
	}
	return gens[storageKey], nil
}

// BumpMany pipelines INCR (+ EXPIRE when ttl > 0) for all keys in a single
// round-trip. The INCR results are read back from the pipeline.
func (s *Redis) BumpMany(ctx context.Context, storageKeys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(storageKeys))
	if len(storageKeys) == 0 {
		return out, nil
	}

	incrs := make([]*redis.IntCmd, len(storageKeys))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range storageKeys {
			incrs[i] = p.Incr(ctx, s.key(k))
			if s.ttl > 0 {
				p.Expire(ctx, s.key(k), s.ttl)
			}
		}
		return nil
	})
	for i, cmd := range incrs {
		if cmd.Err() == nil {
			out[storageKeys[i]] = uint64(cmd.Val())
		}
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// Cleanup is not applicable for Redis (Redis handles expiry if TTL is set).
func (s *Redis) Cleanup(time.Duration) {}

// Close closes the underlying Redis client.
func (s *Redis) Close(context.Context) error { return s.rdb.Close() }
