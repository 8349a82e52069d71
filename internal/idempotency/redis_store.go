package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// markValue is the payload stored under a guard key. Only presence matters.
const markValue = "exists"

// RedisStore is a KeyStore on Redis.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore wraps a go-redis client (single node, cluster or ring).
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetIfAbsent issues SET key "exists" NX EX ttl.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, markValue, ttl).Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
