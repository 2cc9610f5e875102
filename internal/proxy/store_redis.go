package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore shares windowed counters across edge instances. Keys
// carry the window stamp so a native TTL removes them after the window
// closes.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int, error) {
	count, err := s.client.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("counter get: %w", err)
	}
	return count, nil
}

func (s *RedisCounterStore) Put(ctx context.Context, key string, count int, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, count, ttl).Err(); err != nil {
		return fmt.Errorf("counter put: %w", err)
	}
	return nil
}
