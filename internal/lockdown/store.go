// Package lockdown implements the global kill switch that blocks every role
// except the security administrator from gated routes.
package lockdown

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Store holds the lockdown flag.
type Store interface {
	Active(ctx context.Context) (bool, error)
	Set(ctx context.Context, active bool) error
}

// MemoryStore keeps the flag in process memory. It starts inactive and is
// cleared by a restart.
type MemoryStore struct {
	active atomic.Bool
}

// NewMemoryStore returns an inactive MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Active implements Store.
func (s *MemoryStore) Active(context.Context) (bool, error) {
	return s.active.Load(), nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, active bool) error {
	s.active.Store(active)
	return nil
}

// DefaultRedisKey is where RedisStore keeps the flag.
const DefaultRedisKey = "guardpost:lockdown"

// RedisStore shares the flag between processes through a Redis key. The key
// is present only while lockdown is active.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a RedisStore using key, or DefaultRedisKey when empty.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Active implements Store.
func (s *RedisStore) Active(ctx context.Context) (bool, error) {
	err := s.client.Get(ctx, s.key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, active bool) error {
	if active {
		return s.client.Set(ctx, s.key, "1", 0).Err()
	}
	return s.client.Del(ctx, s.key).Err()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
