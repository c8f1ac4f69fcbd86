package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Presence counts live connections per user. A user is online while the
// count is positive.
type Presence interface {
	// Join registers a connection and reports whether it is the user's first.
	Join(ctx context.Context, userID int64) (first bool, err error)
	// Leave drops a connection and reports whether it was the user's last.
	Leave(ctx context.Context, userID int64) (last bool, err error)
	// Online reports which of ids currently hold a connection.
	Online(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// MemoryPresence keeps connection counts in process memory.
type MemoryPresence struct {
	mu     sync.Mutex
	counts map[int64]int
}

// NewMemoryPresence returns an empty MemoryPresence.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{counts: make(map[int64]int)}
}

// Join implements Presence.
func (p *MemoryPresence) Join(_ context.Context, userID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]++
	return p.counts[userID] == 1, nil
}

// Leave implements Presence.
func (p *MemoryPresence) Leave(_ context.Context, userID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.counts[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(p.counts, userID)
		return true, nil
	}
	p.counts[userID] = n - 1
	return false, nil
}

// Online implements Presence.
func (p *MemoryPresence) Online(_ context.Context, ids []int64) (map[int64]bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = p.counts[id] > 0
	}
	return out, nil
}

// Redis presence defaults.
const (
	DefaultPresenceKey = "guardpost:chat:presence"
	DefaultPresenceTTL = 30 * time.Second
)

// RedisPresence keeps one connection-count hash per process and sums the
// hashes of live processes. A process stays live while it heartbeats within
// ttl, so counts held by a crashed process stop counting once it lapses.
type RedisPresence struct {
	client   *redis.Client
	key      string
	instance string
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRedisPresence returns a RedisPresence under key, or DefaultPresenceKey,
// with a fresh instance id.
func NewRedisPresence(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *RedisPresence {
	if key == "" {
		key = DefaultPresenceKey
	}
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPresence{
		client:   client,
		key:      key,
		instance: uuid.NewString(),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *RedisPresence) instancesKey() string { return p.key + ":instances" }

func (p *RedisPresence) countsKey(instance string) string { return p.key + ":conns:" + instance }

// touch extends this process's lease.
func (p *RedisPresence) touch(ctx context.Context, pipe redis.Pipeliner) {
	deadline := p.now().Add(p.ttl).UnixMilli()
	pipe.ZAdd(ctx, p.instancesKey(), redis.Z{Score: float64(deadline), Member: p.instance})
	pipe.Expire(ctx, p.countsKey(p.instance), p.ttl)
}

// Join implements Presence.
func (p *RedisPresence) Join(ctx context.Context, userID int64) (bool, error) {
	f := field(userID)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, p.countsKey(p.instance), f, 1)
		p.touch(ctx, pipe)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("chat: presence join: %w", err)
	}
	totals, err := p.totals(ctx, []string{f})
	if err != nil {
		return false, fmt.Errorf("chat: presence join: %w", err)
	}
	return totals[0] == 1, nil
}

// Leave implements Presence. A leave this process never joined is ignored.
func (p *RedisPresence) Leave(ctx context.Context, userID int64) (bool, error) {
	f := field(userID)
	own := p.countsKey(p.instance)
	n, err := p.client.HIncrBy(ctx, own, f, -1).Result()
	if err != nil {
		return false, fmt.Errorf("chat: presence leave: %w", err)
	}
	if n <= 0 {
		if err := p.client.HDel(ctx, own, f).Err(); err != nil {
			return false, fmt.Errorf("chat: presence clear: %w", err)
		}
	}
	if n < 0 {
		return false, nil
	}
	totals, err := p.totals(ctx, []string{f})
	if err != nil {
		return false, fmt.Errorf("chat: presence leave: %w", err)
	}
	return totals[0] == 0, nil
}

// Online implements Presence.
func (p *RedisPresence) Online(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	fields := make([]string, len(ids))
	for i, id := range ids {
		fields[i] = field(id)
	}
	totals, err := p.totals(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("chat: presence lookup: %w", err)
	}
	for i, id := range ids {
		out[id] = totals[i] > 0
	}
	return out, nil
}

// totals sums the counts of fields across live processes.
func (p *RedisPresence) totals(ctx context.Context, fields []string) ([]int64, error) {
	sums := make([]int64, len(fields))
	live, err := p.client.ZRangeByScore(ctx, p.instancesKey(), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(p.now().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil || len(live) == 0 {
		return sums, err
	}
	cmds := make([]*redis.SliceCmd, len(live))
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, instance := range live {
			cmds[i] = pipe.HMGet(ctx, p.countsKey(instance), fields...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, cmd := range cmds {
		for i, v := range cmd.Val() {
			if n := count(v); n > 0 {
				sums[i] += n
			}
		}
	}
	return sums, nil
}

// Heartbeat renews this process's lease and prunes lapsed processes.
func (p *RedisPresence) Heartbeat(ctx context.Context) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		p.touch(ctx, pipe)
		pipe.ZRemRangeByScore(ctx, p.instancesKey(), "-inf", strconv.FormatInt(p.now().UnixMilli(), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("chat: presence heartbeat: %w", err)
	}
	return nil
}

// Run heartbeats every third of the ttl until ctx is done.
func (p *RedisPresence) Run(ctx context.Context) {
	ticker := time.NewTicker(p.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Heartbeat(ctx); err != nil {
				p.logger.Warn("chat: presence heartbeat", slog.Any("error", err))
			}
		}
	}
}

// Close drops every connection this process holds.
func (p *RedisPresence) Close(ctx context.Context) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.countsKey(p.instance))
		pipe.ZRem(ctx, p.instancesKey(), p.instance)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chat: presence close: %w", err)
	}
	return nil
}

func field(id int64) string {
	return strconv.FormatInt(id, 10)
}

func count(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var (
	_ Presence = (*MemoryPresence)(nil)
	_ Presence = (*RedisPresence)(nil)
)
