// Package cooldown throttles repeated actions per key, e.g. one OTP email per
// address per minute.
package cooldown

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis namespaces every key as prefix:key.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: strings.TrimRight(prefix, ":")}
}

func (r *Redis) redisKey(key string) string {
	return r.prefix + ":" + key
}

// Acquire claims key for window. When the key is already held it returns
// ok=false and the remaining wait.
func (r *Redis) Acquire(ctx context.Context, key string, window time.Duration) (time.Duration, bool, error) {
	if window <= 0 {
		return 0, true, nil
	}

	redisKey := r.redisKey(key)
	acquired, err := r.client.SetNX(ctx, redisKey, 1, window).Result()
	if err != nil {
		return 0, false, fmt.Errorf("acquire cooldown: %w", err)
	}
	if acquired {
		return 0, true, nil
	}

	ttl, err := r.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, false, fmt.Errorf("read cooldown ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl, false, nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.redisKey(key)).Err()
}

type Memory struct {
	mu      sync.Mutex
	until   map[string]time.Time
	now     func() time.Time
	lastGC  time.Time
	gcEvery time.Duration
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		until:   make(map[string]time.Time),
		now:     now,
		gcEvery: time.Minute,
	}
}

func (m *Memory) Acquire(_ context.Context, key string, window time.Duration) (time.Duration, bool, error) {
	if window <= 0 {
		return 0, true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.gc(now)

	if until, held := m.until[key]; held && now.Before(until) {
		return until.Sub(now), false, nil
	}

	m.until[key] = now.Add(window)
	return 0, true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.until, key)
	return nil
}

func (m *Memory) gc(now time.Time) {
	if now.Sub(m.lastGC) < m.gcEvery {
		return
	}
	m.lastGC = now

	for key, until := range m.until {
		if !now.Before(until) {
			delete(m.until, key)
		}
	}
}
