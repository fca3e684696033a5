package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Allower decides whether one more event for key fits in the window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Limiter implements a sliding window rate limiter backed by Redis sorted sets.
type Limiter struct {
	Client redis.UniversalClient
	Prefix string
}

// Allow registers an event for the given key and returns whether it is within the limit.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	now := time.Now()
	until := now.Add(window)
	cutoff := float64(now.Add(-window).UnixNano())

	redisKey := l.Prefix + key
	member := key + ":" + uuid.NewString()

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, until, err
	}

	current := int(countCmd.Val())
	remaining = max - current
	if remaining < 0 {
		remaining = 0
	}
	return current <= max, remaining, until, nil
}

// MemoryWindow is a single-process sliding window used when Redis is not
// configured.
type MemoryWindow struct {
	Now func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// Allow implements Allower.
func (m *MemoryWindow) Allow(_ context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	if max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hits == nil {
		m.hits = make(map[string][]time.Time)
	}
	cutoff := now.Add(-window)
	kept := m.hits[key][:0]
	for _, at := range m.hits[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	reset := now.Add(window)
	if len(kept) > 0 {
		reset = kept[0].Add(window)
	}
	if len(kept) >= max {
		m.hits[key] = kept
		return false, 0, reset, nil
	}
	kept = append(kept, now)
	m.hits[key] = kept
	return true, max - len(kept), reset, nil
}
