package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/wishlist"
)

// Snapshot is the persisted state of one session.
type Snapshot struct {
	Cart     cart.Snapshot    `json:"cart"`
	Wishlist []wishlist.Entry `json:"wishlist"`
	SavedAt  time.Time        `json:"savedAt"`
}

// SnapshotStore persists session snapshots outside the process.
type SnapshotStore interface {
	Load(ctx context.Context, id string) (Snapshot, bool, error)
	Save(ctx context.Context, id string, snap Snapshot) error
	Delete(ctx context.Context, id string) error
}

// NopSnapshots discards every snapshot.
type NopSnapshots struct{}

func (NopSnapshots) Load(context.Context, string) (Snapshot, bool, error) {
	return Snapshot{}, false, nil
}
func (NopSnapshots) Save(context.Context, string, Snapshot) error { return nil }
func (NopSnapshots) Delete(context.Context, string) error         { return nil }

// RedisSnapshots stores snapshots as JSON values with a sliding TTL.
type RedisSnapshots struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshots constructs a Redis-backed snapshot store. A zero ttl
// keeps snapshots until deleted.
func NewRedisSnapshots(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSnapshots {
	if prefix == "" {
		prefix = "toko"
	}
	return &RedisSnapshots{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSnapshots) key(id string) string {
	return s.prefix + ":session:" + id
}

// Load reads a snapshot and reports whether one existed.
func (s *RedisSnapshots) Load(ctx context.Context, id string) (Snapshot, bool, error) {
	if s == nil || s.client == nil || id == "" {
		return Snapshot{}, false, nil
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Save serialises snap and refreshes its TTL.
func (s *RedisSnapshots) Save(ctx context.Context, id string, snap Snapshot) error {
	if s == nil || s.client == nil || id == "" {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(id), data, s.ttl).Err()
}

// Delete removes a snapshot.
func (s *RedisSnapshots) Delete(ctx context.Context, id string) error {
	if s == nil || s.client == nil || id == "" {
		return nil
	}
	return s.client.Del(ctx, s.key(id)).Err()
}
