package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chronicle/internal/audit"
	"chronicle/internal/pending"
)

const (
	// Key prefixes keep pending entries separate from other tenants of the
	// same Redis instance.
	entryKeyPrefix = "pending:entry:"
	unitKeyPrefix  = "pending:unit:"
)

// DefaultTTL bounds orphaned entries server-side. Redis expiry is the backstop
// for units that crash before ReleaseUnit runs.
const DefaultTTL = 2 * time.Minute

// Cache is a Redis-backed pending store for deployments where the persistence
// layer's hooks may run on more than one process. Entries carry a native TTL;
// Consume uses GETDEL for atomic read-and-remove.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the orphan-eviction TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// NewCache constructs a Redis-backed pending cache.
func NewCache(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// envelope distinguishes a staged "no prior state" marker (snapshot null)
// from a missing key.
type envelope struct {
	Before audit.Snapshot `json:"before"`
}

func entryKey(key pending.Key) string {
	return fmt.Sprintf("%s%s:%s:%s", entryKeyPrefix, key.UnitID, key.EntityType, key.EntityID)
}

func (c *Cache) Stage(ctx context.Context, key pending.Key, before audit.Snapshot) error {
	payload, err := json.Marshal(envelope{Before: before})
	if err != nil {
		return fmt.Errorf("marshal pending entry: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, entryKey(key), payload, c.ttl)
	if key.UnitID != "" {
		unitKey := unitKeyPrefix + key.UnitID
		pipe.SAdd(ctx, unitKey, entryKey(key))
		pipe.Expire(ctx, unitKey, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stage pending entry: %w", err)
	}
	return nil
}

func (c *Cache) Consume(ctx context.Context, key pending.Key) (audit.Snapshot, bool, error) {
	raw, err := c.client.GetDel(ctx, entryKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("consume pending entry: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, false, fmt.Errorf("decode pending entry: %w", err)
	}
	return env.Before, true, nil
}

func (c *Cache) ReleaseUnit(ctx context.Context, unitID string) error {
	if unitID == "" {
		return nil
	}
	unitKey := unitKeyPrefix + unitID
	members, err := c.client.SMembers(ctx, unitKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list pending unit entries: %w", err)
	}
	keys := append(members, unitKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("release pending unit: %w", err)
	}
	return nil
}
