package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const catalogKey = "vouchers:catalog:v1"

// Cache keeps the full catalog as one JSON document in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a catalog cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Load returns the cached catalog and reports whether it was present.
func (c *Cache) Load(ctx context.Context) ([]Voucher, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var vouchers []Voucher
	if err := json.Unmarshal(data, &vouchers); err != nil {
		return nil, false, err
	}
	return vouchers, true, nil
}

// Store replaces the cached catalog.
func (c *Cache) Store(ctx context.Context, vouchers []Voucher) error {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return nil
	}
	if vouchers == nil {
		vouchers = []Voucher{}
	}
	data, err := json.Marshal(vouchers)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, catalogKey, data, c.ttl).Err()
}

// Invalidate drops the cached catalog so the next read hits Postgres.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, catalogKey).Err()
}
