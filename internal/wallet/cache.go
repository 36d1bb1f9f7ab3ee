package wallet

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// loadedField marks a hash that holds the complete wallet rather than a
// partial one left behind by Apply.
const loadedField = "_loaded"

// Cache mirrors wallets into Redis hashes keyed by user.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a wallet cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func walletKey(userID string) string {
	return "wallet:" + userID
}

// Load returns the cached wallet and reports whether a complete copy was present.
func (c *Cache) Load(ctx context.Context, userID string) (OwnedSet, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	fields, err := c.client.HGetAll(ctx, walletKey(userID)).Result()
	if err != nil {
		return nil, false, err
	}
	if _, ok := fields[loadedField]; !ok {
		return nil, false, nil
	}
	owned := make(OwnedSet, len(fields))
	for field, raw := range fields {
		if field == loadedField {
			continue
		}
		id, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(raw)
		if err != nil || qty <= 0 {
			continue
		}
		owned[id] = qty
	}
	return owned, true, nil
}

// Store replaces the cached wallet with owned.
func (c *Cache) Store(ctx context.Context, userID string, owned OwnedSet) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := walletKey(userID)
	values := make([]any, 0, 2*len(owned)+2)
	values = append(values, loadedField, "1")
	for id, qty := range owned {
		values = append(values, id.String(), qty)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	return err
}

// Apply optimistically adds one copy of the voucher before the ledger commits.
func (c *Cache) Apply(ctx context.Context, userID string, voucherID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := walletKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, voucherID.String(), 1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	return err
}

// Reconcile overwrites the cached quantity with the committed one.
func (c *Cache) Reconcile(ctx context.Context, userID string, voucherID uuid.UUID, qty int) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.HSet(ctx, walletKey(userID), voucherID.String(), qty).Err()
}

// Rollback reverts an Apply after the ledger rejected the grant.
func (c *Cache) Rollback(ctx context.Context, userID string, voucherID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := walletKey(userID)
	left, err := c.client.HIncrBy(ctx, key, voucherID.String(), -1).Result()
	if err != nil {
		return err
	}
	if left <= 0 {
		err = c.client.HDel(ctx, key, voucherID.String()).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
	}
	return err
}

// Invalidate drops the cached wallet.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, walletKey(userID)).Err()
}
