package reorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// ErrCacheUnavailable marks a redis failure the caller can ride out by computing.
var ErrCacheUnavailable = errors.New("reorder: cache unavailable")

// Cache stores suggestions per pharmacy under a version that stock changes bump.
// A nil Cache or client disables caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the pharmacy's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, pharmacyID string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := shared.ReorderVersionKey(pharmacyID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX: concurrent initialisers must read back the same version.
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	return ver, err
}

// Fetch loads the cached suggestions for the version or fills them with loader.
// When only the store fails, the loaded suggestions are returned together with
// ErrCacheUnavailable.
func (c *Cache) Fetch(ctx context.Context, pharmacyID string, version int64, loader func(context.Context) ([]Suggestion, error)) ([]Suggestion, bool, error) {
	if c == nil || c.client == nil {
		out, err := loader(ctx)
		return out, false, err
	}
	key := shared.ReorderCacheKey(pharmacyID, version)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var out []Suggestion
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, false, err
		}
		return out, true, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	out, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, false, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return out, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return out, false, nil
}

// Bump invalidates the pharmacy's cached suggestions.
func (c *Cache) Bump(ctx context.Context, pharmacyID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, shared.ReorderVersionKey(pharmacyID)).Err()
}
