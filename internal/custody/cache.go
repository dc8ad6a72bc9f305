package custody

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/custody/internal/assets"
)

// AvailableCache stores available-asset listings per company. Entries are
// keyed by a version counter so one INCR invalidates every cached page.
type AvailableCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailableCache constructs the cache. A nil client disables caching.
func NewAvailableCache(client *redis.Client, ttl time.Duration) *AvailableCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AvailableCache{client: client, ttl: ttl}
}

func versionKey(company string) string {
	return fmt.Sprintf("custody:available:%s:version", company)
}

// Key resolves the data key for the company's current version. Callers take
// the key before querying the database and fill it with Set afterwards, so a
// listing read before an Invalidate is never stored under the newer version.
func (c *AvailableCache) Key(ctx context.Context, company string) (string, error) {
	if c == nil || c.client == nil {
		return "", nil
	}
	version, err := c.client.Get(ctx, versionKey(company)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("custody:available:%s:v%d", company, version), nil
}

// Get returns the listing cached under key and whether it was present.
func (c *AvailableCache) Get(ctx context.Context, key string) ([]assets.Asset, bool, error) {
	if c == nil || c.client == nil || key == "" {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var list []assets.Asset
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, err
	}
	return list, true, nil
}

// Set stores the listing under key.
func (c *AvailableCache) Set(ctx context.Context, key string, list []assets.Asset) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate bumps the company version.
func (c *AvailableCache) Invalidate(ctx context.Context, company string) error {
	if c == nil || c.client == nil || company == "" {
		return nil
	}
	return c.client.Incr(ctx, versionKey(company)).Err()
}
