package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores evaluated alert partitions in Redis for a short TTL so the
// dashboard poll does not hammer the product table. A nil cache disables
// caching entirely.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(threshold int) string {
	return fmt.Sprintf("alerts:low_stock:%d", threshold)
}

// Get loads a cached partition; the second return reports a hit.
func (c *Cache) Get(ctx context.Context, threshold int) (Alerts, bool) {
	if c == nil || c.client == nil {
		return Alerts{}, false
	}
	raw, err := c.client.Get(ctx, cacheKey(threshold)).Bytes()
	if err != nil {
		return Alerts{}, false
	}
	var alerts Alerts
	if err := json.Unmarshal(raw, &alerts); err != nil {
		return Alerts{}, false
	}
	return alerts, true
}

// Set stores a partition. Failures are swallowed; the cache is advisory.
func (c *Cache) Set(ctx context.Context, threshold int, alerts Alerts) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(alerts)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(threshold), raw, c.ttl).Err()
}
