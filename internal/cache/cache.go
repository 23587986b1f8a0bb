package cache

import (
	"context"
	"fmt"
	"time"
)

// BytesCache is the read-through cache used for serialized order payloads.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// OrderKey is the cache key for the current state of a single order.
func OrderKey(orderID uint64) string {
	return fmt.Sprintf("order:%d:current", orderID)
}

// StatsKey caches the aggregated order statistics document.
const StatsKey = "orders:stats"
