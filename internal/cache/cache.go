package cache

import (
	"context"
	"time"
)

// Cache is a JSON key/value store with TTL expiry. Entries are advisory:
// dropping one costs latency, never correctness.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
}
