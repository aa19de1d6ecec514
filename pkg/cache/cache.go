package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Store is the key-value contract the core depends on. Values are
// JSON-marshaled unless they are already strings or byte slices. A zero
// expiration means no TTL. Both the in-process and the Redis backend
// satisfy it; the core must not assume which is present.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
