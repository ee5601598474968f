// Package store opens the connection adapter selected by configuration.
package store

import (
	"context"
	"time"
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// Cache is a byte-valued key/value cache. Get reports a missing or expired key as
// (nil, false, nil), and deleting a missing key is not an error.
type Cache interface {
	Adapter
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
