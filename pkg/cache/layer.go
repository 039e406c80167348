// Package cache defines the storage contract of the report cache.
// Layers hold encoded report payloads keyed by dataset fingerprint and
// analysis name; a fingerprint change makes every older key unreachable.
package cache

import (
	"context"
	"time"
)

// Layer is one tier of the report cache.
type Layer interface {
	// Get returns the payload stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A zero ttl uses the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics.
	Name() string

	// Close releases the layer's resources.
	Close() error
}
