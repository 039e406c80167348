package cache

import (
	"fmt"
	"time"
)

// LayerConfig holds the settings shared by every layer implementation.
type LayerConfig struct {
	// Name is the identifier for this layer (e.g., "memory", "redis")
	Name string

	// DefaultTTL applies when Set is called with a zero TTL
	DefaultTTL time.Duration

	// MaxTTL caps every TTL (0 = no cap)
	MaxTTL time.Duration
}

// Validate checks if the configuration is valid.
func (c *LayerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: layer name is required", ErrInvalidValue)
	}
	if c.DefaultTTL < 0 || c.MaxTTL < 0 {
		return fmt.Errorf("%w: negative ttl", ErrInvalidValue)
	}
	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		return fmt.Errorf("%w: default ttl %s exceeds max ttl %s", ErrInvalidValue, c.DefaultTTL, c.MaxTTL)
	}
	return nil
}

// EffectiveTTL returns the effective TTL for a given duration.
// If ttl is 0, returns DefaultTTL.
// If ttl exceeds MaxTTL, returns MaxTTL.
func (c *LayerConfig) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.DefaultTTL
	}
	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		return c.MaxTTL
	}
	return ttl
}
