package chain

import (
	"math"
	"time"
)

// TTLStrategy determines TTL for each layer in the chain.
type TTLStrategy interface {
	// TTL returns the TTL for the layer at layerIndex in a chain of
	// layerCount layers.
	TTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration
}

// UniformTTLStrategy uses the same TTL for all layers.
type UniformTTLStrategy struct{}

// TTL returns baseTTL.
func (UniformTTLStrategy) TTL(_, _ int, baseTTL time.Duration) time.Duration {
	return baseTTL
}

// DecayingTTLStrategy shortens TTL for upper (faster) layers, so a report
// computed from a stale dataset ages out of memory before it ages out of Redis.
type DecayingTTLStrategy struct {
	DecayFactor float64 // 0.5 means each layer keeps half the TTL of the next
}

// TTL returns baseTTL * DecayFactor^(layerCount-layerIndex-1).
// With three layers and 0.5: L1 0.25x, L2 0.5x, L3 1x.
func (s DecayingTTLStrategy) TTL(layerIndex, layerCount int, baseTTL time.Duration) time.Duration {
	if s.DecayFactor <= 0 || s.DecayFactor >= 1 || layerIndex >= layerCount-1 {
		return baseTTL
	}
	exponent := float64(layerCount - layerIndex - 1)
	return time.Duration(float64(baseTTL) * math.Pow(s.DecayFactor, exponent))
}

// CustomTTLStrategy uses explicit TTL values for each layer.
type CustomTTLStrategy struct {
	TTLs []time.Duration
}

// TTL returns the configured TTL for a layer, or baseTTL if not specified.
func (s CustomTTLStrategy) TTL(layerIndex, _ int, baseTTL time.Duration) time.Duration {
	if layerIndex >= 0 && layerIndex < len(s.TTLs) {
		return s.TTLs[layerIndex]
	}
	return baseTTL
}
