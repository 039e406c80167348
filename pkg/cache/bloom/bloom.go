// Package bloom fronts a cache layer with a bloom filter so lookups for
// reports that were never stored skip the backend round trip.
package bloom

import (
	"context"
	"sync"
	"time"

	"bank-analytics/pkg/cache"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomLayer adds probabilistic membership testing to a cache layer.
// The filter only learns keys written through this wrapper; entries already
// in a shared backend are invisible until rewritten.
type BloomLayer struct {
	layer             cache.Layer
	filter            *bloom.BloomFilter
	expectedItems     uint
	falsePositiveRate float64
	mu                sync.RWMutex

	totalQueries   uint64
	bloomRejected  uint64
	falsePositives uint64
}

var _ cache.Layer = (*BloomLayer)(nil)

// NewBloomLayer creates a new bloom filter layer wrapper.
func NewBloomLayer(layer cache.Layer, expectedItems uint, falsePositiveRate float64) *BloomLayer {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &BloomLayer{
		layer:             layer,
		filter:            bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
	}
}

// Name returns the name of the underlying cache layer.
func (bl *BloomLayer) Name() string {
	return "bloom(" + bl.layer.Name() + ")"
}

// Get consults the filter before the wrapped layer.
func (bl *BloomLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bl.mu.Lock()
	bl.totalQueries++
	if !bl.filter.TestString(key) {
		bl.bloomRejected++
		bl.mu.Unlock()
		return nil, cache.ErrKeyNotFound
	}
	bl.mu.Unlock()

	value, err := bl.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		bl.mu.Lock()
		bl.falsePositives++
		bl.mu.Unlock()
	}
	return value, err
}

// Set records key in the filter and stores the value.
func (bl *BloomLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bl.mu.Lock()
	bl.filter.AddString(key)
	bl.mu.Unlock()

	return bl.layer.Set(ctx, key, value, ttl)
}

// Delete removes a value from the cache. The filter keeps the key; a later
// Get falls through to the layer and counts as a false positive.
func (bl *BloomLayer) Delete(ctx context.Context, key string) error {
	return bl.layer.Delete(ctx, key)
}

// Close closes the underlying cache layer.
func (bl *BloomLayer) Close() error {
	return bl.layer.Close()
}

// Reset clears the bloom filter and its counters.
func (bl *BloomLayer) Reset() {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.filter = bloom.NewWithEstimates(bl.expectedItems, bl.falsePositiveRate)
	bl.totalQueries = 0
	bl.bloomRejected = 0
	bl.falsePositives = 0
}

// Stats returns statistics about the bloom filter.
func (bl *BloomLayer) Stats() BloomStats {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	rejectionRate := 0.0
	falsePositiveRate := 0.0

	if bl.totalQueries > 0 {
		rejectionRate = float64(bl.bloomRejected) / float64(bl.totalQueries)
		queried := bl.totalQueries - bl.bloomRejected
		if queried > 0 {
			falsePositiveRate = float64(bl.falsePositives) / float64(queried)
		}
	}

	return BloomStats{
		TotalQueries:      bl.totalQueries,
		BloomRejected:     bl.bloomRejected,
		FalsePositives:    bl.falsePositives,
		RejectionRate:     rejectionRate,
		FalsePositiveRate: falsePositiveRate,
		FilterCapacity:    bl.filter.Cap(),
	}
}

// BloomStats holds statistics about bloom filter performance.
type BloomStats struct {
	TotalQueries      uint64  `json:"total_queries"`
	BloomRejected     uint64  `json:"bloom_rejected"`
	FalsePositives    uint64  `json:"false_positives"`
	RejectionRate     float64 `json:"rejection_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	FilterCapacity    uint    `json:"filter_capacity"`
}
