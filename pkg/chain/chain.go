// Package chain composes cache layers into the tiered report cache.
// Reads fall through from the fastest layer to the slowest and warm the
// layers above a hit; GetOrLoad computes a report once per key on a full miss.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bank-analytics/pkg/cache"
	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/metrics"
	"bank-analytics/pkg/resilience"
	"bank-analytics/pkg/writer"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultWarmTTL is the base TTL used when a hit in a lower layer is copied upward.
const DefaultWarmTTL = time.Hour

// DefaultFlightTimeout bounds a traversal or load shared by concurrent callers.
const DefaultFlightTimeout = 30 * time.Second

// Chain manages multiple cache layers with automatic fallback and warm-up.
// Layers are ordered from fastest (L1) to slowest (LN).
type Chain struct {
	layers  []*resilience.ResilientLayer
	writers []*writer.AsyncWriter
	sf      singleflight.Group

	ttl           TTLStrategy
	warmTTL       time.Duration
	flightTimeout time.Duration
	metrics       metrics.Collector
	logger        *logging.Logger
}

type options struct {
	collector   metrics.Collector
	logger      *logging.Logger
	ttl         TTLStrategy
	warmTTL     time.Duration
	l1Timeout   time.Duration
	deepTimeout time.Duration
	flight      time.Duration
}

// Option configures New.
type Option func(*options)

// WithCollector reports layer, circuit and chain metrics to collector.
func WithCollector(collector metrics.Collector) Option {
	return func(o *options) { o.collector = collector }
}

// WithLogger sets the chain logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTTLStrategy sets how a base TTL is spread across layers.
func WithTTLStrategy(strategy TTLStrategy) Option {
	return func(o *options) { o.ttl = strategy }
}

// WithWarmTTL sets the base TTL of warm-up writes.
func WithWarmTTL(ttl time.Duration) Option {
	return func(o *options) { o.warmTTL = ttl }
}

// WithTimeouts sets the per-operation timeout of L1 and of every deeper layer.
func WithTimeouts(l1, deeper time.Duration) Option {
	return func(o *options) {
		o.l1Timeout = l1
		o.deepTimeout = deeper
	}
}

// WithFlightTimeout bounds the work shared by concurrent Get and GetOrLoad
// callers for one key. That work does not stop when a single caller gives up.
func WithFlightTimeout(d time.Duration) Option {
	return func(o *options) { o.flight = d }
}

// New creates a new chain of cache layers, fastest first.
// Every layer is wrapped with timeout and circuit breaker protection.
func New(layers []cache.Layer, opts ...Option) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}

	o := options{
		collector:   metrics.NoOpCollector{},
		logger:      logging.L(),
		ttl:         UniformTTLStrategy{},
		warmTTL:     DefaultWarmTTL,
		l1Timeout:   100 * time.Millisecond,
		deepTimeout: time.Second,
		flight:      DefaultFlightTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Chain{
		layers:  make([]*resilience.ResilientLayer, len(layers)),
		writers: make([]*writer.AsyncWriter, len(layers)),
		ttl:           o.ttl,
		warmTTL:       o.warmTTL,
		flightTimeout: o.flight,
		metrics:       o.collector,
		logger:        o.logger.Named("chain"),
	}

	for i, layer := range layers {
		config := resilience.DefaultResilientConfig().WithTimeout(o.deepTimeout)
		if i == 0 {
			config = config.WithTimeout(o.l1Timeout)
		}
		c.layers[i] = resilience.NewResilientLayerWithMetrics(layer, config, o.collector)
		c.writers[i] = writer.NewAsyncWriter(c.layers[i], writer.AsyncWriterConfig{
			QueueSize:   1000,
			Workers:     2,
			MaxWaitTime: 10 * time.Millisecond,
		})
	}

	c.logger.Debug("cache chain initialized", zap.String("layers", c.String()))
	return c, nil
}

// Get retrieves a value from the chain.
// It traverses layers in order until a hit, then warms the upper layers
// asynchronously. Concurrent Gets for the same key share one traversal.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	return c.share(ctx, "get:"+key, func(ctx context.Context) ([]byte, error) {
		return c.getWithFallback(ctx, key)
	})
}

// share runs fn once per flight key. fn gets a context detached from every
// caller and bounded by the flight timeout, so one caller cancelling does not
// fail the others. Each caller still returns as soon as its own ctx is done.
func (c *Chain) share(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		return fn(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Chain) getWithFallback(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var lastErr error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			// Misses and unavailable layers both fall through.
			if !cache.IsNotFound(err) {
				c.logger.Debug("layer skipped", zap.String("layer", layer.Name()), zap.Error(err))
			}
			lastErr = err
			continue
		}

		c.metrics.RecordChainGet(true, i, time.Since(start))
		if i > 0 {
			c.warmUpperLayers(ctx, key, value, i)
		}
		return value, nil
	}

	c.metrics.RecordChainGet(false, -1, time.Since(start))
	if lastErr != nil && !cache.IsNotFound(lastErr) {
		return nil, lastErr
	}
	return nil, cache.ErrKeyNotFound
}

func (c *Chain) warmUpperLayers(ctx context.Context, key string, value []byte, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		ttl := c.ttl.TTL(i, len(c.layers), c.warmTTL)
		if err := c.writers[i].Write(ctx, key, value, ttl); err != nil {
			c.logger.Debug("warm-up write not queued",
				zap.String("layer", c.layers[i].Name()),
				zap.Error(err),
			)
		}
	}
}

// GetOrLoad returns the value under key, calling load on a full miss and
// storing its result in every layer. Concurrent callers for the same key
// share one load, which keeps running if the caller that started it goes away.
// The boolean reports whether the value came from the cache.
// Load errors are returned as is and nothing is stored.
func (c *Chain) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	value, err := c.Get(ctx, key)
	if err == nil {
		return value, true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, false, ctxErr
	}

	value, err = c.share(ctx, "load:"+key, func(ctx context.Context) ([]byte, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if setErr := c.Set(ctx, key, value, ttl); setErr != nil {
			c.logger.Warn("loaded value not cached", zap.String("key", key), zap.Error(setErr))
		}
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, false, nil
}

// Set writes the value to all layers, applying the TTL strategy per layer.
// If any layer fails, the last error is returned but every layer is attempted.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	var lastErr error
	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Set(ctx, key, value, c.ttl.TTL(i, len(c.layers), ttl)); err != nil {
			lastErr = cache.WrapError(err, layer.Name(), "set")
		}
	}
	return lastErr
}

// Delete removes the key from all layers in the chain.
// If any layer fails, the last error is returned but every layer is attempted.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var lastErr error
	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := layer.Delete(ctx, key); err != nil {
			lastErr = cache.WrapError(err, layer.Name(), "delete")
		}
	}
	return lastErr
}

// Clear empties every layer that supports it, such as the in-process
// memory layer. Shared layers like Redis are left alone; they only lose
// entries through Delete and TTL expiry. Every layer is attempted and the
// last error is returned.
func (c *Chain) Clear(ctx context.Context) error {
	var lastErr error
	for _, layer := range c.layers {
		if err := layer.Clear(ctx); err != nil {
			c.logger.Warn("layer not cleared", zap.String("layer", layer.Name()), zap.Error(err))
			lastErr = fmt.Errorf("clear %s: %w", layer.Name(), err)
		}
	}
	return lastErr
}

// Flush waits for pending warm-up writes.
func (c *Chain) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for _, w := range c.writers {
		if err := w.Flush(time.Until(deadline)); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the warm-up writers, then closes every layer.
// Returns the last error encountered, but attempts to close all layers.
func (c *Chain) Close() error {
	var lastErr error
	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	for _, layer := range c.layers {
		if err := layer.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Layers returns the wrapped layers for inspection.
func (c *Chain) Layers() []*resilience.ResilientLayer {
	layers := make([]*resilience.ResilientLayer, len(c.layers))
	copy(layers, c.layers)
	return layers
}

// WriterStats returns the warm-up writer statistics, one per layer, in layer order.
func (c *Chain) WriterStats() []writer.AsyncWriterStats {
	stats := make([]writer.AsyncWriterStats, len(c.writers))
	for i, w := range c.writers {
		stats[i] = w.Stats()
	}
	return stats
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

// String returns a string representation of the chain.
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}
