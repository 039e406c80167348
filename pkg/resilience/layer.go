// Package resilience guards a cache layer with a per-operation timeout and a
// circuit breaker, so a slow or failing backend degrades to cache misses
// instead of stalling report requests.
package resilience

import (
	"context"
	"errors"
	"time"

	"bank-analytics/pkg/cache"
	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ResilientLayer wraps a cache.Layer with circuit breaker and timeout
// protection. Cache misses count as successes for the breaker.
type ResilientLayer struct {
	layer   cache.Layer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

var _ cache.Layer = (*ResilientLayer)(nil)

// NewResilientLayer creates a new resilient layer wrapper around the given cache layer.
func NewResilientLayer(layer cache.Layer, config ResilientConfig) *ResilientLayer {
	return NewResilientLayerWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewResilientLayerWithMetrics creates a new resilient layer reporting to collector.
func NewResilientLayerWithMetrics(layer cache.Layer, config ResilientConfig, collector metrics.Collector) *ResilientLayer {
	logger := logging.L().Named("resilience").Named(layer.Name())

	rl := &ResilientLayer{
		layer:   layer,
		timeout: config.Timeout,
		metrics: collector,
		logger:  logger,
	}

	logger.Debug("resilient layer initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_interval", config.CircuitBreakerConfig.Interval),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
	)

	settings := gobreaker.Settings{
		Name:        layer.Name(),
		MaxRequests: config.CircuitBreakerConfig.MaxRequests,
		Interval:    config.CircuitBreakerConfig.Interval,
		Timeout:     config.CircuitBreakerConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if config.CircuitBreakerConfig.ReadyToTrip != nil {
				return config.CircuitBreakerConfig.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || cache.IsNotFound(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			rl.metrics.RecordCircuitState(name, circuitState(to))
		},
	}

	rl.cb = gobreaker.NewCircuitBreaker(settings)

	return rl
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// Name returns the name of the underlying cache layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// State returns the current circuit breaker state.
func (rl *ResilientLayer) State() metrics.CircuitState {
	return circuitState(rl.cb.State())
}

func (rl *ResilientLayer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rl.timeout > 0 {
		return context.WithTimeout(ctx, rl.timeout)
	}
	return ctx, func() {}
}

// translate maps breaker and deadline failures to cache errors and logs them.
func (rl *ResilientLayer) translate(ctx context.Context, op string, err error, elapsed time.Duration) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rl.logger.Debug("circuit breaker open, request rejected", zap.String("operation", op))
		return cache.ErrCircuitOpen
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rl.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.Duration("timeout", rl.timeout),
			zap.Duration("elapsed", elapsed),
		)
		return cache.ErrTimeout
	case cache.IsNotFound(err):
		return err
	default:
		rl.logger.Error("cache operation failed",
			zap.String("operation", op),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return err
	}
}

// Get retrieves a value with timeout and circuit breaker protection.
func (rl *ResilientLayer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	ctx, cancel := rl.withTimeout(ctx)
	defer cancel()

	result, err := rl.cb.Execute(func() (interface{}, error) {
		return rl.layer.Get(ctx, key)
	})

	duration := time.Since(start)
	rl.metrics.RecordCacheGet(rl.layer.Name(), err == nil, duration)

	if err != nil {
		return nil, rl.translate(ctx, "get", err, duration)
	}
	value, _ := result.([]byte)
	return value, nil
}

// Set stores a value with timeout and circuit breaker protection.
func (rl *ResilientLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	ctx, cancel := rl.withTimeout(ctx)
	defer cancel()

	_, err := rl.cb.Execute(func() (interface{}, error) {
		return nil, rl.layer.Set(ctx, key, value, ttl)
	})

	duration := time.Since(start)
	rl.metrics.RecordCacheSet(rl.layer.Name(), err == nil, duration)

	if err != nil {
		return rl.translate(ctx, "set", err, duration)
	}
	return nil
}

// Delete removes a value with timeout and circuit breaker protection.
func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()
	ctx, cancel := rl.withTimeout(ctx)
	defer cancel()

	_, err := rl.cb.Execute(func() (interface{}, error) {
		return nil, rl.layer.Delete(ctx, key)
	})
	if err != nil {
		return rl.translate(ctx, "delete", err, time.Since(start))
	}
	return nil
}

// Clear drops every entry when the underlying layer supports it.
func (rl *ResilientLayer) Clear(ctx context.Context) error {
	type clearer interface {
		Clear(ctx context.Context) error
	}
	cl, ok := rl.layer.(clearer)
	if !ok {
		return nil
	}

	start := time.Now()
	ctx, cancel := rl.withTimeout(ctx)
	defer cancel()

	_, err := rl.cb.Execute(func() (interface{}, error) {
		return nil, cl.Clear(ctx)
	})
	if err != nil {
		return rl.translate(ctx, "clear", err, time.Since(start))
	}
	return nil
}

// Close closes the underlying cache layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}
