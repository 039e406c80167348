// Package writer warms cache tiers in the background. When a report is
// served from a slow tier, the faster tiers above it are refilled through an
// AsyncWriter so the request does not wait on those writes.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bank-analytics/pkg/cache"
	"bank-analytics/pkg/logging"

	"go.uber.org/zap"
)

// AsyncWriter provides non-blocking cache writes using a worker pool and a
// bounded queue.
type AsyncWriter struct {
	layer     cache.Layer
	queue     chan writeOp
	workers   int
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	config    AsyncWriterConfig
	logger    *logging.Logger

	droppedWrites int64
	totalWrites   int64
	failedWrites  int64
	pending       int64
}

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
}

// AsyncWriterConfig configures the async writer behavior.
type AsyncWriterConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is the max time to wait if queue is full (default: 10ms)
	MaxWaitTime time.Duration

	// WriteTimeout bounds each Set on the layer (default: 5s)
	WriteTimeout time.Duration
}

// NewAsyncWriter creates a new async writer with bounded queue and worker pool.
// The writer starts processing immediately and must be closed with Close().
// Writes are not recorded here; wrap layer in a resilience.ResilientLayer to
// get set metrics.
func NewAsyncWriter(layer cache.Layer, config AsyncWriterConfig) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	w := &AsyncWriter{
		layer:     layer,
		queue:     make(chan writeOp, config.QueueSize),
		workers:   config.Workers,
		done:      make(chan struct{}),
		config:    config,
		logger:    logging.L().Named("writer").Named(layer.Name()),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}

	return w
}

// Write enqueues a write. If the queue is full it waits up to MaxWaitTime
// and then drops the write with ErrQueueFull.
func (w *AsyncWriter) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-w.done:
		return ErrWriterClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	op := writeOp{key: key, value: value, ttl: ttl}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	atomic.AddInt64(&w.pending, 1)
	select {
	case w.queue <- op:
		atomic.AddInt64(&w.totalWrites, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.pending, -1)
		atomic.AddInt64(&w.droppedWrites, 1)
		w.logger.Debug("write dropped", zap.String("key", key))
		return ErrQueueFull
	case <-ctx.Done():
		atomic.AddInt64(&w.pending, -1)
		return ctx.Err()
	case <-w.done:
		atomic.AddInt64(&w.pending, -1)
		return ErrWriterClosed
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.process(op)
		case <-w.done:
			for {
				select {
				case op := <-w.queue:
					w.process(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) process(op writeOp) {
	defer atomic.AddInt64(&w.pending, -1)

	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	if err := w.layer.Set(ctx, op.key, op.value, op.ttl); err != nil {
		atomic.AddInt64(&w.failedWrites, 1)
		w.logger.Debug("async write failed", zap.String("key", op.key), zap.Error(err))
	}
}

// Flush waits until every accepted write has been applied, or timeout.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for atomic.LoadInt64(&w.pending) > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// Close stops accepting new writes, drains the queue and waits for workers.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
	return nil
}

// Stats returns current statistics about the async writer.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    len(w.queue),
		DroppedWrites: atomic.LoadInt64(&w.droppedWrites),
		TotalWrites:   atomic.LoadInt64(&w.totalWrites),
		FailedWrites:  atomic.LoadInt64(&w.failedWrites),
	}
}
