// Package mock provides a scriptable cache.Layer for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bank-analytics/pkg/cache"
)

// Layer is a cache.Layer whose behavior is injected per method.
// Unset hooks fall back to an in-memory map, so a zero Layer behaves like a
// working cache.
type Layer struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error

	name string

	mu   sync.Mutex
	data map[string][]byte

	getCalls    int64
	setCalls    int64
	deleteCalls int64
	closeCalls  int64
}

var _ cache.Layer = (*Layer)(nil)

// NewLayer returns a working in-memory mock named name.
func NewLayer(name string) *Layer {
	return &Layer{name: name, data: make(map[string][]byte)}
}

// Get implements cache.Layer.
func (m *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	return v, nil
}

// Set implements cache.Layer.
func (m *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	atomic.AddInt64(&m.setCalls, 1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

// Delete implements cache.Layer.
func (m *Layer) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Name implements cache.Layer.
func (m *Layer) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

// Close implements cache.Layer.
func (m *Layer) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Has reports whether key is stored in the fallback map.
func (m *Layer) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// GetCalls returns the number of Get calls (thread-safe).
func (m *Layer) GetCalls() int { return int(atomic.LoadInt64(&m.getCalls)) }

// SetCalls returns the number of Set calls (thread-safe).
func (m *Layer) SetCalls() int { return int(atomic.LoadInt64(&m.setCalls)) }

// DeleteCalls returns the number of Delete calls (thread-safe).
func (m *Layer) DeleteCalls() int { return int(atomic.LoadInt64(&m.deleteCalls)) }

// CloseCalls returns the number of Close calls (thread-safe).
func (m *Layer) CloseCalls() int { return int(atomic.LoadInt64(&m.closeCalls)) }
