package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bank-analytics/pkg/cache"
)

func newTestCache(t *testing.T, maxSize int) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(MemoryCacheConfig{
		LayerConfig:     cache.LayerConfig{Name: "test", DefaultTTL: time.Hour},
		MaxSize:         maxSize,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !cache.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}

	if err := c.Set(ctx, "report:abc:quartiles", []byte(`[1,2]`), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "report:abc:quartiles")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[1,2]` {
		t.Errorf("Get() = %q, want %q", got, `[1,2]`)
	}
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	value := []byte("abc")
	if err := c.Set(ctx, "k", value, 0); err != nil {
		t.Fatal(err)
	}
	value[0] = 'x'

	got, _ := c.Get(ctx, "k")
	got[1] = 'y'

	again, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated: %q", again)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, err := c.Get(ctx, "short"); !cache.IsNotFound(err) {
		t.Errorf("Get(expired) error = %v, want ErrKeyNotFound", err)
	}
}

func TestMemoryCache_MaxTTL(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{
		LayerConfig: cache.LayerConfig{Name: "capped", DefaultTTL: time.Hour, MaxTTL: 20 * time.Millisecond},
	})
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); !cache.IsNotFound(err) {
		t.Errorf("ttl was not capped, Get() error = %v", err)
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := newTestCache(t, 2)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	time.Sleep(time.Millisecond)

	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "c", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); !cache.IsNotFound(err) {
		t.Errorf("b should have been evicted, got err = %v", err)
	}
	for _, k := range []string{"a", "c"} {
		if _, err := c.Get(ctx, k); err != nil {
			t.Errorf("Get(%s) error = %v", k, err)
		}
	}
	if s := c.Stats(); s.Size != 2 || s.MaxSize != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newTestCache(t, 2)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	_ = c.Set(ctx, "a", []byte("3"), 0)

	if s := c.Stats(); s.Size != 2 {
		t.Fatalf("Size = %d, want 2", s.Size)
	}
	if _, err := c.Get(ctx, "b"); err != nil {
		t.Errorf("b evicted by an overwrite: %v", err)
	}
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
	if _, err := c.Get(ctx, "a"); !cache.IsNotFound(err) {
		t.Error("a still present after Delete")
	}

	_ = c.Clear(ctx)
	if c.Stats().Size != 0 {
		t.Error("Clear left entries behind")
	}
}

func TestMemoryCache_InvalidKey(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	for _, key := range []string{"", " padded", "line\nbreak"} {
		if err := c.Set(ctx, key, []byte("v"), 0); !errorsIsInvalidKey(err) {
			t.Errorf("Set(%q) error = %v, want ErrInvalidKey", key, err)
		}
		if _, err := c.Get(ctx, key); !errorsIsInvalidKey(err) {
			t.Errorf("Get(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func errorsIsInvalidKey(err error) bool {
	return cache.ClassifyError(err) == "invalid_key"
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := newTestCache(t, 50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", (g*100+i)%75)
				_ = c.Set(ctx, key, []byte("v"), 0)
				_, _ = c.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()

	if s := c.Stats(); s.Size > 50 {
		t.Errorf("Size = %d exceeds MaxSize 50", s.Size)
	}
}
