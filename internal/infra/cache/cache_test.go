package cache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("prompt:demo-plumber", "You are the website assistant")
	val, ok := c.Get("prompt:demo-plumber")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "You are the website assistant" {
		t.Errorf("unexpected value %q", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_GetOrCreate_SingleValueUnderContention(t *testing.T) {
	c := cache.New[*int](5 * time.Minute)
	defer c.Close()

	var created atomic.Int32
	var wg sync.WaitGroup
	results := make([]*int, 20)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrCreate("10.0.0.1", func() *int {
				created.Add(1)
				v := i
				return &v
			})
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("expected create to run once, ran %d times", created.Load())
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatal("expected every caller to receive the same value")
		}
	}
}

func TestCache_GetOrCreate_ReportsHit(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, hit := c.GetOrCreate("k", func() string { return "v" })
	if hit {
		t.Error("first call should be a miss")
	}
	v, hit := c.GetOrCreate("k", func() string { return "other" })
	if !hit || v != "v" {
		t.Errorf("expected cached hit 'v', got %q (hit=%v)", v, hit)
	}
}
