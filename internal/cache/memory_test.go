package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestMemoryCache_BasicOperations(t *testing.T) {
	cache := NewMemoryCache(1024)

	if err := cache.Put("key", []byte("value")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := cache.Get("key")
	if !ok || string(got) != "value" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if cache.Size() != 5 {
		t.Errorf("Size = %d, want 5", cache.Size())
	}

	cache.Delete("key")
	if cache.Contains("key") {
		t.Error("key still cached after Delete")
	}
	if cache.Size() != 0 {
		t.Errorf("Size = %d after Delete", cache.Size())
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	cache := NewMemoryCache(100)
	for i := 0; i < 5; i++ {
		if err := cache.Put(fmt.Sprintf("key-%d", i), make([]byte, 20)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	cache.Get("key-0")
	cache.Get("key-1")

	if err := cache.Put("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	for _, key := range []string{"key-0", "key-1", "key-new"} {
		if !cache.Contains(key) {
			t.Errorf("%s was evicted", key)
		}
	}
	for _, key := range []string{"key-2", "key-3"} {
		if cache.Contains(key) {
			t.Errorf("%s should have been evicted", key)
		}
	}
	if cache.Size() > 100 {
		t.Errorf("Size %d exceeds capacity", cache.Size())
	}
	if s := cache.Stats(); s.Evictions != 2 {
		t.Errorf("Evictions = %d, want 2", s.Evictions)
	}
}

func TestMemoryCache_ReplaceKeepsSizeAccurate(t *testing.T) {
	cache := NewMemoryCache(100)
	cache.Put("key", make([]byte, 40))
	cache.Put("key", make([]byte, 10))
	if cache.Size() != 10 {
		t.Errorf("Size = %d, want 10", cache.Size())
	}
}

func TestMemoryCache_ItemTooLarge(t *testing.T) {
	cache := NewMemoryCache(10)
	if err := cache.Put("big", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("err = %v, want ErrItemTooLarge", err)
	}
}

func TestMemoryCache_Prune(t *testing.T) {
	cache := NewMemoryCache(100)
	cache.Put("old", []byte("x"))
	time.Sleep(20 * time.Millisecond)
	cache.Put("new", []byte("y"))

	if n := cache.Prune(10 * time.Millisecond); n != 1 {
		t.Errorf("Prune removed %d entries, want 1", n)
	}
	if cache.Contains("old") || !cache.Contains("new") {
		t.Error("Prune removed the wrong entry")
	}
}

func TestStats_HitRate(t *testing.T) {
	cache := NewMemoryCache(100)
	if r := cache.Stats().HitRate(); r != 0 {
		t.Errorf("HitRate before lookups = %v", r)
	}
	cache.Put("a", []byte("1"))
	cache.Get("a")
	cache.Get("b")
	if r := cache.Stats().HitRate(); r != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", r)
	}
}
