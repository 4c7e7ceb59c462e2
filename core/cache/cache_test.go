package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/spans"
)

func TestLRUCache_BasicOperations(t *testing.T) {
	cache := NewLRUCache[string, int](Config{MaxSize: 3})

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if v, ok := cache.Get(key); !ok || v != want {
			t.Errorf("Get(%s) = %d, %v; want %d, true", key, v, ok, want)
		}
	}
	if _, ok := cache.Get("d"); ok {
		t.Error("Get(d) should return false")
	}
	if n := cache.Len(); n != 3 {
		t.Errorf("Len() = %d; want 3", n)
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewLRUCache[string, int](Config{MaxSize: 2})

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("c", 3)

	if _, ok := cache.Get("a"); ok {
		t.Error("Get(a) should return false after eviction")
	}

	cache.Get("b")
	cache.Put("d", 4)

	if _, ok := cache.Get("c"); ok {
		t.Error("Get(c) should return false after eviction")
	}
	if v, ok := cache.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v; want 2, true", v, ok)
	}
	if v, ok := cache.Get("d"); !ok || v != 4 {
		t.Errorf("Get(d) = %d, %v; want 4, true", v, ok)
	}
	if s := cache.Stats(); s.Evictions != 2 {
		t.Errorf("Evictions = %d; want 2", s.Evictions)
	}
}

func TestLRUCache_Update(t *testing.T) {
	cache := NewLRUCache[string, int](Config{MaxSize: 2})

	cache.Put("a", 1)
	cache.Put("a", 10)

	if v, ok := cache.Get("a"); !ok || v != 10 {
		t.Errorf("Get(a) = %d, %v; want 10, true", v, ok)
	}
	if n := cache.Len(); n != 1 {
		t.Errorf("Len() = %d; want 1", n)
	}
}

func TestLRUCache_RemoveAndClear(t *testing.T) {
	cache := NewLRUCache[string, int](Config{})

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Remove("a")
	cache.Remove("missing")

	if _, ok := cache.Get("a"); ok {
		t.Error("Get(a) should return false after Remove")
	}
	if n := cache.Len(); n != 1 {
		t.Errorf("Len() = %d; want 1", n)
	}

	cache.Clear()
	if n := cache.Len(); n != 0 {
		t.Errorf("Len() after Clear = %d; want 0", n)
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := newLRU[string, int](Config{TTL: time.Minute})
	cache.now = func() time.Time { return now }

	cache.Put("a", 1)
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("Get(a) should succeed before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Error("Get(a) should fail after expiry")
	}
	if n := cache.Len(); n != 0 {
		t.Errorf("expired entry not removed, Len() = %d", n)
	}

	cache.Put("b", 2)
	now = now.Add(30 * time.Second)
	cache.Put("b", 3)
	now = now.Add(45 * time.Second)
	if v, ok := cache.Get("b"); !ok || v != 3 {
		t.Errorf("Get(b) = %d, %v; want 3, true after refresh", v, ok)
	}
}

func TestLRUCache_Stats(t *testing.T) {
	cache := NewLRUCache[string, int](Config{MaxSize: 5})

	cache.Put("a", 1)
	cache.Get("a")
	cache.Get("a")
	cache.Get("b")

	s := cache.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Size != 1 || s.MaxSize != 5 {
		t.Errorf("Stats() = %+v; want 2 hits, 1 miss, size 1, max 5", s)
	}
}

func TestLRUCache_NegativeMaxSize(t *testing.T) {
	cache := NewLRUCache[int, int](Config{MaxSize: -1})
	for i := 0; i < 100; i++ {
		cache.Put(i, i)
	}
	if n := cache.Len(); n != 100 {
		t.Errorf("Len() = %d; want 100", n)
	}
}

func TestLRUCache_Concurrency(t *testing.T) {
	cache := NewLRUCache[string, int](Config{MaxSize: 50})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%75)
				cache.Put(key, i)
				cache.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if n := cache.Len(); n > 50 {
		t.Errorf("Len() = %d; exceeds MaxSize 50", n)
	}
}

func TestDigest(t *testing.T) {
	a, b := Digest("<p>a</p>"), Digest("<p>b</p>")
	if len(a) != 64 {
		t.Errorf("len(Digest) = %d; want 64", len(a))
	}
	if a == b {
		t.Error("different inputs produced the same digest")
	}
	if a != Digest("<p>a</p>") {
		t.Error("Digest is not deterministic")
	}
}

func TestConversions(t *testing.T) {
	c := NewDefaultConversions()
	doc := document.New("x", spans.New(spans.KindBold, 0, 1))

	if _, ok := c.Model("<p><b>x</b></p>"); ok {
		t.Fatal("Model hit on empty cache")
	}
	c.PutModel("<p><b>x</b></p>", doc)
	if got, ok := c.Model("<p><b>x</b></p>"); !ok || got != doc {
		t.Errorf("Model() = %v, %v; want cached document", got, ok)
	}

	hash := doc.Hash()
	c.PutMarkup(hash, "<html><p><b>x</b></p>\n</html>")
	if got, ok := c.Markup(hash); !ok || got != "<html><p><b>x</b></p>\n</html>" {
		t.Errorf("Markup() = %q, %v", got, ok)
	}

	models, markups := c.Stats()
	if models.Hits != 1 || models.Misses != 1 || markups.Hits != 1 {
		t.Errorf("Stats() = %+v, %+v", models, markups)
	}

	c.Clear()
	if _, ok := c.Markup(hash); ok {
		t.Error("Markup hit after Clear")
	}
}

func BenchmarkLRUCache_PutGet(b *testing.B) {
	cache := NewLRUCache[int, int](Config{MaxSize: 1000})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Put(i%2000, i)
		cache.Get(i % 1000)
	}
}
