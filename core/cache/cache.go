// Package cache provides LRU caching for conversion results.
//
// Conversions are pure, so a result can be reused whenever the same input
// comes back. Entries are keyed by the BLAKE3 digest of the input rather
// than the input itself to keep the key size fixed.
package cache

import (
	"container/list"
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/enriched/core/document"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	Get(key K) (V, bool)

	// Put stores a value in the cache.
	Put(key K, value V)

	// Remove removes a value from the cache.
	Remove(key K)

	// Clear removes all entries from the cache.
	Clear()

	// Len returns the number of entries in the cache.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{MaxSize: 256}
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// lruCache is a thread-safe LRU cache implementation.
type lruCache[K comparable, V any] struct {
	mu      sync.Mutex
	config  Config
	entries map[K]*list.Element
	order   *list.List
	stats   Stats

	// now is replaced in tests.
	now func() time.Time
}

// NewLRUCache creates a new LRU cache with the given configuration.
func NewLRUCache[K comparable, V any](config Config) Cache[K, V] {
	return newLRU[K, V](config)
}

func newLRU[K comparable, V any](config Config) *lruCache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	return &lruCache[K, V]{
		config:  config,
		entries: make(map[K]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(el)
		c.stats.Misses++
		return zero, false
	}

	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Put stores a value, evicting the least recently used entry when full.
func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = c.expiry()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: c.expiry()})
	c.entries[key] = el

	if c.config.MaxSize > 0 && c.order.Len() > c.config.MaxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
		}
	}
}

// Remove removes a value from the cache.
func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes all entries from the cache.
func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of entries in the cache.
func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cache statistics.
func (c *lruCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.order.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

func (c *lruCache[K, V]) expiry() time.Time {
	if c.config.TTL <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.config.TTL)
}

func (c *lruCache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

func (c *lruCache[K, V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry[K, V]).key)
}

// Digest returns the hex BLAKE3 digest used as the key for s.
func Digest(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Conversions caches the results of both conversion directions.
// Cached documents are shared between callers and must not be modified.
type Conversions struct {
	models  Cache[string, *document.Document]
	markups Cache[string, string]
}

// NewConversions creates a conversion cache; each direction holds up to
// config.MaxSize entries.
func NewConversions(config Config) *Conversions {
	return &Conversions{
		models:  NewLRUCache[string, *document.Document](config),
		markups: NewLRUCache[string, string](config),
	}
}

// NewDefaultConversions creates a conversion cache with default configuration.
func NewDefaultConversions() *Conversions {
	return NewConversions(DefaultConfig())
}

// Model returns the document previously built from markup.
func (c *Conversions) Model(markup string) (*document.Document, bool) {
	return c.models.Get(Digest(markup))
}

// PutModel records the document built from markup.
func (c *Conversions) PutModel(markup string, doc *document.Document) {
	c.models.Put(Digest(markup), doc)
}

// Markup returns the markup previously serialized from a document with the
// given content hash.
func (c *Conversions) Markup(hash string) (string, bool) {
	return c.markups.Get(hash)
}

// PutMarkup records the markup serialized from a document with the given
// content hash.
func (c *Conversions) PutMarkup(hash, markup string) {
	c.markups.Put(hash, markup)
}

// Clear empties both directions.
func (c *Conversions) Clear() {
	c.models.Clear()
	c.markups.Clear()
}

// Stats returns the statistics of both directions.
func (c *Conversions) Stats() (models, markups Stats) {
	return c.models.Stats(), c.markups.Stats()
}
