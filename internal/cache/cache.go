package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Memory is a typed, concurrency-safe in-process cache backed by go-cache.
type Memory[T any] struct {
	items *gocache.Cache
	ttl   time.Duration
}

// NewMemory creates a cache whose entries live for ttl.
// Pass NoExpiration to keep entries until deleted.
func NewMemory[T any](ttl time.Duration) *Memory[T] {
	cleanup := 10 * time.Minute
	if ttl == NoExpiration {
		cleanup = 0
	}
	return &Memory[T]{
		items: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

// NoExpiration keeps entries until they are explicitly deleted.
const NoExpiration = gocache.NoExpiration

func (m *Memory[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := m.items.Get(key)
	if !ok {
		return zero, false
	}
	data, ok := v.(T)
	if !ok {
		return zero, false
	}
	return data, true
}

func (m *Memory[T]) Set(key string, data T) {
	m.items.Set(key, data, gocache.DefaultExpiration)
}

func (m *Memory[T]) Delete(key string) {
	m.items.Delete(key)
}

func (m *Memory[T]) Size() int {
	return m.items.ItemCount()
}

// Flush removes every entry.
func (m *Memory[T]) Flush() {
	m.items.Flush()
}
