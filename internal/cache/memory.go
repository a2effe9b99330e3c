// Package cache provides the process-local tiers shared by the part loader
// and the result cache: a bounded in-memory LRU and a disk directory with
// atomic writes and age-based sweeping.
package cache

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrInvalidBounds = errors.New("cache bounds must be positive")

// MemoryStats is a point-in-time snapshot of one memory tier.
type MemoryStats struct {
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Memory is an LRU cache bounded by both entry count and total byte size,
// with a TTL that refreshes on access. Values are sized by the caller's
// sizeOf function so the cache can hold raw bytes or decoded rasters alike.
type Memory[K comparable, V any] struct {
	mu       sync.Mutex
	lru      *lru.Cache[K, *memoryEntry[V]]
	sizeOf   func(V) int64
	ttl      time.Duration
	maxBytes int64
	bytes    int64
	hits     uint64
	misses   uint64
}

type memoryEntry[V any] struct {
	value     V
	size      int64
	expiresAt time.Time
}

// NewMemory creates a memory tier. maxEntries and maxBytes must both be
// positive; a zero ttl disables expiry.
func NewMemory[K comparable, V any](
	maxEntries int, maxBytes int64, ttl time.Duration, sizeOf func(V) int64,
) (*Memory[K, V], error) {
	if maxEntries <= 0 || maxBytes <= 0 {
		return nil, ErrInvalidBounds
	}

	m := &Memory[K, V]{
		sizeOf:   sizeOf,
		ttl:      ttl,
		maxBytes: maxBytes,
	}

	// The eviction callback keeps the byte account in sync for every removal
	// path: LRU eviction, explicit remove and purge.
	cache, err := lru.NewWithEvict(maxEntries, func(_ K, e *memoryEntry[V]) {
		m.bytes -= e.size
	})
	if err != nil {
		return nil, err
	}

	m.lru = cache

	return m, nil
}

// Get returns the cached value and refreshes its TTL. Expired entries are
// dropped and reported as misses.
func (m *Memory[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V

	entry, ok := m.lru.Get(key)
	if !ok {
		m.misses++
		return zero, false
	}

	if m.ttl > 0 {
		now := time.Now()
		if now.After(entry.expiresAt) {
			m.lru.Remove(key)
			m.misses++

			return zero, false
		}

		entry.expiresAt = now.Add(m.ttl)
	}

	m.hits++

	return entry.value, true
}

// Set stores a value, evicting least-recently-used entries until both bounds
// hold. Values larger than the byte budget are not cached.
func (m *Memory[K, V]) Set(key K, value V) {
	size := m.sizeOf(value)
	if size > m.maxBytes {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry[V]{value: value, size: size}
	if m.ttl > 0 {
		entry.expiresAt = time.Now().Add(m.ttl)
	}

	// Add on an existing key does not fire the eviction callback, so replace
	// through Remove to keep the byte account correct.
	if _, ok := m.lru.Peek(key); ok {
		m.lru.Remove(key)
	}

	m.lru.Add(key, entry)
	m.bytes += size

	for m.bytes > m.maxBytes && m.lru.Len() > 1 {
		m.lru.RemoveOldest()
	}
}

// Remove drops a single entry.
func (m *Memory[K, V]) Remove(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Remove(key)
}

// Purge empties the cache and returns how many entries were dropped.
func (m *Memory[K, V]) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.lru.Len()
	m.lru.Purge()

	return n
}

// Stats returns a snapshot of the tier.
func (m *Memory[K, V]) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoryStats{
		Entries: m.lru.Len(),
		Bytes:   m.bytes,
		Hits:    m.hits,
		Misses:  m.misses,
	}
}

// SizeOfBytes sizes a []byte value for NewMemory.
func SizeOfBytes(b []byte) int64 {
	return int64(len(b))
}
