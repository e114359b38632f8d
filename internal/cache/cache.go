package cache

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultMaxSize bounds a cache whose options leave MaxSize unset.
	DefaultMaxSize = 1000

	// evictionSampleSize is how many entries one eviction pass inspects.
	evictionSampleSize = 8
)

// Options configures a Cache.
type Options struct {
	// MaxSize is the entry bound. Zero or negative selects DefaultMaxSize.
	MaxSize int
	// ExpireAfterAccess drops entries not read or written for this long.
	// Zero disables expiry. Expiry is measured from last access, not last
	// write.
	ExpireAfterAccess time.Duration
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int
	MaxSize   int
	Hits      uint64
	Misses    uint64
	Loads     uint64
	Evictions uint64
}

type entry[V any] struct {
	value      V
	lastAccess atomic.Int64
	freq       atomic.Uint64
}

// Cache is a bounded concurrent key-value cache.
type Cache[K comparable, V any] struct {
	opts    Options
	entries *xsync.MapOf[K, *entry[V]]

	hits      atomic.Uint64
	misses    atomic.Uint64
	loads     atomic.Uint64
	evictions atomic.Uint64

	clock func() time.Time
}

// New builds a cache with the given options.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	return &Cache[K, V]{
		opts:    opts,
		entries: xsync.NewMapOf[K, *entry[V]](),
		clock:   time.Now,
	}
}

// Get returns the cached value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := c.entries.Load(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	now := c.clock()
	if c.expired(e, now) {
		c.entries.Delete(key)
		c.misses.Add(1)
		return zero, false
	}
	c.touch(e, now)
	c.hits.Add(1)
	return e.value, true
}

// GetOrLoad returns the cached value, or runs loader on a miss. The loaded
// value is cached only when loader reports ok. Concurrent calls for the
// same missing key are not serialized; each may run its loader and the
// last one to store wins.
func (c *Cache[K, V]) GetOrLoad(key K, loader func() (V, bool)) (V, bool) {
	if v, ok := c.Get(key); ok {
		return v, true
	}
	v, ok := loader()
	if !ok {
		var zero V
		return zero, false
	}
	c.loads.Add(1)
	c.Put(key, v)
	return v, true
}

// Put stores the value, replacing any existing entry for key.
func (c *Cache[K, V]) Put(key K, value V) {
	e := &entry[V]{value: value}
	c.touch(e, c.clock())
	c.entries.Store(key, e)
	c.evictOverCapacity()
}

// PutIfAbsent stores the value only when no live entry exists for key.
// It reports whether the value was stored. The check and the store are a
// single atomic step, so concurrent callers for the same key see exactly
// one true result; an expired entry counts as absent and is replaced.
func (c *Cache[K, V]) PutIfAbsent(key K, value V) bool {
	now := c.clock()
	stored := false
	c.entries.Compute(key, func(existing *entry[V], loaded bool) (*entry[V], bool) {
		if loaded && !c.expired(existing, now) {
			return existing, false
		}
		e := &entry[V]{value: value}
		c.touch(e, now)
		stored = true
		return e, false
	})
	if stored {
		c.evictOverCapacity()
	}
	return stored
}

// Invalidate removes the entry for key and returns the removed value.
func (c *Cache[K, V]) Invalidate(key K) (V, bool) {
	var zero V
	e, ok := c.entries.LoadAndDelete(key)
	if !ok {
		return zero, false
	}
	if c.expired(e, c.clock()) {
		return zero, false
	}
	return e.value, true
}

// InvalidateWhere removes every entry the predicate matches and returns
// the number removed.
func (c *Cache[K, V]) InvalidateWhere(match func(K, V) bool) int {
	removed := 0
	c.entries.Range(func(key K, e *entry[V]) bool {
		if match(key, e.value) {
			if _, ok := c.entries.LoadAndDelete(key); ok {
				removed++
			}
		}
		return true
	})
	return removed
}

// InvalidateAll empties the cache and returns the number of removed
// entries.
func (c *Cache[K, V]) InvalidateAll() int {
	removed := 0
	c.entries.Range(func(key K, _ *entry[V]) bool {
		if _, ok := c.entries.LoadAndDelete(key); ok {
			removed++
		}
		return true
	})
	return removed
}

// Contains reports whether a live entry exists without touching its
// recency.
func (c *Cache[K, V]) Contains(key K) bool {
	e, ok := c.entries.Load(key)
	return ok && !c.expired(e, c.clock())
}

// Keys returns a snapshot of the live keys.
func (c *Cache[K, V]) Keys() []K {
	now := c.clock()
	keys := make([]K, 0, c.entries.Size())
	c.entries.Range(func(key K, e *entry[V]) bool {
		if !c.expired(e, now) {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

// Size returns the current entry count, including entries that have
// expired but not yet been swept.
func (c *Cache[K, V]) Size() int {
	return c.entries.Size()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Size:      c.entries.Size(),
		MaxSize:   c.opts.MaxSize,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Loads:     c.loads.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *Cache[K, V]) touch(e *entry[V], now time.Time) {
	e.lastAccess.Store(now.UnixNano())
	e.freq.Add(1)
}

func (c *Cache[K, V]) expired(e *entry[V], now time.Time) bool {
	if c.opts.ExpireAfterAccess <= 0 {
		return false
	}
	return now.UnixNano()-e.lastAccess.Load() > int64(c.opts.ExpireAfterAccess)
}

// evictOverCapacity brings the cache back under its size bound. Each pass
// samples a handful of entries, drops any expired ones, and otherwise
// evicts the sampled entry with the lowest frequency, oldest access last.
// Sampled survivors have their frequency halved so stale popularity
// decays.
func (c *Cache[K, V]) evictOverCapacity() {
	now := c.clock()
	for c.entries.Size() > c.opts.MaxSize {
		var (
			victimKey   K
			victim      *entry[V]
			sampled     int
			evictedDead bool
		)
		c.entries.Range(func(key K, e *entry[V]) bool {
			if c.expired(e, now) {
				if _, ok := c.entries.LoadAndDelete(key); ok {
					c.evictions.Add(1)
					evictedDead = true
				}
				return false
			}
			if victim == nil || worse(e, victim) {
				victimKey = key
				victim = e
			} else {
				e.freq.Store(e.freq.Load() / 2)
			}
			sampled++
			return sampled < evictionSampleSize
		})
		if evictedDead {
			continue
		}
		if victim == nil {
			return
		}
		if _, ok := c.entries.LoadAndDelete(victimKey); ok {
			c.evictions.Add(1)
		}
	}
}

// worse reports whether a is a better eviction victim than b.
func worse[V any](a, b *entry[V]) bool {
	af, bf := a.freq.Load(), b.freq.Load()
	if af != bf {
		return af < bf
	}
	return a.lastAccess.Load() < b.lastAccess.Load()
}
