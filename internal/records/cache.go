package records

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/PCX-SH/xinventories/internal/cache"
	"github.com/PCX-SH/xinventories/internal/platform/metrics"
	"github.com/PCX-SH/xinventories/internal/profile"
)

// Options configures the record cache.
type Options struct {
	// Enabled false turns the cache into a pure bypass.
	Enabled bool
	// MaxSize bounds the entry count; zero selects the engine default.
	MaxSize int
	// ExpireAfterAccess drops entries idle for this long; zero disables.
	ExpireAfterAccess time.Duration
}

// dirtyMark flags a key for the flusher. gen is the write generation
// the flag was set at; a flush only clears the flag when the generation
// is still current, so a write landing mid-flush stays dirty.
type dirtyMark struct {
	key profile.Key
	gen uint64
}

// Cache holds profiles keyed by entity id, partition, and optional mode.
type Cache struct {
	enabled bool
	engine  *cache.Cache[string, *profile.Profile]
	dirty   *xsync.MapOf[string, dirtyMark]
	gen     atomic.Uint64
	log     *logger.L
}

// New builds a record cache and registers its gauges.
func New(opts Options, log *logger.L) *Cache {
	c := &Cache{
		enabled: opts.Enabled,
		engine: cache.New[string, *profile.Profile](cache.Options{
			MaxSize:           opts.MaxSize,
			ExpireAfterAccess: opts.ExpireAfterAccess,
		}),
		dirty: xsync.NewMapOf[string, dirtyMark](),
		log:   log,
	}
	metrics.GetOrCreateGauge("record_cache_size", func() float64 {
		return float64(c.engine.Size())
	})
	metrics.GetOrCreateGauge("record_cache_dirty", func() float64 {
		return float64(c.dirty.Size())
	})
	return c
}

// Enabled reports whether the cache stores anything at all.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get returns the cached profile for key, or nil.
func (c *Cache) Get(key profile.Key) *profile.Profile {
	if !c.enabled {
		return nil
	}
	p, ok := c.engine.Get(key.String())
	if !ok {
		return nil
	}
	return p
}

// GetOrLoad returns the cached profile or runs loader. With the cache
// disabled the loader runs on every call and the result is never stored.
// A nil loader result is returned but not cached.
func (c *Cache) GetOrLoad(key profile.Key, loader func() *profile.Profile) *profile.Profile {
	if !c.enabled {
		return loader()
	}
	p, _ := c.engine.GetOrLoad(key.String(), func() (*profile.Profile, bool) {
		loaded := loader()
		return loaded, loaded != nil
	})
	return p
}

// Put stores the profile, optionally flagging it dirty for the flusher.
func (c *Cache) Put(p *profile.Profile, markDirty bool) {
	if !c.enabled || p == nil {
		return
	}
	key := p.Key.String()
	c.engine.Put(key, p)
	if markDirty {
		c.dirty.Store(key, dirtyMark{key: p.Key, gen: c.gen.Add(1)})
	}
}

// Contains reports whether the key is cached. Disabled caches always
// report false, even straight after a Put; callers cannot distinguish
// "disabled" from "absent" and that is long-standing observed behavior.
func (c *Cache) Contains(key profile.Key) bool {
	if !c.enabled {
		return false
	}
	return c.engine.Contains(key.String())
}

// GetAllForEntity returns every cached profile for the entity, keyed by
// cache-key string. The scan is linear over the key set; there is no
// per-entity index.
func (c *Cache) GetAllForEntity(entityID uuid.UUID) map[string]*profile.Profile {
	if !c.enabled {
		return nil
	}
	prefix := entityID.String() + "_"
	out := make(map[string]*profile.Profile)
	for _, key := range c.engine.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if p, ok := c.engine.Get(key); ok {
			out[key] = p
		}
	}
	return out
}

// Invalidate removes one entry and clears its dirty flag, returning the
// removed profile.
func (c *Cache) Invalidate(key profile.Key) *profile.Profile {
	if !c.enabled {
		return nil
	}
	k := key.String()
	c.dirty.Delete(k)
	p, ok := c.engine.Invalidate(k)
	if !ok {
		return nil
	}
	return p
}

// InvalidateForEntity removes every entry for the entity and returns the
// count. Dirty flags for the removed keys are cleared.
func (c *Cache) InvalidateForEntity(entityID uuid.UUID) int {
	if !c.enabled {
		return 0
	}
	return c.invalidateWhere(func(key profile.Key) bool {
		return key.EntityID == entityID
	})
}

// InvalidateForPartition removes every entry in the partition, across all
// entities and modes, and returns the count.
func (c *Cache) InvalidateForPartition(partition string) int {
	if !c.enabled {
		return 0
	}
	return c.invalidateWhere(func(key profile.Key) bool {
		return key.Partition == partition
	})
}

func (c *Cache) invalidateWhere(match func(profile.Key) bool) int {
	removed := c.engine.InvalidateWhere(func(_ string, p *profile.Profile) bool {
		return match(p.Key)
	})
	c.dirty.Range(func(k string, mark dirtyMark) bool {
		if match(mark.key) {
			c.dirty.Delete(k)
		}
		return true
	})
	return removed
}

// Clear empties the cache and the dirty table, returning the number of
// removed entries.
func (c *Cache) Clear() int {
	if !c.enabled {
		return 0
	}
	c.dirty.Range(func(k string, _ dirtyMark) bool {
		c.dirty.Delete(k)
		return true
	})
	return c.engine.InvalidateAll()
}

// DirtyEntries returns the cached profiles awaiting a flush. A dirty key
// whose entry was evicted for capacity cannot be flushed any more; it is
// logged as a data-loss warning and keeps its flag so the condition stays
// visible.
func (c *Cache) DirtyEntries() []*profile.Profile {
	if !c.enabled {
		return nil
	}
	var out []*profile.Profile
	for _, snap := range c.dirtySnapshots() {
		out = append(out, snap.profile)
	}
	return out
}

// dirtySnapshot pairs a dirty profile with the generation its flag was
// set at, for the flusher's conditional clean.
type dirtySnapshot struct {
	profile *profile.Profile
	gen     uint64
}

func (c *Cache) dirtySnapshots() []dirtySnapshot {
	var out []dirtySnapshot
	c.dirty.Range(func(k string, mark dirtyMark) bool {
		if p, ok := c.engine.Get(k); ok {
			out = append(out, dirtySnapshot{profile: p, gen: mark.gen})
		} else if c.log != nil {
			c.log.Warnf("dirty entry %s no longer cached; unflushed changes lost", k)
		}
		return true
	})
	return out
}

// markCleanIfUnchanged clears the key's dirty flag only when its
// generation still matches gen. It reports whether the flag was
// cleared; a false return means a newer write holds the flag.
func (c *Cache) markCleanIfUnchanged(key profile.Key, gen uint64) bool {
	cleared := false
	c.dirty.Compute(key.String(), func(mark dirtyMark, loaded bool) (dirtyMark, bool) {
		if loaded && mark.gen == gen {
			cleared = true
			return dirtyMark{}, true
		}
		return mark, !loaded
	})
	return cleared
}

// DirtyCount returns the number of keys flagged dirty.
func (c *Cache) DirtyCount() int {
	if !c.enabled {
		return 0
	}
	return c.dirty.Size()
}

// MarkClean clears the dirty flags for the given keys without touching
// cache contents. Call it after a successful flush.
func (c *Cache) MarkClean(keys ...profile.Key) {
	if !c.enabled {
		return
	}
	for _, key := range keys {
		c.dirty.Delete(key.String())
	}
}

// Stats returns the engine counters.
func (c *Cache) Stats() cache.Stats {
	return c.engine.Stats()
}

// String describes the cache for status output.
func (c *Cache) String() string {
	if !c.enabled {
		return "record cache disabled"
	}
	s := c.engine.Stats()
	return fmt.Sprintf("record cache %d/%d entries, %d dirty, %d hits, %d misses",
		s.Size, s.MaxSize, c.dirty.Size(), s.Hits, s.Misses)
}
