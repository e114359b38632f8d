package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testClock lets tests advance cache time without sleeping.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(opts Options) (*Cache[string, int], *testClock) {
	c := New[string, int](opts)
	clock := &testClock{now: time.Unix(1000, 0)}
	c.clock = clock.Now
	return c, clock
}

func TestGetPut(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 10})

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected hit with 1, got %d %v", v, ok)
	}

	c.Put("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("put must replace, got %d", v)
	}
}

func TestGetOrLoadCachesOnlySuccess(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 10})

	calls := 0
	failing := func() (int, bool) {
		calls++
		return 0, false
	}
	if _, ok := c.GetOrLoad("a", failing); ok {
		t.Fatal("failed load must report not ok")
	}
	if _, ok := c.GetOrLoad("a", failing); ok {
		t.Fatal("failed load must not be cached")
	}
	if calls != 2 {
		t.Fatalf("expected loader to run twice, ran %d times", calls)
	}

	v, ok := c.GetOrLoad("a", func() (int, bool) { return 42, true })
	if !ok || v != 42 {
		t.Fatalf("expected loaded 42, got %d %v", v, ok)
	}
	v, ok = c.GetOrLoad("a", func() (int, bool) {
		t.Fatal("loader must not run on a hit")
		return 0, false
	})
	if !ok || v != 42 {
		t.Fatalf("expected cached 42, got %d %v", v, ok)
	}
}

func TestPutIfAbsent(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 10})

	if !c.PutIfAbsent("a", 1) {
		t.Fatal("first put-if-absent must store")
	}
	if c.PutIfAbsent("a", 2) {
		t.Fatal("second put-if-absent must not store")
	}
	if v, _ := c.Get("a"); v != 1 {
		t.Fatalf("expected original value 1, got %d", v)
	}
}

func TestPutIfAbsentConcurrentSingleWinner(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 100})

	const callers = 32
	start := make(chan struct{})
	var (
		wg     sync.WaitGroup
		stored atomic.Int64
	)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if c.PutIfAbsent("a", i) {
				stored.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := stored.Load(); got != 1 {
		t.Fatalf("expected exactly one caller to store, got %d", got)
	}
}

func TestPutIfAbsentReplacesExpiredEntry(t *testing.T) {
	c, clock := newTestCache(Options{MaxSize: 10, ExpireAfterAccess: time.Minute})

	c.Put("a", 1)
	clock.Advance(2 * time.Minute)
	if !c.PutIfAbsent("a", 2) {
		t.Fatal("expired entry counts as absent")
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("expected replacement value 2, got %d", v)
	}
}

func TestExpireAfterAccess(t *testing.T) {
	c, clock := newTestCache(Options{MaxSize: 10, ExpireAfterAccess: time.Minute})

	c.Put("a", 1)
	clock.Advance(30 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired too early")
	}

	// The read above refreshed the access clock.
	clock.Advance(45 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("access must extend entry lifetime")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("idle entry must expire")
	}
	if c.Contains("a") {
		t.Fatal("expired entry must not be contained")
	}
}

func TestEvictionKeepsSizeBounded(t *testing.T) {
	c, clock := newTestCache(Options{MaxSize: 8})

	for i := 0; i < 50; i++ {
		clock.Advance(time.Millisecond)
		c.Put(fmt.Sprintf("key-%d", i), i)
	}
	if size := c.Size(); size > 8 {
		t.Fatalf("cache exceeded bound: %d entries", size)
	}
	if s := c.Stats(); s.Evictions == 0 {
		t.Fatal("expected evictions to be counted")
	}
}

func TestEvictionPrefersColdEntries(t *testing.T) {
	c, clock := newTestCache(Options{MaxSize: 4})

	c.Put("hot", 0)
	for i := 0; i < 40; i++ {
		clock.Advance(time.Millisecond)
		for j := 0; j < 3; j++ {
			c.Get("hot")
		}
		c.Put(fmt.Sprintf("cold-%d", i), i)
	}
	// Eviction is sampled and approximate; an entry re-read on every
	// cycle should still survive this much cold churn.
	if _, ok := c.Get("hot"); !ok {
		t.Fatal("frequently accessed entry evicted before cold ones")
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 10})

	c.Put("a", 1)
	v, ok := c.Invalidate("a")
	if !ok || v != 1 {
		t.Fatalf("expected removed value 1, got %d %v", v, ok)
	}
	if _, ok := c.Invalidate("a"); ok {
		t.Fatal("second invalidate must miss")
	}
}

func TestInvalidateWhere(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 10})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	removed := c.InvalidateWhere(func(_ string, v int) bool { return v >= 2 })
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if !c.Contains("a") || c.Contains("b") || c.Contains("c") {
		t.Fatal("wrong entries removed")
	}
}

func TestInvalidateAll(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 10})

	c.Put("a", 1)
	c.Put("b", 2)
	if removed := c.InvalidateAll(); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, %d entries remain", c.Size())
	}
}

func TestStatsCounters(t *testing.T) {
	c, _ := newTestCache(Options{MaxSize: 10})

	c.Get("missing")
	c.Put("a", 1)
	c.Get("a")
	c.GetOrLoad("b", func() (int, bool) { return 2, true })

	s := c.Stats()
	if s.Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", s.Hits)
	}
	if s.Misses != 2 {
		t.Fatalf("expected 2 misses, got %d", s.Misses)
	}
	if s.Loads != 1 {
		t.Fatalf("expected 1 load, got %d", s.Loads)
	}
	if s.Size != 2 || s.MaxSize != 10 {
		t.Fatalf("unexpected size stats: %+v", s)
	}
}

func TestDefaultMaxSize(t *testing.T) {
	c := New[string, int](Options{})
	if c.Stats().MaxSize != DefaultMaxSize {
		t.Fatalf("expected default max size %d, got %d", DefaultMaxSize, c.Stats().MaxSize)
	}
}

func TestKeysSnapshot(t *testing.T) {
	c, clock := newTestCache(Options{MaxSize: 10, ExpireAfterAccess: time.Minute})

	c.Put("live", 1)
	c.Put("stale", 2)
	clock.Advance(30 * time.Second)
	c.Get("live")
	clock.Advance(45 * time.Second)

	keys := c.Keys()
	if len(keys) != 1 || keys[0] != "live" {
		t.Fatalf("expected only the live key, got %v", keys)
	}
}
