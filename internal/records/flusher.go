package records

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/PCX-SH/xinventories/internal/storage"
)

// Flusher default settings.
const (
	DefaultFlushInterval = 30 * time.Second
	DefaultFlushWorkers  = 4
)

// Flusher periodically writes dirty cached profiles to a backend
// (write-behind). Saves run on a bounded worker pool so a large dirty set
// cannot monopolize storage I/O.
type Flusher struct {
	cache    *Cache
	backend  *storage.Backend
	interval time.Duration
	workers  int
	log      *logger.L

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewFlusher builds a flusher. Zero interval and workers select the
// defaults.
func NewFlusher(c *Cache, backend *storage.Backend, interval time.Duration, workers int, log *logger.L) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if workers <= 0 {
		workers = DefaultFlushWorkers
	}
	return &Flusher{
		cache:    c,
		backend:  backend,
		interval: interval,
		workers:  workers,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (f *Flusher) Start() {
	f.started.Store(true)
	go f.run()
}

// Stop halts the loop after one final flush and waits for it to finish.
// Stopping a never-started flusher is a no-op.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
	if !f.started.Load() {
		return
	}
	<-f.done
}

func (f *Flusher) run() {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.FlushOnce(context.Background())
		case <-f.stop:
			f.FlushOnce(context.Background())
			return
		}
	}
}

// FlushOnce saves every currently dirty profile and returns how many were
// written. Entries whose save fails stay dirty for the next cycle, as
// does any entry re-written while its save was in flight; the dirty flag
// is only cleared when the write generation is unchanged.
func (f *Flusher) FlushOnce(ctx context.Context) int {
	dirty := f.cache.dirtySnapshots()
	if len(dirty) == 0 {
		return 0
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		saved int
	)
	sem := make(chan struct{}, f.workers)
	for _, snap := range dirty {
		snap := snap
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if f.backend.Save(ctx, snap.profile) {
				f.cache.markCleanIfUnchanged(snap.profile.Key, snap.gen)
				mu.Lock()
				saved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if saved < len(dirty) {
		f.log.Warnf("flushed %d of %d dirty profiles", saved, len(dirty))
	} else {
		f.log.Debugf("flushed %d dirty profiles", saved)
	}
	return saved
}
