package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/bitmark-inc/logger"
	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/platform/metrics"
	"github.com/PCX-SH/xinventories/internal/profile"
)

// State is the backend lifecycle state.
type State uint32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
)

// String renders the state for log lines.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

// Backend wraps a Driver with the shared half of the storage contract:
// lifecycle state, Ready guards, and error-to-empty-result translation.
// All methods are safe for concurrent use.
type Backend struct {
	driver Driver
	log    *logger.L

	mu    sync.Mutex
	state State

	errCounter *vmetrics.Counter
}

// NewBackend wraps the driver. The backend starts Uninitialized; every
// guarded operation returns its empty result until Initialize succeeds.
func NewBackend(driver Driver, log *logger.L) *Backend {
	return &Backend{
		driver: driver,
		log:    log,
		errCounter: metrics.GetOrCreateCounter("storage_errors_total", "backend", driver.Name()),
	}
}

// Name identifies the wrapped driver.
func (b *Backend) Name() string {
	return b.driver.Name()
}

// State returns the current lifecycle state.
func (b *Backend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready reports whether guarded operations will execute.
func (b *Backend) Ready() bool {
	return b.State() == StateReady
}

// Initialize opens the backing store. Calling Initialize on a Ready
// backend logs and returns nil. A failed open propagates: this is the one
// error in the contract that is not swallowed, since nothing downstream
// can be trusted after it.
func (b *Backend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case StateReady:
		b.mu.Unlock()
		b.log.Infof("%s: already initialized, ignoring", b.driver.Name())
		return nil
	case StateInitializing, StateShuttingDown:
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("%s: initialize while %s", b.driver.Name(), state)
	}
	b.state = StateInitializing
	b.mu.Unlock()

	if err := b.driver.Open(ctx); err != nil {
		b.mu.Lock()
		b.state = StateUninitialized
		b.mu.Unlock()
		return fmt.Errorf("initialize %s backend: %w", b.driver.Name(), err)
	}

	b.mu.Lock()
	b.state = StateReady
	b.mu.Unlock()
	b.log.Infof("%s: initialized", b.driver.Name())
	return nil
}

// Shutdown closes the backing store and returns the backend to
// Uninitialized. Close errors are logged, not returned.
func (b *Backend) Shutdown(ctx context.Context) {
	b.mu.Lock()
	if b.state != StateReady {
		state := b.state
		b.mu.Unlock()
		b.log.Warnf("%s: shutdown while %s, ignoring", b.driver.Name(), state)
		return
	}
	b.state = StateShuttingDown
	b.mu.Unlock()

	if err := b.driver.Close(ctx); err != nil {
		b.errCounter.Inc()
		b.log.Errorf("%s: close: %v", b.driver.Name(), err)
	}

	b.mu.Lock()
	b.state = StateUninitialized
	b.mu.Unlock()
	b.log.Infof("%s: shut down", b.driver.Name())
}

// guard runs op when the backend is Ready, converting errors and panics
// into a logged failure. It reports whether op completed successfully.
func (b *Backend) guard(what string, op func() error) bool {
	if !b.Ready() {
		b.log.Debugf("%s: %s skipped, backend not ready", b.driver.Name(), what)
		return false
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = op()
	}()
	if err != nil {
		b.errCounter.Inc()
		b.log.Errorf("%s: %s: %v", b.driver.Name(), what, err)
		return false
	}
	return true
}

// Save persists one profile with full-replacement semantics. It reports
// whether the save completed.
func (b *Backend) Save(ctx context.Context, p *profile.Profile) bool {
	if p == nil {
		return false
	}
	return b.guard("save "+p.Key.String(), func() error {
		if err := p.Key.Validate(); err != nil {
			return err
		}
		return b.driver.SaveProfile(ctx, p)
	})
}

// Load returns the profile for key, or nil when it is missing or the load
// failed. A missing profile is not logged as an error.
func (b *Backend) Load(ctx context.Context, key profile.Key) *profile.Profile {
	var p *profile.Profile
	if !b.Ready() {
		return nil
	}
	ok := b.guard("load "+key.String(), func() error {
		loaded, err := b.driver.LoadProfile(ctx, key)
		if errors.Is(err, profile.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		p = loaded
		return nil
	})
	if !ok {
		return nil
	}
	return p
}

// LoadAll returns every stored profile for the entity across partitions
// and modes. Failures yield an empty slice.
func (b *Backend) LoadAll(ctx context.Context, entityID uuid.UUID) []*profile.Profile {
	var out []*profile.Profile
	b.guard("load all "+entityID.String(), func() error {
		loaded, err := b.driver.LoadAll(ctx, entityID)
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	return out
}

// Delete removes the profile for key and reports whether a record was
// removed.
func (b *Backend) Delete(ctx context.Context, key profile.Key) bool {
	deleted := false
	b.guard("delete "+key.String(), func() error {
		var err error
		deleted, err = b.driver.DeleteProfile(ctx, key)
		return err
	})
	return deleted
}

// DeleteAll removes every profile for the entity and returns the number
// removed.
func (b *Backend) DeleteAll(ctx context.Context, entityID uuid.UUID) int {
	count := 0
	b.guard("delete all "+entityID.String(), func() error {
		var err error
		count, err = b.driver.DeleteAll(ctx, entityID)
		return err
	})
	return count
}

// Exists reports whether a profile is stored for key.
func (b *Backend) Exists(ctx context.Context, key profile.Key) bool {
	exists := false
	b.guard("exists "+key.String(), func() error {
		var err error
		exists, err = b.driver.Exists(ctx, key)
		return err
	})
	return exists
}

// ListEntities returns every entity id with at least one stored profile.
func (b *Backend) ListEntities(ctx context.Context) []uuid.UUID {
	var out []uuid.UUID
	b.guard("list entities", func() error {
		ids, err := b.driver.ListEntities(ctx)
		if err != nil {
			return err
		}
		out = ids
		return nil
	})
	return out
}

// ListPartitions returns the partitions holding profiles for the entity.
func (b *Backend) ListPartitions(ctx context.Context, entityID uuid.UUID) []string {
	var out []string
	b.guard("list partitions "+entityID.String(), func() error {
		parts, err := b.driver.ListPartitions(ctx, entityID)
		if err != nil {
			return err
		}
		out = parts
		return nil
	})
	return out
}

// SaveBatch persists the profiles and returns how many were saved. When
// the driver implements BatchDriver the native path runs with its own
// semantics (the MySQL driver is all-or-nothing). Otherwise each profile
// is saved sequentially and individual failures only reduce the count.
func (b *Backend) SaveBatch(ctx context.Context, profiles []*profile.Profile) int {
	if len(profiles) == 0 {
		return 0
	}
	if batcher, ok := b.driver.(BatchDriver); ok {
		count := 0
		b.guard(fmt.Sprintf("batch save %d profiles", len(profiles)), func() error {
			var err error
			count, err = batcher.SaveBatch(ctx, profiles)
			return err
		})
		return count
	}

	count := 0
	for _, p := range profiles {
		if b.Save(ctx, p) {
			count++
		}
	}
	if count < len(profiles) {
		b.log.Warnf("%s: batch save stored %d of %d profiles", b.driver.Name(), count, len(profiles))
	}
	return count
}

// Count returns the number of stored profiles, or zero on failure.
func (b *Backend) Count(ctx context.Context) int64 {
	var count int64
	b.guard("count", func() error {
		var err error
		count, err = b.driver.Count(ctx)
		return err
	})
	return count
}

// SizeBytes returns the approximate storage footprint, or SizeUnknown when
// the backend cannot measure it or the call failed.
func (b *Backend) SizeBytes(ctx context.Context) int64 {
	size := SizeUnknown
	b.guard("size", func() error {
		var err error
		size, err = b.driver.SizeBytes(ctx)
		return err
	})
	return size
}

// Healthy reports whether the backing store answers a ping.
func (b *Backend) Healthy(ctx context.Context) bool {
	return b.guard("ping", func() error {
		return b.driver.Ping(ctx)
	})
}

// SaveSnapshot stores a point-in-time profile copy.
func (b *Backend) SaveSnapshot(ctx context.Context, snap profile.Snapshot) bool {
	return b.guard("save snapshot "+snap.ID, func() error {
		return b.driver.SaveSnapshot(ctx, snap)
	})
}

// LoadSnapshot returns the snapshot with the given id.
func (b *Backend) LoadSnapshot(ctx context.Context, id string) (profile.Snapshot, bool) {
	var snap profile.Snapshot
	found := false
	b.guard("load snapshot "+id, func() error {
		loaded, err := b.driver.LoadSnapshot(ctx, id)
		if errors.Is(err, profile.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		snap = loaded
		found = true
		return nil
	})
	return snap, found
}

// ListSnapshots returns the entity's snapshots of one kind, newest first.
func (b *Backend) ListSnapshots(ctx context.Context, kind profile.SnapshotKind, entityID uuid.UUID) []profile.Snapshot {
	var out []profile.Snapshot
	b.guard("list snapshots "+entityID.String(), func() error {
		snaps, err := b.driver.ListSnapshots(ctx, kind, entityID)
		if err != nil {
			return err
		}
		out = snaps
		return nil
	})
	return out
}

// DeleteSnapshot removes one snapshot by id.
func (b *Backend) DeleteSnapshot(ctx context.Context, id string) bool {
	deleted := false
	b.guard("delete snapshot "+id, func() error {
		var err error
		deleted, err = b.driver.DeleteSnapshot(ctx, id)
		return err
	})
	return deleted
}

// PruneSnapshots deletes snapshots of one kind captured before the cutoff
// and returns the number removed.
func (b *Backend) PruneSnapshots(ctx context.Context, kind profile.SnapshotKind, before time.Time) int {
	count := 0
	b.guard("prune snapshots", func() error {
		var err error
		count, err = b.driver.PruneSnapshots(ctx, kind, before)
		return err
	})
	return count
}

// PutTempAssignment upserts the entity's temporary partition assignment.
func (b *Backend) PutTempAssignment(ctx context.Context, a profile.TempAssignment) bool {
	return b.guard("put temp assignment "+a.EntityID.String(), func() error {
		return b.driver.PutTempAssignment(ctx, a)
	})
}

// GetTempAssignment returns the entity's live assignment, if any.
func (b *Backend) GetTempAssignment(ctx context.Context, entityID uuid.UUID) (profile.TempAssignment, bool) {
	var a profile.TempAssignment
	found := false
	b.guard("get temp assignment "+entityID.String(), func() error {
		loaded, err := b.driver.GetTempAssignment(ctx, entityID)
		if errors.Is(err, profile.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		a = loaded
		found = true
		return nil
	})
	return a, found
}

// DeleteTempAssignment removes the entity's assignment.
func (b *Backend) DeleteTempAssignment(ctx context.Context, entityID uuid.UUID) bool {
	deleted := false
	b.guard("delete temp assignment "+entityID.String(), func() error {
		var err error
		deleted, err = b.driver.DeleteTempAssignment(ctx, entityID)
		return err
	})
	return deleted
}

// SweepTempAssignments removes assignments that expired at or before now
// and returns the number removed.
func (b *Backend) SweepTempAssignments(ctx context.Context, now time.Time) int {
	count := 0
	b.guard("sweep temp assignments", func() error {
		var err error
		count, err = b.driver.SweepTempAssignments(ctx, now)
		return err
	})
	return count
}
