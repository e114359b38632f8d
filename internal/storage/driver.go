package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// SizeUnknown is returned by SizeBytes when a backend cannot measure its
// storage footprint.
const SizeUnknown int64 = -1

// Driver is the backend-specific half of the storage contract. Drivers
// implement only the happy path: they return plain errors and never worry
// about lifecycle state. Backend supplies the guard and error translation
// around every call.
//
// Missing records are reported as profile.ErrNotFound, not as bare nils.
type Driver interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Open establishes the backing store (file handles, database
	// connections, schema). Called exactly once by Backend.Initialize.
	Open(ctx context.Context) error

	// Close releases the backing store. Called exactly once during
	// shutdown.
	Close(ctx context.Context) error

	SaveProfile(ctx context.Context, p *profile.Profile) error
	LoadProfile(ctx context.Context, key profile.Key) (*profile.Profile, error)
	LoadAll(ctx context.Context, entityID uuid.UUID) ([]*profile.Profile, error)
	DeleteProfile(ctx context.Context, key profile.Key) (bool, error)
	DeleteAll(ctx context.Context, entityID uuid.UUID) (int, error)
	Exists(ctx context.Context, key profile.Key) (bool, error)
	ListEntities(ctx context.Context) ([]uuid.UUID, error)
	ListPartitions(ctx context.Context, entityID uuid.UUID) ([]string, error)
	Count(ctx context.Context) (int64, error)
	SizeBytes(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error

	SaveSnapshot(ctx context.Context, snap profile.Snapshot) error
	LoadSnapshot(ctx context.Context, id string) (profile.Snapshot, error)
	ListSnapshots(ctx context.Context, kind profile.SnapshotKind, entityID uuid.UUID) ([]profile.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) (bool, error)
	PruneSnapshots(ctx context.Context, kind profile.SnapshotKind, before time.Time) (int, error)

	PutTempAssignment(ctx context.Context, a profile.TempAssignment) error
	GetTempAssignment(ctx context.Context, entityID uuid.UUID) (profile.TempAssignment, error)
	DeleteTempAssignment(ctx context.Context, entityID uuid.UUID) (bool, error)
	SweepTempAssignments(ctx context.Context, now time.Time) (int, error)
}

// BatchDriver is implemented by drivers that replace the default
// sequential batch save with a native bulk path. The MySQL driver runs the
// whole batch in one transaction and reports zero saved rows on rollback;
// callers that need partial success should issue single saves instead.
type BatchDriver interface {
	SaveBatch(ctx context.Context, profiles []*profile.Profile) (int, error)
}
