package profile

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotKind distinguishes the two point-in-time copy stores.
type SnapshotKind string

const (
	// SnapshotVersion is a periodic or trigger-driven rollback point.
	SnapshotVersion SnapshotKind = "VERSION"
	// SnapshotDeath is the state captured at the moment of death.
	SnapshotDeath SnapshotKind = "DEATH"
)

// Snapshot is an immutable point-in-time copy of a profile plus provenance.
// Snapshots are created by an external collaborator and never mutated; they
// are deleted individually or pruned by age.
type Snapshot struct {
	ID         string
	Kind       SnapshotKind
	Key        Key
	Profile    *Profile
	Reason     string
	CapturedAt time.Time
	Metadata   string
}

// NewSnapshot captures the profile under a fresh opaque id.
func NewSnapshot(kind SnapshotKind, p *Profile, reason string) Snapshot {
	return Snapshot{
		ID:         uuid.NewString(),
		Kind:       kind,
		Key:        p.Key,
		Profile:    p.Clone(),
		Reason:     reason,
		CapturedAt: time.Now().UTC(),
	}
}

// TempAssignment temporarily reroutes an entity to another partition. One
// live assignment exists per entity id; writing a second one replaces the
// first. Assignments are removed on expiry sweep or explicit deletion.
type TempAssignment struct {
	EntityID  uuid.UUID
	Partition string
	Origin    string
	ExpiresAt time.Time
	Actor     string
	Reason    string
}

// Expired reports whether the assignment has lapsed at the given instant.
func (a TempAssignment) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}
