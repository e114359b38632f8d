package filestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/platform/logging/fixtures"
	"github.com/PCX-SH/xinventories/internal/profile"
)

func TestMain(m *testing.M) {
	fixtures.SetupTestLogger()
	code := m.Run()
	fixtures.TeardownTestLogger()
	os.Exit(code)
}

func openTempStore(t *testing.T) *Driver {
	t.Helper()
	d := New(t.TempDir(), logger.New(fixtures.LogCategory))
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func storedProfile(t *testing.T, partition string, mode profile.GameMode) *profile.Profile {
	t.Helper()
	p := profile.New(profile.NewModeKey(uuid.New(), partition, mode))
	p.DisplayName = "Alex"
	p.Inventory[0] = profile.ItemStack{TypeID: "minecraft:stone", Count: 64, Data: []byte{1, 2, 3}}
	p.Effects = []profile.StatusEffect{{Type: "minecraft:speed", Duration: 100, Amplifier: 1}}
	p.Version = 3
	return p
}

func TestSaveLoadRoundTrip(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	p := storedProfile(t, "world", profile.ModeSurvival)

	if err := d.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	got, err := d.LoadProfile(ctx, p.Key)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if diff := cmp.Diff(p, got, cmp.AllowUnexported(profile.StringSet{}), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingProfile(t *testing.T) {
	d := openTempStore(t)
	_, err := d.LoadProfile(context.Background(), profile.NewKey(uuid.New(), "world"))
	if err != profile.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveIsFullReplacement(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()

	p := storedProfile(t, "world", profile.ModeNone)
	p.Statistics = &profile.StatsBlock{JSON: `{"deaths":4}`}
	if err := d.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	// Second save without the block: the stored record must lose it, not
	// keep a merged copy.
	replacement := profile.New(p.Key)
	replacement.DisplayName = "replaced"
	if err := d.SaveProfile(ctx, replacement); err != nil {
		t.Fatalf("save replacement: %v", err)
	}

	got, err := d.LoadProfile(ctx, p.Key)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if got.Statistics != nil {
		t.Fatal("replaced profile must not retain the old statistics block")
	}
	if got.DisplayName != "replaced" {
		t.Fatalf("expected replacement content, got %q", got.DisplayName)
	}
}

func TestModeKeysAreSeparateFiles(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	id := uuid.New()

	plain := profile.New(profile.NewKey(id, "world"))
	creative := profile.New(profile.NewModeKey(id, "world", profile.ModeCreative))
	plain.DisplayName = "plain"
	creative.DisplayName = "creative"

	if err := d.SaveProfile(ctx, plain); err != nil {
		t.Fatalf("save plain: %v", err)
	}
	if err := d.SaveProfile(ctx, creative); err != nil {
		t.Fatalf("save creative: %v", err)
	}

	got, err := d.LoadProfile(ctx, plain.Key)
	if err != nil {
		t.Fatalf("load plain: %v", err)
	}
	if got.DisplayName != "plain" {
		t.Fatal("mode-less key must not read the mode file")
	}
}

func TestUnderscorePartitionDoesNotCollideWithModeKey(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	id := uuid.New()

	// "world_survival" as a partition vs "world" narrowed by SURVIVAL.
	flat := profile.New(profile.NewKey(id, "world_survival"))
	moded := profile.New(profile.NewModeKey(id, "world", profile.ModeSurvival))
	flat.DisplayName = "flat"
	moded.DisplayName = "moded"

	if err := d.SaveProfile(ctx, flat); err != nil {
		t.Fatalf("save flat: %v", err)
	}
	if err := d.SaveProfile(ctx, moded); err != nil {
		t.Fatalf("save moded: %v", err)
	}

	got, err := d.LoadProfile(ctx, flat.Key)
	if err != nil {
		t.Fatalf("load flat: %v", err)
	}
	if got.DisplayName != "flat" {
		t.Fatalf("flat key read %q, the moded key's record", got.DisplayName)
	}
	got, err = d.LoadProfile(ctx, moded.Key)
	if err != nil {
		t.Fatalf("load moded: %v", err)
	}
	if got.DisplayName != "moded" {
		t.Fatalf("moded key read %q", got.DisplayName)
	}

	all, err := d.LoadAll(ctx, id)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(all))
	}
}

func TestPartitionWithPathSeparatorRejected(t *testing.T) {
	d := openTempStore(t)
	p := profile.New(profile.NewKey(uuid.New(), "../escape"))
	if err := d.SaveProfile(context.Background(), p); err == nil {
		t.Fatal("expected error for path separator in partition")
	}
}

func TestCorruptContainerIsNotFound(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	p := storedProfile(t, "world", profile.ModeNone)
	if err := d.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}

	path, err := d.profilePath(p.Key)
	if err != nil {
		t.Fatalf("profile path: %v", err)
	}
	if err := os.WriteFile(path, []byte("\t{ not yaml"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	if _, err := d.LoadProfile(ctx, p.Key); err != profile.ErrNotFound {
		t.Fatalf("expected ErrNotFound for corrupt container, got %v", err)
	}
}

func TestDeleteProfile(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	p := storedProfile(t, "world", profile.ModeNone)

	if deleted, _ := d.DeleteProfile(ctx, p.Key); deleted {
		t.Fatal("delete of missing profile must report false")
	}
	if err := d.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if deleted, err := d.DeleteProfile(ctx, p.Key); err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got %v %v", deleted, err)
	}
	if _, err := d.LoadProfile(ctx, p.Key); err != profile.ErrNotFound {
		t.Fatal("profile still present after delete")
	}
}

func TestLoadAllAndDeleteAll(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	id := uuid.New()

	for _, partition := range []string{"world", "nether", "end"} {
		p := profile.New(profile.NewKey(id, partition))
		if err := d.SaveProfile(ctx, p); err != nil {
			t.Fatalf("save %s: %v", partition, err)
		}
	}
	other := profile.New(profile.NewKey(uuid.New(), "world"))
	if err := d.SaveProfile(ctx, other); err != nil {
		t.Fatalf("save other: %v", err)
	}

	all, err := d.LoadAll(ctx, id)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(all))
	}

	count, err := d.DeleteAll(ctx, id)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 deleted, got %d", count)
	}
	if _, err := d.LoadProfile(ctx, other.Key); err != nil {
		t.Fatal("delete all must not touch other entities")
	}
}

func TestListEntitiesAndPartitions(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	id := uuid.New()

	for _, partition := range []string{"world", "world_nether"} {
		if err := d.SaveProfile(ctx, profile.New(profile.NewKey(id, partition))); err != nil {
			t.Fatalf("save %s: %v", partition, err)
		}
	}

	entities, err := d.ListEntities(ctx)
	if err != nil {
		t.Fatalf("list entities: %v", err)
	}
	if len(entities) != 1 || entities[0] != id {
		t.Fatalf("expected [%s], got %v", id, entities)
	}

	// Partition names may contain underscores; listing reads the
	// containers rather than trusting file names.
	partitions, err := d.ListPartitions(ctx, id)
	if err != nil {
		t.Fatalf("list partitions: %v", err)
	}
	want := []string{"world", "world_nether"}
	if diff := cmp.Diff(want, partitions); diff != "" {
		t.Fatalf("partition mismatch (-want +got):\n%s", diff)
	}
}

func TestCountAndSize(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := d.SaveProfile(ctx, profile.New(profile.NewKey(uuid.New(), "world"))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	snap := profile.NewSnapshot(profile.SnapshotVersion, profile.New(profile.NewKey(uuid.New(), "world")), "test")
	if err := d.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	count, err := d.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 profiles (snapshots excluded), got %d", count)
	}

	size, err := d.SizeBytes(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size <= 0 {
		t.Fatalf("expected positive size, got %d", size)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	p := storedProfile(t, "world", profile.ModeNone)

	older := profile.NewSnapshot(profile.SnapshotDeath, p, "lava")
	older.CapturedAt = time.Now().UTC().Add(-time.Hour)
	newer := profile.NewSnapshot(profile.SnapshotDeath, p, "void")
	versionSnap := profile.NewSnapshot(profile.SnapshotVersion, p, "periodic")

	for _, snap := range []profile.Snapshot{older, newer, versionSnap} {
		if err := d.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("save snapshot: %v", err)
		}
	}

	got, err := d.LoadSnapshot(ctx, older.ID)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if got.Reason != "lava" || got.Kind != profile.SnapshotDeath {
		t.Fatalf("snapshot fields lost: %+v", got)
	}
	if got.Profile.Inventory[0].TypeID != "minecraft:stone" {
		t.Fatal("snapshot profile content lost")
	}

	deaths, err := d.ListSnapshots(ctx, profile.SnapshotDeath, p.Key.EntityID)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(deaths) != 2 {
		t.Fatalf("expected 2 death snapshots, got %d", len(deaths))
	}
	if !deaths[0].CapturedAt.After(deaths[1].CapturedAt) {
		t.Fatal("snapshots must list newest first")
	}

	pruned, err := d.PruneSnapshots(ctx, profile.SnapshotDeath, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("prune snapshots: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}
	if _, err := d.LoadSnapshot(ctx, older.ID); err != profile.ErrNotFound {
		t.Fatal("old snapshot survived the prune")
	}

	if deleted, err := d.DeleteSnapshot(ctx, newer.ID); err != nil || !deleted {
		t.Fatalf("delete snapshot: %v %v", deleted, err)
	}
}

func TestTempAssignmentLifecycle(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	id := uuid.New()

	a := profile.TempAssignment{
		EntityID:  id,
		Partition: "event",
		Origin:    "world",
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond),
		Actor:     "admin",
		Reason:    "build contest",
	}
	if err := d.PutTempAssignment(ctx, a); err != nil {
		t.Fatalf("put assignment: %v", err)
	}

	got, err := d.GetTempAssignment(ctx, id)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if diff := cmp.Diff(a, got); diff != "" {
		t.Fatalf("assignment mismatch (-want +got):\n%s", diff)
	}

	// Upsert replaces the single live row.
	a.Partition = "event2"
	if err := d.PutTempAssignment(ctx, a); err != nil {
		t.Fatalf("update assignment: %v", err)
	}
	got, err = d.GetTempAssignment(ctx, id)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if got.Partition != "event2" {
		t.Fatal("upsert did not replace the row")
	}

	if deleted, err := d.DeleteTempAssignment(ctx, id); err != nil || !deleted {
		t.Fatalf("delete assignment: %v %v", deleted, err)
	}
	if _, err := d.GetTempAssignment(ctx, id); err != profile.ErrNotFound {
		t.Fatal("assignment still present after delete")
	}
}

func TestSweepTempAssignments(t *testing.T) {
	d := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := profile.TempAssignment{EntityID: uuid.New(), Partition: "a", Origin: "o", ExpiresAt: now.Add(-time.Minute)}
	live := profile.TempAssignment{EntityID: uuid.New(), Partition: "b", Origin: "o", ExpiresAt: now.Add(time.Hour)}
	forever := profile.TempAssignment{EntityID: uuid.New(), Partition: "c", Origin: "o"}

	for _, a := range []profile.TempAssignment{expired, live, forever} {
		if err := d.PutTempAssignment(ctx, a); err != nil {
			t.Fatalf("put assignment: %v", err)
		}
	}

	removed, err := d.SweepTempAssignments(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept, got %d", removed)
	}
	if _, err := d.GetTempAssignment(ctx, live.EntityID); err != nil {
		t.Fatal("live assignment swept")
	}
	if _, err := d.GetTempAssignment(ctx, forever.EntityID); err != nil {
		t.Fatal("zero-expiry assignment must never be swept")
	}
}
