package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// SaveSnapshot inserts one immutable snapshot row. The profile is stored
// as its text-tree form; snapshots are read back whole, never queried by
// field.
func (d *Driver) SaveSnapshot(ctx context.Context, snap profile.Snapshot) error {
	if strings.TrimSpace(snap.ID) == "" {
		return fmt.Errorf("snapshot id is required")
	}
	tree, err := d.codec.EncodeTree(snap.Profile)
	if err != nil {
		return err
	}
	_, err = d.sqlDB.ExecContext(ctx, `
		INSERT INTO snapshots (id, kind, entity_id, partition_name, mode, reason, captured_at, metadata, profile_tree)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Kind), snap.Key.EntityID.String(), snap.Key.Partition,
		string(snap.Key.Mode), snap.Reason, snap.CapturedAt.UTC().UnixMilli(),
		snap.Metadata, string(tree),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `id, kind, entity_id, partition_name, mode, reason, captured_at, metadata, profile_tree`

func (d *Driver) scanSnapshot(row interface{ Scan(...any) error }) (profile.Snapshot, error) {
	var (
		snap       profile.Snapshot
		kind       string
		entityRaw  string
		partition  string
		mode       string
		capturedAt int64
		tree       string
	)
	err := row.Scan(&snap.ID, &kind, &entityRaw, &partition, &mode, &snap.Reason, &capturedAt, &snap.Metadata, &tree)
	if err != nil {
		return profile.Snapshot{}, err
	}
	entityID, err := uuid.Parse(entityRaw)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("parse snapshot entity id: %w", err)
	}
	p, err := d.codec.DecodeTree([]byte(tree))
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("decode snapshot profile: %w", err)
	}
	snap.Kind = profile.SnapshotKind(kind)
	snap.Key = profile.Key{EntityID: entityID, Partition: partition, Mode: profile.ParseGameMode(mode)}
	snap.Profile = p
	snap.CapturedAt = time.UnixMilli(capturedAt).UTC()
	return snap, nil
}

// LoadSnapshot reads one snapshot by id.
func (d *Driver) LoadSnapshot(ctx context.Context, id string) (profile.Snapshot, error) {
	row := d.sqlDB.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id,
	)
	snap, err := d.scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Snapshot{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns the entity's snapshots of one kind, newest first.
func (d *Driver) ListSnapshots(ctx context.Context, kind profile.SnapshotKind, entityID uuid.UUID) ([]profile.Snapshot, error) {
	rows, err := d.sqlDB.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE entity_id = ? AND kind = ? ORDER BY captured_at DESC`,
		entityID.String(), string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []profile.Snapshot
	for rows.Next() {
		snap, err := d.scanSnapshot(rows)
		if err != nil {
			d.log.Warnf("skipping unreadable snapshot row: %v", err)
			continue
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// DeleteSnapshot removes one snapshot by id.
func (d *Driver) DeleteSnapshot(ctx context.Context, id string) (bool, error) {
	res, err := d.sqlDB.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// PruneSnapshots removes snapshots of one kind captured before the
// cutoff.
func (d *Driver) PruneSnapshots(ctx context.Context, kind profile.SnapshotKind, before time.Time) (int, error) {
	res, err := d.sqlDB.ExecContext(ctx,
		`DELETE FROM snapshots WHERE kind = ? AND captured_at < ?`,
		string(kind), before.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
