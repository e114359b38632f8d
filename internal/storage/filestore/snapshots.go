package filestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// snapshotDoc is the on-disk snapshot container. The profile is embedded
// as its own text-tree document so both layers share one codec.
type snapshotDoc struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"`
	EntityID   string `yaml:"entity_id"`
	Partition  string `yaml:"partition"`
	Mode       string `yaml:"mode,omitempty"`
	Reason     string `yaml:"reason,omitempty"`
	CapturedAt int64  `yaml:"captured_at"`
	Metadata   string `yaml:"metadata,omitempty"`
	Profile    string `yaml:"profile"`
}

func (d *Driver) snapshotPath(id string) string {
	return filepath.Join(d.root, snapshotDir, id+profileExt)
}

// SaveSnapshot writes one snapshot container.
func (d *Driver) SaveSnapshot(ctx context.Context, snap profile.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snap.ID) == "" {
		return fmt.Errorf("snapshot id is required")
	}
	tree, err := d.codec.EncodeTree(snap.Profile)
	if err != nil {
		return err
	}
	doc := snapshotDoc{
		ID:         snap.ID,
		Kind:       string(snap.Kind),
		EntityID:   snap.Key.EntityID.String(),
		Partition:  snap.Key.Partition,
		Mode:       string(snap.Key.Mode),
		Reason:     snap.Reason,
		CapturedAt: snap.CapturedAt.UTC().UnixMilli(),
		Metadata:   snap.Metadata,
		Profile:    string(tree),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := atomic.WriteFile(d.snapshotPath(snap.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// LoadSnapshot reads one snapshot container by id.
func (d *Driver) LoadSnapshot(ctx context.Context, id string) (profile.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return profile.Snapshot{}, err
	}
	data, err := os.ReadFile(d.snapshotPath(id))
	if os.IsNotExist(err) {
		return profile.Snapshot{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("read snapshot file: %w", err)
	}
	return d.decodeSnapshot(data)
}

func (d *Driver) decodeSnapshot(data []byte) (profile.Snapshot, error) {
	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return profile.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	entityID, err := uuid.Parse(doc.EntityID)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("parse snapshot entity id: %w", err)
	}
	p, err := d.codec.DecodeTree([]byte(doc.Profile))
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("decode snapshot profile: %w", err)
	}
	return profile.Snapshot{
		ID:   doc.ID,
		Kind: profile.SnapshotKind(doc.Kind),
		Key: profile.Key{
			EntityID:  entityID,
			Partition: doc.Partition,
			Mode:      profile.ParseGameMode(doc.Mode),
		},
		Profile:    p,
		Reason:     doc.Reason,
		CapturedAt: time.UnixMilli(doc.CapturedAt).UTC(),
		Metadata:   doc.Metadata,
	}, nil
}

// ListSnapshots scans the snapshot directory for the entity's snapshots
// of one kind, newest first. Unreadable containers are skipped.
func (d *Driver) ListSnapshots(ctx context.Context, kind profile.SnapshotKind, entityID uuid.UUID) ([]profile.Snapshot, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, snapshotDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var out []profile.Snapshot
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), profileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.root, snapshotDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read snapshot file: %w", err)
		}
		snap, err := d.decodeSnapshot(data)
		if err != nil {
			d.log.Warnf("skipping unreadable snapshot %s: %v", entry.Name(), err)
			continue
		}
		if snap.Kind != kind || snap.Key.EntityID != entityID {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	return out, nil
}

// DeleteSnapshot removes one snapshot container.
func (d *Driver) DeleteSnapshot(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := os.Remove(d.snapshotPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove snapshot file: %w", err)
	}
	return true, nil
}

// PruneSnapshots deletes snapshots of one kind captured before the
// cutoff.
func (d *Driver) PruneSnapshots(ctx context.Context, kind profile.SnapshotKind, before time.Time) (int, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, snapshotDir))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read snapshot dir: %w", err)
	}
	pruned := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), profileExt) {
			continue
		}
		path := filepath.Join(d.root, snapshotDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return pruned, fmt.Errorf("read snapshot file: %w", err)
		}
		snap, err := d.decodeSnapshot(data)
		if err != nil {
			d.log.Warnf("skipping unreadable snapshot %s: %v", entry.Name(), err)
			continue
		}
		if snap.Kind != kind || !snap.CapturedAt.Before(before) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return pruned, fmt.Errorf("remove snapshot file: %w", err)
		}
		pruned++
	}
	return pruned, nil
}
