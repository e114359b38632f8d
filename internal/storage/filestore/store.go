package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bitmark-inc/logger"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/PCX-SH/xinventories/internal/profile"
	"github.com/PCX-SH/xinventories/internal/profile/codec"
	"github.com/PCX-SH/xinventories/internal/storage"
)

const (
	profileExt    = ".yml"
	snapshotDir   = ".snapshots"
	assignmentIdx = ".assignments.yml"
)

// Driver stores profiles as one YAML file per key under a root directory.
type Driver struct {
	root  string
	codec *codec.Codec
	log   *logger.L

	// assignMu serializes read-modify-write cycles on the assignment index.
	assignMu sync.Mutex
}

// New builds a file driver rooted at dir.
func New(dir string, log *logger.L) *Driver {
	return &Driver{
		root:  filepath.Clean(dir),
		codec: codec.New(log),
		log:   log,
	}
}

// Name implements storage.Driver.
func (d *Driver) Name() string { return "file" }

// Open creates the root directory tree.
func (d *Driver) Open(ctx context.Context) error {
	if strings.TrimSpace(d.root) == "" || d.root == "." {
		return fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(filepath.Join(d.root, snapshotDir), 0o755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}
	return nil
}

// Close implements storage.Driver. The file driver holds no handles.
func (d *Driver) Close(ctx context.Context) error { return nil }

// Ping verifies the root directory is still reachable.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := os.Stat(d.root); err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	return nil
}

func (d *Driver) entityDir(entityID uuid.UUID) string {
	return filepath.Join(d.root, entityID.String())
}

// nameEscaper keeps the underscore before the mode suffix unambiguous:
// partition and mode text never contain a raw underscore in a file name,
// so "world_survival" the partition and ("world", SURVIVAL) the moded key
// land in different files.
var nameEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

func (d *Driver) profilePath(key profile.Key) (string, error) {
	if strings.ContainsAny(key.Partition, `/\`) {
		return "", fmt.Errorf("partition %q contains a path separator", key.Partition)
	}
	name := nameEscaper.Replace(key.Partition)
	if key.Mode != profile.ModeNone {
		name += "_" + nameEscaper.Replace(strings.ToLower(string(key.Mode)))
	}
	return filepath.Join(d.entityDir(key.EntityID), name+profileExt), nil
}

// SaveProfile writes the full container, replacing any previous one.
func (d *Driver) SaveProfile(ctx context.Context, p *profile.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.profilePath(p.Key)
	if err != nil {
		return err
	}
	data, err := d.codec.EncodeTree(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create entity dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write profile file: %w", err)
	}
	return nil
}

// LoadProfile reads one container. A missing file and an unparseable
// container both report profile.ErrNotFound; the latter is logged.
func (d *Driver) LoadProfile(ctx context.Context, key profile.Key) (*profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.profilePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}
	p, err := d.codec.DecodeTree(data)
	if err != nil {
		d.log.Warnf("unreadable profile container %s: %v", path, err)
		return nil, profile.ErrNotFound
	}
	return p, nil
}

// LoadAll reads every container under the entity directory.
func (d *Driver) LoadAll(ctx context.Context, entityID uuid.UUID) ([]*profile.Profile, error) {
	entries, err := os.ReadDir(d.entityDir(entityID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read entity dir: %w", err)
	}
	var out []*profile.Profile
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), profileExt) {
			continue
		}
		path := filepath.Join(d.entityDir(entityID), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile file: %w", err)
		}
		p, err := d.codec.DecodeTree(data)
		if err != nil {
			d.log.Warnf("skipping unreadable profile container %s: %v", path, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// DeleteProfile removes one container.
func (d *Driver) DeleteProfile(ctx context.Context, key profile.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := d.profilePath(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove profile file: %w", err)
	}
	return true, nil
}

// DeleteAll removes the entity directory and returns how many containers
// it held.
func (d *Driver) DeleteAll(ctx context.Context, entityID uuid.UUID) (int, error) {
	dir := d.entityDir(entityID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read entity dir: %w", err)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), profileExt) {
			count++
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("remove entity dir: %w", err)
	}
	return count, nil
}

// Exists reports whether a container file is present for key.
func (d *Driver) Exists(ctx context.Context, key profile.Key) (bool, error) {
	path, err := d.profilePath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat profile file: %w", err)
	}
	return true, nil
}

// ListEntities returns every entity id with a directory under the root.
func (d *Driver) ListEntities(ctx context.Context) ([]uuid.UUID, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}
	var out []uuid.UUID
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// ListPartitions decodes the entity's containers and collects their
// partitions. Partition names may contain underscores, so the file name
// alone is not authoritative; the container is.
func (d *Driver) ListPartitions(ctx context.Context, entityID uuid.UUID) ([]string, error) {
	profiles, err := d.LoadAll(ctx, entityID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, p := range profiles {
		if _, ok := seen[p.Key.Partition]; ok {
			continue
		}
		seen[p.Key.Partition] = struct{}{}
		out = append(out, p.Key.Partition)
	}
	sort.Strings(out)
	return out, nil
}

// Count walks the tree counting profile containers.
func (d *Driver) Count(ctx context.Context) (int64, error) {
	var count int64
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == snapshotDir {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(entry.Name(), profileExt) && entry.Name() != assignmentIdx {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk storage root: %w", err)
	}
	return count, nil
}

// SizeBytes walks the tree summing file sizes.
func (d *Driver) SizeBytes(ctx context.Context) (int64, error) {
	var size int64
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return storage.SizeUnknown, fmt.Errorf("walk storage root: %w", err)
	}
	return size, nil
}

var _ storage.Driver = (*Driver)(nil)
