package filestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// assignmentRow is one entry in the assignment index file, keyed by
// entity id string.
type assignmentRow struct {
	Partition string `yaml:"partition"`
	Origin    string `yaml:"origin"`
	ExpiresAt int64  `yaml:"expires_at"`
	Actor     string `yaml:"actor,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
}

func (d *Driver) assignmentPath() string {
	return filepath.Join(d.root, assignmentIdx)
}

func (d *Driver) readAssignments() (map[string]assignmentRow, error) {
	data, err := os.ReadFile(d.assignmentPath())
	if os.IsNotExist(err) {
		return map[string]assignmentRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read assignment index: %w", err)
	}
	rows := make(map[string]assignmentRow)
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal assignment index: %w", err)
	}
	return rows, nil
}

func (d *Driver) writeAssignments(rows map[string]assignmentRow) error {
	data, err := yaml.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal assignment index: %w", err)
	}
	if err := atomic.WriteFile(d.assignmentPath(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write assignment index: %w", err)
	}
	return nil
}

// PutTempAssignment upserts the entity's row in the index file.
func (d *Driver) PutTempAssignment(ctx context.Context, a profile.TempAssignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.assignMu.Lock()
	defer d.assignMu.Unlock()
	rows, err := d.readAssignments()
	if err != nil {
		return err
	}
	rows[a.EntityID.String()] = assignmentRow{
		Partition: a.Partition,
		Origin:    a.Origin,
		ExpiresAt: expiryMillis(a.ExpiresAt),
		Actor:     a.Actor,
		Reason:    a.Reason,
	}
	return d.writeAssignments(rows)
}

// GetTempAssignment returns the entity's live assignment.
func (d *Driver) GetTempAssignment(ctx context.Context, entityID uuid.UUID) (profile.TempAssignment, error) {
	if err := ctx.Err(); err != nil {
		return profile.TempAssignment{}, err
	}
	d.assignMu.Lock()
	defer d.assignMu.Unlock()
	rows, err := d.readAssignments()
	if err != nil {
		return profile.TempAssignment{}, err
	}
	row, ok := rows[entityID.String()]
	if !ok {
		return profile.TempAssignment{}, profile.ErrNotFound
	}
	return profile.TempAssignment{
		EntityID:  entityID,
		Partition: row.Partition,
		Origin:    row.Origin,
		ExpiresAt: expiryTime(row.ExpiresAt),
		Actor:     row.Actor,
		Reason:    row.Reason,
	}, nil
}

// expiryMillis stores a zero time as 0, the "never expires" marker.
func expiryMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func expiryTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// DeleteTempAssignment removes the entity's row.
func (d *Driver) DeleteTempAssignment(ctx context.Context, entityID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.assignMu.Lock()
	defer d.assignMu.Unlock()
	rows, err := d.readAssignments()
	if err != nil {
		return false, err
	}
	if _, ok := rows[entityID.String()]; !ok {
		return false, nil
	}
	delete(rows, entityID.String())
	if err := d.writeAssignments(rows); err != nil {
		return false, err
	}
	return true, nil
}

// SweepTempAssignments drops every row expired at or before now.
func (d *Driver) SweepTempAssignments(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.assignMu.Lock()
	defer d.assignMu.Unlock()
	rows, err := d.readAssignments()
	if err != nil {
		return 0, err
	}
	removed := 0
	cutoff := now.UTC().UnixMilli()
	for id, row := range rows {
		if row.ExpiresAt != 0 && row.ExpiresAt <= cutoff {
			delete(rows, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := d.writeAssignments(rows); err != nil {
		return 0, err
	}
	return removed, nil
}
