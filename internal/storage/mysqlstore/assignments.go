package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// PutTempAssignment upserts the entity's single live assignment row.
func (d *Driver) PutTempAssignment(ctx context.Context, a profile.TempAssignment) error {
	_, err := d.sqlDB.ExecContext(ctx, `
		INSERT INTO temp_assignments (entity_id, partition_name, origin, expires_at, actor, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			partition_name = VALUES(partition_name),
			origin = VALUES(origin),
			expires_at = VALUES(expires_at),
			actor = VALUES(actor),
			reason = VALUES(reason)`,
		a.EntityID.String(), a.Partition, a.Origin,
		expiryMillis(a.ExpiresAt), a.Actor, a.Reason,
	)
	if err != nil {
		return fmt.Errorf("upsert temp assignment: %w", err)
	}
	return nil
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

// GetTempAssignment reads the entity's assignment row.
func (d *Driver) GetTempAssignment(ctx context.Context, entityID uuid.UUID) (profile.TempAssignment, error) {
	var (
		a         profile.TempAssignment
		expiresAt int64
	)
	err := d.sqlDB.QueryRowContext(ctx,
		`SELECT partition_name, origin, expires_at, actor, reason
		 FROM temp_assignments WHERE entity_id = ?`,
		entityID.String(),
	).Scan(&a.Partition, &a.Origin, &expiresAt, &a.Actor, &a.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.TempAssignment{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.TempAssignment{}, fmt.Errorf("query temp assignment: %w", err)
	}
	a.EntityID = entityID
	a.ExpiresAt = expiryTime(expiresAt)
	return a, nil
}

// DeleteTempAssignment removes the entity's assignment row.
func (d *Driver) DeleteTempAssignment(ctx context.Context, entityID uuid.UUID) (bool, error) {
	res, err := d.sqlDB.ExecContext(ctx,
		`DELETE FROM temp_assignments WHERE entity_id = ?`, entityID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("delete temp assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SweepTempAssignments removes every assignment expired at or before now.
func (d *Driver) SweepTempAssignments(ctx context.Context, now time.Time) (int, error) {
	res, err := d.sqlDB.ExecContext(ctx,
		`DELETE FROM temp_assignments WHERE expires_at != 0 AND expires_at <= ?`,
		now.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep temp assignments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
