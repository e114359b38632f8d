package mysqlstore

import (
	"context"
	"fmt"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// SaveBatch writes the whole batch in one transaction through a prepared
// upsert. Any statement failure rolls back every row and reports zero
// saved — all-or-nothing, unlike the default sequential batch path.
func (d *Driver) SaveBatch(ctx context.Context, profiles []*profile.Profile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, upsertProfileSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare batch upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range profiles {
		if p == nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("batch contains a nil profile")
		}
		if err := p.Key.Validate(); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("batch profile %s: %w", p.Key, err)
		}
		cols := d.codec.EncodeColumns(p)
		if _, err := stmt.ExecContext(ctx, upsertArgs(cols)...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("batch upsert %s: %w", p.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(profiles), nil
}
