package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/platform/sqlitedb"
	"github.com/PCX-SH/xinventories/internal/profile"
	"github.com/PCX-SH/xinventories/internal/profile/codec"
	"github.com/PCX-SH/xinventories/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Driver stores profiles in a single SQLite database file.
type Driver struct {
	path  string
	sqlDB *sql.DB
	codec *codec.Codec
	log   *logger.L
}

// New builds a SQLite driver for the database file at path.
func New(path string, log *logger.L) *Driver {
	return &Driver{
		path:  filepath.Clean(path),
		codec: codec.New(log),
		log:   log,
	}
}

// Name implements storage.Driver.
func (d *Driver) Name() string { return "sqlite" }

// Open opens the database file and applies any pending migrations.
func (d *Driver) Open(ctx context.Context) error {
	sqlDB, err := sqlitedb.Open(ctx, d.path)
	if err != nil {
		return err
	}
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("open migrations: %w", err)
	}
	if err := sqlitedb.Migrate(ctx, sqlDB, migrations); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("migrate schema: %w", err)
	}
	d.sqlDB = sqlDB
	return nil
}

// Close releases the database handle.
func (d *Driver) Close(ctx context.Context) error {
	if d.sqlDB == nil {
		return nil
	}
	err := d.sqlDB.Close()
	d.sqlDB = nil
	if err != nil {
		return fmt.Errorf("close sqlite db: %w", err)
	}
	return nil
}

// Ping implements storage.Driver.
func (d *Driver) Ping(ctx context.Context) error {
	if d.sqlDB == nil {
		return fmt.Errorf("database is not open")
	}
	return d.sqlDB.PingContext(ctx)
}

// SaveProfile upserts the full row for the profile's key.
func (d *Driver) SaveProfile(ctx context.Context, p *profile.Profile) error {
	cols := d.codec.EncodeColumns(p)
	_, err := d.sqlDB.ExecContext(ctx, `
		INSERT INTO profiles (
			entity_id, partition_name, mode, display_name,
			health, max_health, food, saturation, exhaustion,
			level, progress, total,
			inventory, armor, off_hand, ender_chest, effects,
			version, stats_json, achievements, recipes, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, partition_name, mode) DO UPDATE SET
			display_name = excluded.display_name,
			health = excluded.health,
			max_health = excluded.max_health,
			food = excluded.food,
			saturation = excluded.saturation,
			exhaustion = excluded.exhaustion,
			level = excluded.level,
			progress = excluded.progress,
			total = excluded.total,
			inventory = excluded.inventory,
			armor = excluded.armor,
			off_hand = excluded.off_hand,
			ender_chest = excluded.ender_chest,
			effects = excluded.effects,
			version = excluded.version,
			stats_json = excluded.stats_json,
			achievements = excluded.achievements,
			recipes = excluded.recipes,
			updated_at = excluded.updated_at`,
		cols.EntityID, cols.Partition, cols.Mode, cols.DisplayName,
		cols.Health, cols.MaxHealth, cols.Food, cols.Saturation, cols.Exhaustion,
		cols.Level, cols.Progress, cols.Total,
		cols.Inventory, cols.Armor, cols.OffHand, cols.EnderChest, cols.Effects,
		cols.Version, cols.StatsJSON, cols.Achievements, cols.Recipes,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

const profileColumns = `entity_id, partition_name, mode, display_name,
	health, max_health, food, saturation, exhaustion,
	level, progress, total,
	inventory, armor, off_hand, ender_chest, effects,
	version, stats_json, achievements, recipes`

func scanProfileRow(row interface{ Scan(...any) error }) (codec.Columns, error) {
	var cols codec.Columns
	err := row.Scan(
		&cols.EntityID, &cols.Partition, &cols.Mode, &cols.DisplayName,
		&cols.Health, &cols.MaxHealth, &cols.Food, &cols.Saturation, &cols.Exhaustion,
		&cols.Level, &cols.Progress, &cols.Total,
		&cols.Inventory, &cols.Armor, &cols.OffHand, &cols.EnderChest, &cols.Effects,
		&cols.Version, &cols.StatsJSON, &cols.Achievements, &cols.Recipes,
	)
	return cols, err
}

// LoadProfile reads one row by key.
func (d *Driver) LoadProfile(ctx context.Context, key profile.Key) (*profile.Profile, error) {
	row := d.sqlDB.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE entity_id = ? AND partition_name = ? AND mode = ?`,
		key.EntityID.String(), key.Partition, string(key.Mode),
	)
	cols, err := scanProfileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return d.decodeColumns(cols)
}

func (d *Driver) decodeColumns(cols codec.Columns) (*profile.Profile, error) {
	p, err := d.codec.DecodeColumns(cols)
	if err != nil {
		// unparseable container degrades to not-found
		d.log.Warnf("unreadable profile row for %s/%s: %v", cols.EntityID, cols.Partition, err)
		return nil, profile.ErrNotFound
	}
	return p, nil
}

// LoadAll reads every row for the entity.
func (d *Driver) LoadAll(ctx context.Context, entityID uuid.UUID) ([]*profile.Profile, error) {
	rows, err := d.sqlDB.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE entity_id = ?
		 ORDER BY partition_name, mode`,
		entityID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []*profile.Profile
	for rows.Next() {
		cols, err := scanProfileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p, err := d.decodeColumns(cols)
		if errors.Is(err, profile.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// DeleteProfile removes one row by key.
func (d *Driver) DeleteProfile(ctx context.Context, key profile.Key) (bool, error) {
	res, err := d.sqlDB.ExecContext(ctx,
		`DELETE FROM profiles WHERE entity_id = ? AND partition_name = ? AND mode = ?`,
		key.EntityID.String(), key.Partition, string(key.Mode),
	)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteAll removes every row for the entity.
func (d *Driver) DeleteAll(ctx context.Context, entityID uuid.UUID) (int, error) {
	res, err := d.sqlDB.ExecContext(ctx,
		`DELETE FROM profiles WHERE entity_id = ?`, entityID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete profiles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Exists reports whether a row is present for key.
func (d *Driver) Exists(ctx context.Context, key profile.Key) (bool, error) {
	var one int
	err := d.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM profiles WHERE entity_id = ? AND partition_name = ? AND mode = ?`,
		key.EntityID.String(), key.Partition, string(key.Mode),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query profile existence: %w", err)
	}
	return true, nil
}

// ListEntities returns the distinct entity ids with stored rows.
func (d *Driver) ListEntities(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := d.sqlDB.QueryContext(ctx, `SELECT DISTINCT entity_id FROM profiles ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			d.log.Warnf("skipping malformed entity id %q", raw)
			continue
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// ListPartitions returns the distinct partitions holding rows for the
// entity.
func (d *Driver) ListPartitions(ctx context.Context, entityID uuid.UUID) ([]string, error) {
	rows, err := d.sqlDB.QueryContext(ctx,
		`SELECT DISTINCT partition_name FROM profiles WHERE entity_id = ? ORDER BY partition_name`,
		entityID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query partitions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return out, nil
}

// Count returns the stored profile row count.
func (d *Driver) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := d.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

// SizeBytes returns the database file size.
func (d *Driver) SizeBytes(ctx context.Context) (int64, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return storage.SizeUnknown, fmt.Errorf("stat db file: %w", err)
	}
	return info.Size(), nil
}

var _ storage.Driver = (*Driver)(nil)
