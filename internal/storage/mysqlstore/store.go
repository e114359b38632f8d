package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitmark-inc/logger"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/profile"
	"github.com/PCX-SH/xinventories/internal/profile/codec"
	"github.com/PCX-SH/xinventories/internal/storage"
)

// Config holds the connection settings for the MySQL driver. Zero pool
// limits select the defaults below.
type Config struct {
	// DSN is a go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/xinventories".
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 4
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Driver stores profiles in a remote MySQL database.
type Driver struct {
	cfg   Config
	sqlDB *sql.DB
	codec *codec.Codec
	log   *logger.L
}

// New builds a MySQL driver from the config.
func New(cfg Config, log *logger.L) *Driver {
	return &Driver{
		cfg:   cfg,
		codec: codec.New(log),
		log:   log,
	}
}

// Name implements storage.Driver.
func (d *Driver) Name() string { return "mysql" }

// Open connects, configures the pool, ensures the schema, and runs the
// forward-only migration check.
func (d *Driver) Open(ctx context.Context) error {
	if strings.TrimSpace(d.cfg.DSN) == "" {
		return fmt.Errorf("mysql dsn is required")
	}
	sqlDB, err := sql.Open("mysql", d.cfg.DSN)
	if err != nil {
		return fmt.Errorf("open mysql db: %w", err)
	}

	maxOpen := d.cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := d.cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := d.cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}
	idleTime := d.cfg.ConnMaxIdleTime
	if idleTime <= 0 {
		idleTime = defaultConnMaxIdleTime
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(idleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("ping mysql db: %w", err)
	}
	if err := createSchema(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("create schema: %w", err)
	}
	if err := migrate(ctx, sqlDB, d.log); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("migrate schema: %w", err)
	}
	d.sqlDB = sqlDB
	return nil
}

// Close releases the connection pool. The pool is the driver's only
// long-lived shared resource and is closed exactly once.
func (d *Driver) Close(ctx context.Context) error {
	if d.sqlDB == nil {
		return nil
	}
	err := d.sqlDB.Close()
	d.sqlDB = nil
	if err != nil {
		return fmt.Errorf("close mysql db: %w", err)
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

const upsertProfileSQL = `
	INSERT INTO profiles (
		entity_id, partition_name, mode, display_name,
		health, max_health, food, saturation, exhaustion,
		level, progress, total,
		inventory, armor, off_hand, ender_chest, effects,
		version, stats_json, achievements, recipes, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		display_name = VALUES(display_name),
		health = VALUES(health),
		max_health = VALUES(max_health),
		food = VALUES(food),
		saturation = VALUES(saturation),
		exhaustion = VALUES(exhaustion),
		level = VALUES(level),
		progress = VALUES(progress),
		total = VALUES(total),
		inventory = VALUES(inventory),
		armor = VALUES(armor),
		off_hand = VALUES(off_hand),
		ender_chest = VALUES(ender_chest),
		effects = VALUES(effects),
		version = VALUES(version),
		stats_json = VALUES(stats_json),
		achievements = VALUES(achievements),
		recipes = VALUES(recipes),
		updated_at = VALUES(updated_at)`

func upsertArgs(cols codec.Columns) []any {
	return []any{
		cols.EntityID, cols.Partition, cols.Mode, cols.DisplayName,
		cols.Health, cols.MaxHealth, cols.Food, cols.Saturation, cols.Exhaustion,
		cols.Level, cols.Progress, cols.Total,
		cols.Inventory, cols.Armor, cols.OffHand, cols.EnderChest, cols.Effects,
		cols.Version, cols.StatsJSON, cols.Achievements, cols.Recipes,
		time.Now().UTC().UnixMilli(),
	}
}

// SaveProfile upserts the full row for the profile's key.
func (d *Driver) SaveProfile(ctx context.Context, p *profile.Profile) error {
	cols := d.codec.EncodeColumns(p)
	if _, err := d.sqlDB.ExecContext(ctx, upsertProfileSQL, upsertArgs(cols)...); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

const profileColumns = `entity_id, partition_name, mode, display_name,
	health, max_health, food, saturation, exhaustion,
	level, progress, total,
	inventory, armor, off_hand, ender_chest, effects,
	version, stats_json, achievements, recipes`

// scanProfileRow reads the text columns through sql.NullString because
// rows written before the additive migrations carry NULL in the added
// columns; NULL decodes as absent, not as an unreadable row.
func scanProfileRow(row interface{ Scan(...any) error }) (codec.Columns, error) {
	var (
		cols codec.Columns

		inventory, armor, offHand, enderChest, effects sql.NullString
		statsJSON, achievements, recipes               sql.NullString
	)
	err := row.Scan(
		&cols.EntityID, &cols.Partition, &cols.Mode, &cols.DisplayName,
		&cols.Health, &cols.MaxHealth, &cols.Food, &cols.Saturation, &cols.Exhaustion,
		&cols.Level, &cols.Progress, &cols.Total,
		&inventory, &armor, &offHand, &enderChest, &effects,
		&cols.Version, &statsJSON, &achievements, &recipes,
	)
	if err != nil {
		return codec.Columns{}, err
	}
	cols.Inventory = inventory.String
	cols.Armor = armor.String
	cols.OffHand = offHand.String
	cols.EnderChest = enderChest.String
	cols.Effects = effects.String
	cols.StatsJSON = statsJSON.String
	cols.Achievements = achievements.String
	cols.Recipes = recipes.String
	return cols, nil
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

// SizeBytes sums the data and index footprint reported by
// information_schema for this database's tables.
func (d *Driver) SizeBytes(ctx context.Context) (int64, error) {
	var size sql.NullInt64
	err := d.sqlDB.QueryRowContext(ctx, `
		SELECT SUM(data_length + index_length)
		FROM information_schema.tables
		WHERE table_schema = DATABASE()`,
	).Scan(&size)
	if err != nil {
		return storage.SizeUnknown, fmt.Errorf("query table sizes: %w", err)
	}
	if !size.Valid {
		return storage.SizeUnknown, nil
	}
	return size.Int64, nil
}

var _ storage.Driver = (*Driver)(nil)
var _ storage.BatchDriver = (*Driver)(nil)
