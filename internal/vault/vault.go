package vault

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/platform/sqlitedb"
)

// FlushThreshold is the buffer size that triggers an automatic flush.
const FlushThreshold = 100

// Status is the lifecycle state of a held item.
type Status string

const (
	// StatusHeld marks an item still in the vault.
	StatusHeld Status = "held"
	// StatusReturned marks an item given back to its owner.
	StatusReturned Status = "returned"
	// StatusReleased marks an item destroyed or forfeited by an operator.
	StatusReleased Status = "released"
)

// ErrNotFound reports a vault item id with no matching row.
var ErrNotFound = errors.New("vault item not found")

// ErrNotHeld reports a status transition on an item that is no longer
// held.
var ErrNotHeld = errors.New("vault item is not held")

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Item is one confiscated item row. ID is assigned by the database and
// zero until the item is flushed. ItemData is the compact delimited
// stack encoding produced by the codec.
type Item struct {
	ID         int64
	EntityID   uuid.UUID
	Partition  string
	ItemData   string
	Reason     string
	Actor      string
	Status     Status
	CreatedAt  time.Time
	ResolvedAt time.Time
	ResolvedBy string
}

// Store buffers confiscated items and batch-writes them to SQLite.
type Store struct {
	sqlDB *sql.DB
	log   *logger.L

	mu    sync.Mutex
	queue []Item
}

// Open opens (and creates) the vault database at path.
func Open(path string, log *logger.L) (*Store, error) {
	ctx := context.Background()
	sqlDB, err := sqlitedb.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open vault db: %w", err)
	}
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	if err := sqlitedb.Migrate(ctx, sqlDB, migrations); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate vault schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, log: log}, nil
}

// Close flushes any buffered items and releases the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	if err := s.Flush(context.Background()); err != nil {
		s.log.Errorf("final vault flush: %v", err)
	}
	err := s.sqlDB.Close()
	s.sqlDB = nil
	return err
}

// Record buffers a confiscated item. The buffer auto-flushes once it
// exceeds FlushThreshold.
func (s *Store) Record(ctx context.Context, it Item) error {
	normalize(&it)
	s.mu.Lock()
	s.queue = append(s.queue, it)
	pending := len(s.queue)
	s.mu.Unlock()

	if pending > FlushThreshold {
		return s.Flush(ctx)
	}
	return nil
}

// RecordNow writes a confiscated item straight to the database and
// returns its assigned id.
func (s *Store) RecordNow(ctx context.Context, it Item) (int64, error) {
	normalize(&it)
	res, err := s.sqlDB.ExecContext(ctx, insertItemSQL, insertArgs(it)...)
	if err != nil {
		return 0, fmt.Errorf("insert vault item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func normalize(it *Item) {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	if it.Status == "" {
		it.Status = StatusHeld
	}
}

const insertItemSQL = `
INSERT INTO vault_items (entity_id, partition_name, item_data, reason, actor, status, created_at, resolved_at, resolved_by)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(it Item) []any {
	resolvedAt := int64(0)
	if !it.ResolvedAt.IsZero() {
		resolvedAt = it.ResolvedAt.UTC().UnixMilli()
	}
	return []any{
		it.EntityID.String(), it.Partition, it.ItemData, it.Reason, it.Actor,
		string(it.Status), it.CreatedAt.UnixMilli(), resolvedAt, it.ResolvedBy,
	}
}

// Flush drains the buffer into one batch insert, re-queueing the
// drained items on failure.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	drained := s.queue
	s.queue = nil
	s.mu.Unlock()

	if len(drained) == 0 {
		return nil
	}

	if err := s.insertBatch(ctx, drained); err != nil {
		s.mu.Lock()
		s.queue = append(drained, s.queue...)
		s.mu.Unlock()
		return fmt.Errorf("flush %d vault items: %w", len(drained), err)
	}
	s.log.Debugf("flushed %d vault items", len(drained))
	return nil
}

func (s *Store) insertBatch(ctx context.Context, items []Item) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertItemSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, insertArgs(it)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Pending returns the number of buffered, unflushed items.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

const itemColumns = `id, entity_id, partition_name, item_data, reason, actor, status, created_at, resolved_at, resolved_by`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var (
		it         Item
		entityRaw  string
		status     string
		createdAt  int64
		resolvedAt int64
	)
	err := row.Scan(&it.ID, &entityRaw, &it.Partition, &it.ItemData, &it.Reason,
		&it.Actor, &status, &createdAt, &resolvedAt, &it.ResolvedBy)
	if err != nil {
		return Item{}, err
	}
	id, err := uuid.Parse(entityRaw)
	if err != nil {
		return Item{}, fmt.Errorf("parse entity id: %w", err)
	}
	it.EntityID = id
	it.Status = Status(status)
	it.CreatedAt = time.UnixMilli(createdAt).UTC()
	if resolvedAt != 0 {
		it.ResolvedAt = time.UnixMilli(resolvedAt).UTC()
	}
	return it, nil
}

// Get reads one item by id.
func (s *Store) Get(ctx context.Context, id int64) (Item, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM vault_items WHERE id = ?`, id,
	)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("load vault item: %w", err)
	}
	return it, nil
}

// ByEntity returns the entity's items, optionally filtered to one
// status (empty means all), newest first. Buffered items are not
// included until the next flush.
func (s *Store) ByEntity(ctx context.Context, entityID uuid.UUID, status Status) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM vault_items WHERE entity_id = ?`
	args := []any{entityID.String()}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.queryItems(ctx, query, args...)
}

// Held returns every item currently held, oldest first.
func (s *Store) Held(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM vault_items
		 WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		string(StatusHeld), limit,
	)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vault items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vault item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault items: %w", err)
	}
	return out, nil
}

// MarkReturned transitions a held item to returned, recording who
// resolved it and when.
func (s *Store) MarkReturned(ctx context.Context, id int64, actor string) error {
	return s.resolve(ctx, id, StatusReturned, actor)
}

// Release transitions a held item to released, recording who resolved
// it and when.
func (s *Store) Release(ctx context.Context, id int64, actor string) error {
	return s.resolve(ctx, id, StatusReleased, actor)
}

func (s *Store) resolve(ctx context.Context, id int64, to Status, actor string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE vault_items SET status = ?, resolved_at = ?, resolved_by = ?
		 WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC().UnixMilli(), actor, id, string(StatusHeld),
	)
	if err != nil {
		return fmt.Errorf("resolve vault item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing row from one already resolved.
		var status string
		err := s.sqlDB.QueryRowContext(ctx,
			`SELECT status FROM vault_items WHERE id = ?`, id,
		).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check vault item: %w", err)
		}
		return fmt.Errorf("%w: status is %s", ErrNotHeld, status)
	}
	return nil
}

// Prune deletes resolved items whose resolution predates the cutoff.
// Held items are never pruned.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM vault_items
		 WHERE status != ? AND resolved_at != 0 AND resolved_at < ?`,
		string(StatusHeld), before.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune vault items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
