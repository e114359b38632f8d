package audit

import (
	"context"
	"database/sql"
	"embed"
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

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Entry is one audit trail row. ID is assigned by the database and zero
// until the entry is flushed.
type Entry struct {
	ID        int64
	EntityID  uuid.UUID
	Action    string
	Partition string
	Detail    string
	CreatedAt time.Time
}

// Store buffers audit entries and batch-writes them to SQLite.
type Store struct {
	sqlDB *sql.DB
	log   *logger.L

	mu    sync.Mutex
	queue []Entry
}

// Open opens (and creates) the audit database at path.
func Open(path string, log *logger.L) (*Store, error) {
	ctx := context.Background()
	sqlDB, err := sqlitedb.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	if err := sqlitedb.Migrate(ctx, sqlDB, migrations); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, log: log}, nil
}

// Close flushes any buffered entries and releases the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	if err := s.Flush(context.Background()); err != nil {
		s.log.Errorf("final audit flush: %v", err)
	}
	err := s.sqlDB.Close()
	s.sqlDB = nil
	return err
}

// Record buffers an entry. The buffer auto-flushes once it exceeds
// FlushThreshold; until then a reader will not see the entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.queue = append(s.queue, e)
	pending := len(s.queue)
	s.mu.Unlock()

	if pending > FlushThreshold {
		return s.Flush(ctx)
	}
	return nil
}

// RecordNow writes an entry straight to the database, bypassing the
// buffer entirely.
func (s *Store) RecordNow(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO audit_log (entity_id, action, partition_name, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.EntityID.String(), e.Action, e.Partition, e.Detail, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Flush drains the buffer into one batch insert. On failure the drained
// entries are put back, which can duplicate rows on a later retry; an
// audit trail prefers duplicates over loss.
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
		return fmt.Errorf("flush %d audit entries: %w", len(drained), err)
	}
	s.log.Debugf("flushed %d audit entries", len(drained))
	return nil
}

func (s *Store) insertBatch(ctx context.Context, entries []Entry) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_log (entity_id, action, partition_name, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.EntityID.String(), e.Action, e.Partition, e.Detail, e.CreatedAt.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Pending returns the number of buffered, unflushed entries.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

const entryColumns = `id, entity_id, action, partition_name, detail, created_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var (
		e         Entry
		entityRaw string
		createdAt int64
	)
	if err := row.Scan(&e.ID, &entityRaw, &e.Action, &e.Partition, &e.Detail, &createdAt); err != nil {
		return Entry{}, err
	}
	id, err := uuid.Parse(entityRaw)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entity id: %w", err)
	}
	e.EntityID = id
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	return e, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return out, nil
}

// ByEntity returns the entity's entries, newest first. Buffered entries
// are not included until the next flush.
func (s *Store) ByEntity(ctx context.Context, entityID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM audit_log
		 WHERE entity_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		entityID.String(), limit,
	)
}

// ByAction returns entries for one action type, optionally bounded in
// time (zero times mean unbounded), newest first.
func (s *Store) ByAction(ctx context.Context, action string, from, to time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	fromMs, toMs := timeBounds(from, to)
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM audit_log
		 WHERE action = ? AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		action, fromMs, toMs, limit,
	)
}

// ByTimeRange returns entries in [from, to], newest first.
func (s *Store) ByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	fromMs, toMs := timeBounds(from, to)
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM audit_log
		 WHERE created_at >= ? AND created_at <= ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		fromMs, toMs, limit,
	)
}

// Prune deletes entries created before the cutoff and returns the count.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, before.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func timeBounds(from, to time.Time) (int64, int64) {
	fromMs := int64(0)
	if !from.IsZero() {
		fromMs = from.UTC().UnixMilli()
	}
	toMs := int64(1<<62 - 1)
	if !to.IsZero() {
		toMs = to.UTC().UnixMilli()
	}
	return fromMs, toMs
}
