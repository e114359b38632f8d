package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/platform/logging/fixtures"
)

func TestMain(m *testing.M) {
	fixtures.SetupTestLogger()
	code := m.Run()
	fixtures.TeardownTestLogger()
	os.Exit(code)
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"), logger.New(fixtures.LogCategory))
	if err != nil {
		t.Fatalf("open audit store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close audit store: %v", err)
		}
	})
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", logger.New(fixtures.LogCategory)); err == nil {
		t.Fatal("Open with blank path should fail")
	}
}

func TestRecordBuffersUntilFlush(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	entity := uuid.New()

	for i := 0; i < 3; i++ {
		err := s.Record(ctx, Entry{
			EntityID:  entity,
			Action:    "profile_save",
			Partition: "world",
			Detail:    fmt.Sprintf("save %d", i),
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if got := s.Pending(); got != 3 {
		t.Fatalf("Pending() = %d, want 3", got)
	}

	// Reads go straight to the database and must not see the buffer.
	entries, err := s.ByEntity(ctx, entity, 10)
	if err != nil {
		t.Fatalf("by entity: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("unflushed entries visible to reader: %d", len(entries))
	}

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := s.Pending(); got != 0 {
		t.Fatalf("Pending() after flush = %d, want 0", got)
	}
	entries, err = s.ByEntity(ctx, entity, 10)
	if err != nil {
		t.Fatalf("by entity after flush: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries after flush, want 3", len(entries))
	}
	for _, e := range entries {
		if e.ID == 0 {
			t.Fatal("flushed entries should carry database-assigned ids")
		}
	}
}

func TestRecordAutoFlushesPastThreshold(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	entity := uuid.New()

	for i := 0; i <= FlushThreshold; i++ {
		if err := s.Record(ctx, Entry{EntityID: entity, Action: "item_pickup"}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if got := s.Pending(); got != 0 {
		t.Fatalf("buffer should auto-flush past the threshold, %d pending", got)
	}
	entries, err := s.ByEntity(ctx, entity, FlushThreshold+10)
	if err != nil {
		t.Fatalf("by entity: %v", err)
	}
	if len(entries) != FlushThreshold+1 {
		t.Fatalf("got %d entries, want %d", len(entries), FlushThreshold+1)
	}
}

func TestRecordNowBypassesBuffer(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	entity := uuid.New()

	if err := s.RecordNow(ctx, Entry{EntityID: entity, Action: "admin_wipe", Detail: "operator request"}); err != nil {
		t.Fatalf("record now: %v", err)
	}
	if got := s.Pending(); got != 0 {
		t.Fatalf("RecordNow should not touch the buffer, %d pending", got)
	}
	entries, err := s.ByEntity(ctx, entity, 10)
	if err != nil {
		t.Fatalf("by entity: %v", err)
	}
	if len(entries) != 1 || entries[0].Detail != "operator request" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	s := openTempStore(t)
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush of empty buffer: %v", err)
	}
}

func TestQueriesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	entity := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := s.Record(ctx, Entry{
			EntityID:  entity,
			Action:    "profile_save",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	entries, err := s.ByEntity(ctx, entity, 3)
	if err != nil {
		t.Fatalf("by entity: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("limit not honored: got %d entries", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Fatalf("entries out of order: %v then %v", entries[i-1].CreatedAt, entries[i].CreatedAt)
		}
	}
	if !entries[0].CreatedAt.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("newest entry first, got %v", entries[0].CreatedAt)
	}
}

func TestByActionTimeBounds(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	entity := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	seed := []Entry{
		{EntityID: entity, Action: "profile_save", CreatedAt: base},
		{EntityID: entity, Action: "profile_save", CreatedAt: base.Add(time.Hour)},
		{EntityID: entity, Action: "profile_load", CreatedAt: base.Add(time.Hour)},
		{EntityID: entity, Action: "profile_save", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, e := range seed {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, err := s.ByAction(ctx, "profile_save", base.Add(30*time.Minute), base.Add(90*time.Minute), 10)
	if err != nil {
		t.Fatalf("by action: %v", err)
	}
	if len(got) != 1 || !got[0].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("bounded query returned %+v", got)
	}

	// Zero times mean unbounded.
	got, err = s.ByAction(ctx, "profile_save", time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("unbounded by action: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("unbounded query returned %d entries, want 3", len(got))
	}

	if _, err := s.ByAction(ctx, "profile_save", time.Time{}, time.Time{}, 0); err == nil {
		t.Fatal("zero limit should be rejected")
	}
}

func TestByTimeRange(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		err := s.RecordNow(ctx, Entry{
			EntityID:  uuid.New(),
			Action:    "session_end",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("record now: %v", err)
		}
	}

	got, err := s.ByTimeRange(ctx, base.Add(time.Hour), base.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("by time range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("range query returned %d entries, want 2", len(got))
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		err := s.RecordNow(ctx, Entry{
			EntityID:  uuid.New(),
			Action:    "profile_save",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("record now: %v", err)
		}
	}

	removed, err := s.Prune(ctx, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("pruned %d entries, want 3", removed)
	}
	left, err := s.ByTimeRange(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("by time range: %v", err)
	}
	if len(left) != 3 {
		t.Fatalf("%d entries remain, want 3", len(left))
	}
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	s := openTempStore(t)
	entity := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	seed := []Entry{
		{EntityID: entity, Action: "profile_save", Partition: "world", Detail: "plain detail", CreatedAt: base},
		{EntityID: entity, Action: "admin_note", Detail: `says "stop", then left`, CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range seed {
		if err := s.RecordNow(ctx, e); err != nil {
			t.Fatalf("record now: %v", err)
		}
	}

	var buf strings.Builder
	n, err := s.ExportCSV(ctx, &buf, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("export csv: %v", err)
	}
	if n != 2 {
		t.Fatalf("exported %d rows, want 2", n)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d csv lines, want header plus 2 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "id,entity_id,action,partition,detail,created_at" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	// Oldest first, unlike the query helpers.
	if !strings.Contains(lines[1], "profile_save") {
		t.Fatalf("first data row should be the oldest entry: %q", lines[1])
	}
	// Embedded quotes must be escaped, not truncate the row.
	if !strings.Contains(lines[2], `""stop""`) {
		t.Fatalf("quoted detail not escaped: %q", lines[2])
	}
	if !strings.Contains(lines[1], base.Format(time.RFC3339)) {
		t.Fatalf("timestamp not RFC3339: %q", lines[1])
	}
}
