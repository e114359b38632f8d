package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportCSV streams every entry in [from, to] to w as CSV, oldest
// first, with a header row. Field escaping is handled by the CSV
// writer, so free-text detail fields are safe.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, from, to time.Time) (int, error) {
	fromMs, toMs := timeBounds(from, to)
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_log
		 WHERE created_at >= ? AND created_at <= ?
		 ORDER BY created_at ASC, id ASC`,
		fromMs, toMs,
	)
	if err != nil {
		return 0, fmt.Errorf("query audit export: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "entity_id", "action", "partition", "detail", "created_at"}); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	count := 0
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return count, fmt.Errorf("scan audit entry: %w", err)
		}
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.EntityID.String(),
			e.Action,
			e.Partition,
			e.Detail,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return count, fmt.Errorf("write csv row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate audit export: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return count, fmt.Errorf("flush csv: %w", err)
	}
	return count, nil
}
