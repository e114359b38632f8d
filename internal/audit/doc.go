// Package audit is the append-only audit trail store.
//
// Entries are buffered in memory and written to an embedded SQLite
// database in batches once the buffer passes its threshold, trading read
// freshness for write throughput. A failed flush re-queues the drained
// entries, so delivery is at-least-once and duplicate rows are possible
// after repeated failures. Reads query the database directly and do not
// see buffered entries until the next flush.
package audit
