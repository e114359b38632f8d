// Package sqlitestore is the embedded relational storage driver.
//
// One on-disk SQLite database file holds the profiles, snapshots, and
// temporary assignment tables. Embedded migrations run idempotently on
// open and writes use unique-constraint upserts, so the later save of a
// key fully replaces the earlier one.
package sqlitestore
