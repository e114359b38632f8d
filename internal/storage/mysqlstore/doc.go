// Package mysqlstore is the networked relational storage driver.
//
// It talks to a remote MySQL server through a bounded connection pool.
// The schema is created idempotently, and a forward-only migration check
// upgrades databases written by older releases by probing for a column
// the old schema lacked and applying additive ALTER TABLE statements.
//
// SaveBatch diverges from the default contract on purpose: the whole
// batch runs in one transaction and a single failure rolls back every
// row, reporting zero saved. Callers needing partial success should issue
// single saves.
package mysqlstore
