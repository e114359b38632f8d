// Package vault is the holding store for confiscated items.
//
// Items taken from an entity are buffered in memory and batch-written
// to an embedded SQLite database, with the same at-least-once flush
// behaviour as the audit trail. Each item stays held until it is
// marked returned to its owner or released (destroyed) by an operator;
// both transitions are recorded in place rather than by deleting the
// row, so the vault doubles as a history of confiscations.
package vault
