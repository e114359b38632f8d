// Package records is the domain-facing cache of player profiles.
//
// It wraps the generic cache engine with profile keys, per-entry dirty
// tracking, and scoped invalidation by entity or partition. Dirty flags
// live in a side table independent of the engine: capacity eviction does
// not clear a dirty flag, so an evicted-but-dirty key is reported as a
// data-loss warning rather than silently dropped. The Flusher drains
// dirty entries to a storage backend on an interval through a bounded
// worker pool (write-behind).
//
// A disabled cache is a deliberate bypass, not a degraded one: every read
// misses, every mutator is a no-op returning its zero value, and Contains
// reports false even right after a Put.
package records
