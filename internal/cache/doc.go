// Package cache provides a generic bounded concurrent cache with
// size-based eviction, optional expire-after-access, and hit/miss
// statistics.
//
// Eviction is approximate: victims are chosen by sampling entries and
// preferring the least recently used with the lowest access frequency.
// Callers must not assume any deterministic eviction order beyond the size
// bound. All operations are safe for concurrent use without external
// locking; no cross-operation atomicity is provided beyond per-key
// operations, so concurrent GetOrLoad calls for the same missing key may
// each run their loader.
package cache
