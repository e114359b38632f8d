// Package storage defines the uniform backend contract for profile
// persistence.
//
// Concrete backends (file tree, embedded SQLite, networked MySQL)
// implement the Driver interface with plain error-returning operations.
// Backend wraps a Driver and owns everything the drivers share: the
// lifecycle state machine, the Ready guard on every call, and the
// translation of driver errors and panics into safe empty results. Callers
// of Backend never receive an error from a guarded operation; only
// Initialize can fail, because a backend that cannot open its store cannot
// honor any later guarantee.
package storage
