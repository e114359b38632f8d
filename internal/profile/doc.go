// Package profile defines the player-state domain types persisted by the
// storage backends.
//
// A Profile is the canonical persisted unit: inventory regions, vitals,
// experience, status effects, and optional extension blocks (statistics,
// achievements, recipes). Profiles are keyed by entity id plus a named
// partition and an optional game mode; the same entity may hold independent
// profiles per partition and per mode.
package profile
