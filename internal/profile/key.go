package profile

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GameMode is the optional sub-mode dimension of a profile key.
type GameMode string

const (
	// ModeNone means the key carries no sub-mode. A key with ModeNone is a
	// distinct key space from any concrete mode: a lookup without a mode
	// never matches an entry stored with one.
	ModeNone GameMode = ""

	ModeSurvival  GameMode = "SURVIVAL"
	ModeCreative  GameMode = "CREATIVE"
	ModeAdventure GameMode = "ADVENTURE"
	ModeSpectator GameMode = "SPECTATOR"
)

// ParseGameMode maps a stored mode string back to a GameMode. Unknown
// strings round-trip unchanged so that forward-written modes survive.
func ParseGameMode(s string) GameMode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return ModeNone
	case "SURVIVAL":
		return ModeSurvival
	case "CREATIVE":
		return ModeCreative
	case "ADVENTURE":
		return ModeAdventure
	case "SPECTATOR":
		return ModeSpectator
	default:
		return GameMode(strings.ToUpper(strings.TrimSpace(s)))
	}
}

// Key identifies one persisted profile.
type Key struct {
	EntityID  uuid.UUID
	Partition string
	Mode      GameMode
}

// NewKey builds a key without a sub-mode.
func NewKey(entityID uuid.UUID, partition string) Key {
	return Key{EntityID: entityID, Partition: partition}
}

// NewModeKey builds a key narrowed to a game mode.
func NewModeKey(entityID uuid.UUID, partition string, mode GameMode) Key {
	return Key{EntityID: entityID, Partition: partition, Mode: mode}
}

// String renders the stable cache-key form: entity_partition when no mode is
// set, entity_partition_mode otherwise. The mode is lowercased.
func (k Key) String() string {
	if k.Mode == ModeNone {
		return fmt.Sprintf("%s_%s", k.EntityID, k.Partition)
	}
	return fmt.Sprintf("%s_%s_%s", k.EntityID, k.Partition, strings.ToLower(string(k.Mode)))
}

// Validate reports whether the key identifies a storable profile.
func (k Key) Validate() error {
	if k.EntityID == uuid.Nil {
		return fmt.Errorf("entity id is required")
	}
	if strings.TrimSpace(k.Partition) == "" {
		return fmt.Errorf("partition is required")
	}
	return nil
}
