package profile

import (
	"errors"
	"sort"
)

// ErrNotFound indicates a requested profile is missing from a backend.
var ErrNotFound = errors.New("profile not found")

// Default vitals and experience values. Decode uses these whenever a stored
// record predates a field.
const (
	DefaultHealth     = 20.0
	DefaultMaxHealth  = 20.0
	DefaultFood       = 20
	DefaultSaturation = 5.0
	DefaultExhaustion = 0.0
)

// Vitals holds the health and hunger state of a profile.
type Vitals struct {
	Health     float64
	MaxHealth  float64
	Food       int
	Saturation float64
	Exhaustion float64
}

// DefaultVitals returns the vitals of a freshly created profile.
func DefaultVitals() Vitals {
	return Vitals{
		Health:     DefaultHealth,
		MaxHealth:  DefaultMaxHealth,
		Food:       DefaultFood,
		Saturation: DefaultSaturation,
		Exhaustion: DefaultExhaustion,
	}
}

// Experience holds the level state of a profile.
type Experience struct {
	Level    int
	Progress float64
	Total    int
}

// ItemStack is one stored item. Data is an opaque binary payload owned by
// the embedding host; the engine never inspects it. Text-oriented backends
// re-encode it as base64.
type ItemStack struct {
	TypeID string
	Count  int
	Data   []byte
}

// StatusEffect is one active timed effect. Type may be namespaced
// ("minecraft:speed") or bare ("speed"); both forms decode.
type StatusEffect struct {
	Type      string
	Duration  int
	Amplifier int
	Ambient   bool
	Particles bool
	Icon      bool
}

// StatsBlock is the optional usage-statistics extension block. The engine
// treats the payload as an opaque JSON document.
type StatsBlock struct {
	JSON string
}

// StringSet is an unordered set of identifiers used by the achievements and
// recipes extension blocks.
type StringSet struct {
	values map[string]struct{}
}

// NewStringSet builds a set from the given values.
func NewStringSet(values ...string) *StringSet {
	s := &StringSet{values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.values[v] = struct{}{}
	}
	return s
}

// Add inserts a value.
func (s *StringSet) Add(v string) {
	if s.values == nil {
		s.values = make(map[string]struct{})
	}
	s.values[v] = struct{}{}
}

// Contains reports membership.
func (s *StringSet) Contains(v string) bool {
	if s == nil {
		return false
	}
	_, ok := s.values[v]
	return ok
}

// Len returns the number of values.
func (s *StringSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Values returns the members sorted for stable encoding.
func (s *StringSet) Values() []string {
	if s == nil || len(s.values) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Profile is the canonical persisted player state for one key.
//
// Inventory regions are sparse: only occupied slot indices are present, and
// encoding never writes placeholder entries for empty slots. The extension
// blocks Statistics, Achievements and Recipes are optional; nil means the
// block was never recorded, which is not an error.
type Profile struct {
	Key         Key
	DisplayName string

	Vitals     Vitals
	Experience Experience

	Inventory  map[int]ItemStack
	Armor      map[int]ItemStack
	OffHand    map[int]ItemStack
	EnderChest map[int]ItemStack

	Effects []StatusEffect

	// Version increases by one on every save of core content. The
	// cross-node sync layer compares versions to detect remote writes.
	Version uint64

	Statistics   *StatsBlock
	Achievements *StringSet
	Recipes      *StringSet
}

// New returns an empty profile for the key with default vitals.
func New(key Key) *Profile {
	return &Profile{
		Key:        key,
		Vitals:     DefaultVitals(),
		Inventory:  make(map[int]ItemStack),
		Armor:      make(map[int]ItemStack),
		OffHand:    make(map[int]ItemStack),
		EnderChest: make(map[int]ItemStack),
	}
}

// BumpVersion increments the optimistic-concurrency counter. Every writer
// of core content calls this before handing the profile to a backend.
func (p *Profile) BumpVersion() {
	p.Version++
}

// ItemCount returns the number of occupied slots across all regions.
func (p *Profile) ItemCount() int {
	return len(p.Inventory) + len(p.Armor) + len(p.OffHand) + len(p.EnderChest)
}

// Clone returns a deep copy. Backends hand out clones so cached profiles
// are never aliased by callers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Inventory = cloneRegion(p.Inventory)
	out.Armor = cloneRegion(p.Armor)
	out.OffHand = cloneRegion(p.OffHand)
	out.EnderChest = cloneRegion(p.EnderChest)
	if p.Effects != nil {
		out.Effects = make([]StatusEffect, len(p.Effects))
		copy(out.Effects, p.Effects)
	}
	if p.Statistics != nil {
		stats := *p.Statistics
		out.Statistics = &stats
	}
	if p.Achievements != nil {
		out.Achievements = NewStringSet(p.Achievements.Values()...)
	}
	if p.Recipes != nil {
		out.Recipes = NewStringSet(p.Recipes.Values()...)
	}
	return &out
}

func cloneRegion(region map[int]ItemStack) map[int]ItemStack {
	if region == nil {
		return nil
	}
	out := make(map[int]ItemStack, len(region))
	for slot, item := range region {
		if item.Data != nil {
			data := make([]byte, len(item.Data))
			copy(data, item.Data)
			item.Data = data
		}
		out[slot] = item
	}
	return out
}
