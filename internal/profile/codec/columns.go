package codec

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// Columns is the flat row form of a profile used by the relational
// backends. One field per column; list-like sub-data is stored in compact
// string columns. Empty extension columns mean the block is absent.
type Columns struct {
	EntityID    string
	Partition   string
	Mode        string
	DisplayName string

	Health     float64
	MaxHealth  float64
	Food       int
	Saturation float64
	Exhaustion float64

	Level    int
	Progress float64
	Total    int

	Inventory  string
	Armor      string
	OffHand    string
	EnderChest string
	Effects    string

	Version uint64

	StatsJSON    string
	Achievements string
	Recipes      string
}

const setValueSep = ","

// EncodeColumns flattens a profile into its relational row form. A
// present but empty achievement or recipe set has no column form of its
// own; it encodes the same as an absent one and decodes back as nil.
func (c *Codec) EncodeColumns(p *profile.Profile) Columns {
	cols := Columns{
		EntityID:    p.Key.EntityID.String(),
		Partition:   p.Key.Partition,
		Mode:        string(p.Key.Mode),
		DisplayName: p.DisplayName,
		Health:      p.Vitals.Health,
		MaxHealth:   p.Vitals.MaxHealth,
		Food:        p.Vitals.Food,
		Saturation:  p.Vitals.Saturation,
		Exhaustion:  p.Vitals.Exhaustion,
		Level:       p.Experience.Level,
		Progress:    p.Experience.Progress,
		Total:       p.Experience.Total,
		Inventory:   c.EncodeItems(p.Inventory),
		Armor:       c.EncodeItems(p.Armor),
		OffHand:     c.EncodeItems(p.OffHand),
		EnderChest:  c.EncodeItems(p.EnderChest),
		Effects:     c.EncodeEffects(p.Effects),
		Version:     p.Version,
	}
	if p.Statistics != nil {
		cols.StatsJSON = p.Statistics.JSON
	}
	if p.Achievements != nil {
		cols.Achievements = strings.Join(p.Achievements.Values(), setValueSep)
	}
	if p.Recipes != nil {
		cols.Recipes = strings.Join(p.Recipes.Values(), setValueSep)
	}
	return cols
}

// DecodeColumns rebuilds a profile from its relational row form. A row
// with an unparseable entity id is an unparseable container and yields an
// error; everything else degrades per field.
func (c *Codec) DecodeColumns(cols Columns) (*profile.Profile, error) {
	entityID, err := uuid.Parse(cols.EntityID)
	if err != nil {
		return nil, fmt.Errorf("parse entity id %q: %w", cols.EntityID, err)
	}

	p := &profile.Profile{
		Key: profile.Key{
			EntityID:  entityID,
			Partition: cols.Partition,
			Mode:      profile.ParseGameMode(cols.Mode),
		},
		DisplayName: cols.DisplayName,
		Vitals: profile.Vitals{
			Health:     cols.Health,
			MaxHealth:  cols.MaxHealth,
			Food:       cols.Food,
			Saturation: cols.Saturation,
			Exhaustion: cols.Exhaustion,
		},
		Experience: profile.Experience{
			Level:    cols.Level,
			Progress: cols.Progress,
			Total:    cols.Total,
		},
		Inventory:  c.DecodeItems(cols.Inventory),
		Armor:      c.DecodeItems(cols.Armor),
		OffHand:    c.DecodeItems(cols.OffHand),
		EnderChest: c.DecodeItems(cols.EnderChest),
		Effects:    c.DecodeEffects(cols.Effects),
		Version:    cols.Version,
	}
	if cols.StatsJSON != "" {
		p.Statistics = &profile.StatsBlock{JSON: cols.StatsJSON}
	}
	if cols.Achievements != "" {
		p.Achievements = profile.NewStringSet(strings.Split(cols.Achievements, setValueSep)...)
	}
	if cols.Recipes != "" {
		p.Recipes = profile.NewStringSet(strings.Split(cols.Recipes, setValueSep)...)
	}
	return p, nil
}
