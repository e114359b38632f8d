package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// treeDoc is the YAML shape of the text-tree encoding. Slot maps hold only
// occupied indices; optional blocks are omitted entirely when absent.
// Decoding goes through looseDoc instead so that one malformed numeric
// field degrades to its default rather than failing the document.
type treeDoc struct {
	EntityID     string           `yaml:"entity_id"`
	Partition    string           `yaml:"partition"`
	Mode         string           `yaml:"mode,omitempty"`
	DisplayName  string           `yaml:"display_name,omitempty"`
	Vitals       treeVitals       `yaml:"vitals"`
	Experience   treeExperience   `yaml:"experience"`
	Inventory    map[int]treeItem `yaml:"inventory,omitempty"`
	Armor        map[int]treeItem `yaml:"armor,omitempty"`
	OffHand      map[int]treeItem `yaml:"off_hand,omitempty"`
	EnderChest   map[int]treeItem `yaml:"ender_chest,omitempty"`
	Effects      string           `yaml:"effects,omitempty"`
	Version      uint64           `yaml:"version"`
	Stats        string           `yaml:"stats,omitempty"`
	Achievements []string         `yaml:"achievements,omitempty"`
	Recipes      []string         `yaml:"recipes,omitempty"`
}

type treeVitals struct {
	Health     float64 `yaml:"health"`
	MaxHealth  float64 `yaml:"max_health"`
	Food       int     `yaml:"food"`
	Saturation float64 `yaml:"saturation"`
	Exhaustion float64 `yaml:"exhaustion"`
}

type treeExperience struct {
	Level    int     `yaml:"level"`
	Progress float64 `yaml:"progress"`
	Total    int     `yaml:"total"`
}

type treeItem struct {
	Type  string `yaml:"type"`
	Count int    `yaml:"count"`
	Data  string `yaml:"data,omitempty"`
}

// looseDoc mirrors treeDoc with yaml.Node leaves for the numeric sections
// so each field can be decoded, and defaulted, independently.
type looseDoc struct {
	EntityID     string               `yaml:"entity_id"`
	Partition    string               `yaml:"partition"`
	Mode         string               `yaml:"mode"`
	DisplayName  string               `yaml:"display_name"`
	Vitals       map[string]yaml.Node `yaml:"vitals"`
	Experience   map[string]yaml.Node `yaml:"experience"`
	Inventory    map[int]treeItem     `yaml:"inventory"`
	Armor        map[int]treeItem     `yaml:"armor"`
	OffHand      map[int]treeItem     `yaml:"off_hand"`
	EnderChest   map[int]treeItem     `yaml:"ender_chest"`
	Effects      string               `yaml:"effects"`
	Version      uint64               `yaml:"version"`
	Stats        string               `yaml:"stats"`
	Achievements []string             `yaml:"achievements"`
	Recipes      []string             `yaml:"recipes"`
}

// EncodeTree renders the profile as a YAML document. Item payloads are
// re-encoded as base64 because the target storage is text. A present but
// empty achievement or recipe set has no serialized form of its own; it
// encodes the same as an absent one and decodes back as nil.
func (c *Codec) EncodeTree(p *profile.Profile) ([]byte, error) {
	doc := treeDoc{
		EntityID:    p.Key.EntityID.String(),
		Partition:   p.Key.Partition,
		Mode:        string(p.Key.Mode),
		DisplayName: p.DisplayName,
		Vitals: treeVitals{
			Health:     p.Vitals.Health,
			MaxHealth:  p.Vitals.MaxHealth,
			Food:       p.Vitals.Food,
			Saturation: p.Vitals.Saturation,
			Exhaustion: p.Vitals.Exhaustion,
		},
		Experience: treeExperience{
			Level:    p.Experience.Level,
			Progress: p.Experience.Progress,
			Total:    p.Experience.Total,
		},
		Inventory:  encodeTreeRegion(p.Inventory),
		Armor:      encodeTreeRegion(p.Armor),
		OffHand:    encodeTreeRegion(p.OffHand),
		EnderChest: encodeTreeRegion(p.EnderChest),
		Effects:    c.EncodeEffects(p.Effects),
		Version:    p.Version,
	}
	if p.Statistics != nil {
		doc.Stats = p.Statistics.JSON
	}
	if p.Achievements != nil {
		doc.Achievements = p.Achievements.Values()
	}
	if p.Recipes != nil {
		doc.Recipes = p.Recipes.Values()
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal profile tree: %w", err)
	}
	return out, nil
}

// DecodeTree parses a YAML document back into a profile. An unparseable
// document or entity id fails as a whole; malformed numeric fields inside
// a parseable document fall back to their defaults with a warning.
func (c *Codec) DecodeTree(data []byte) (*profile.Profile, error) {
	var doc looseDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal profile tree: %w", err)
	}
	entityID, err := uuid.Parse(doc.EntityID)
	if err != nil {
		return nil, fmt.Errorf("parse entity id %q: %w", doc.EntityID, err)
	}

	p := &profile.Profile{
		Key: profile.Key{
			EntityID:  entityID,
			Partition: doc.Partition,
			Mode:      profile.ParseGameMode(doc.Mode),
		},
		DisplayName: doc.DisplayName,
		Vitals: profile.Vitals{
			Health:     c.treeFloat(doc.Vitals, "health", profile.DefaultHealth),
			MaxHealth:  c.treeFloat(doc.Vitals, "max_health", profile.DefaultMaxHealth),
			Food:       c.treeInt(doc.Vitals, "food", profile.DefaultFood),
			Saturation: c.treeFloat(doc.Vitals, "saturation", profile.DefaultSaturation),
			Exhaustion: c.treeFloat(doc.Vitals, "exhaustion", profile.DefaultExhaustion),
		},
		Experience: profile.Experience{
			Level:    c.treeInt(doc.Experience, "level", 0),
			Progress: c.treeFloat(doc.Experience, "progress", 0),
			Total:    c.treeInt(doc.Experience, "total", 0),
		},
		Inventory:  c.decodeTreeRegion(doc.Inventory),
		Armor:      c.decodeTreeRegion(doc.Armor),
		OffHand:    c.decodeTreeRegion(doc.OffHand),
		EnderChest: c.decodeTreeRegion(doc.EnderChest),
		Effects:    c.DecodeEffects(doc.Effects),
		Version:    doc.Version,
	}
	if doc.Stats != "" {
		p.Statistics = &profile.StatsBlock{JSON: doc.Stats}
	}
	if doc.Achievements != nil {
		p.Achievements = profile.NewStringSet(doc.Achievements...)
	}
	if doc.Recipes != nil {
		p.Recipes = profile.NewStringSet(doc.Recipes...)
	}
	return p, nil
}

func encodeTreeRegion(region map[int]profile.ItemStack) map[int]treeItem {
	if len(region) == 0 {
		return nil
	}
	out := make(map[int]treeItem, len(region))
	for slot, item := range region {
		out[slot] = treeItem{
			Type:  item.TypeID,
			Count: item.Count,
			Data:  base64.StdEncoding.EncodeToString(item.Data),
		}
	}
	return out
}

func (c *Codec) decodeTreeRegion(region map[int]treeItem) map[int]profile.ItemStack {
	if len(region) == 0 {
		return nil
	}
	out := make(map[int]profile.ItemStack, len(region))
	for slot, item := range region {
		var data []byte
		if item.Data != "" {
			decoded, err := base64.StdEncoding.DecodeString(item.Data)
			if err != nil {
				c.warnf("slot %d: bad item data, dropping payload: %v", slot, err)
			} else {
				data = decoded
			}
		}
		out[slot] = profile.ItemStack{TypeID: item.Type, Count: item.Count, Data: data}
	}
	return out
}

func (c *Codec) treeFloat(fields map[string]yaml.Node, name string, def float64) float64 {
	node, ok := fields[name]
	if !ok || node.IsZero() {
		return def
	}
	var v float64
	if err := node.Decode(&v); err != nil {
		c.warnf("field %s: %v, using default %v", name, err, def)
		return def
	}
	return v
}

func (c *Codec) treeInt(fields map[string]yaml.Node, name string, def int) int {
	node, ok := fields[name]
	if !ok || node.IsZero() {
		return def
	}
	var v int
	if err := node.Decode(&v); err != nil {
		c.warnf("field %s: %v, using default %v", name, err, def)
		return def
	}
	return v
}
