package codec

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/PCX-SH/xinventories/internal/profile"
)

func TestTreeRoundTrip(t *testing.T) {
	c := New(nil)
	p := sampleProfile(t)
	p.Statistics = &profile.StatsBlock{JSON: `{"mob_kills":9}`}
	p.Achievements = profile.NewStringSet("story/mine_stone")
	p.Recipes = profile.NewStringSet("minecraft:crafting_table", "minecraft:furnace")

	data, err := c.EncodeTree(p)
	if err != nil {
		t.Fatalf("encode tree: %v", err)
	}
	got, err := c.DecodeTree(data)
	if err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if diff := cmp.Diff(p, got, cmp.AllowUnexported(profile.StringSet{})); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTreeAbsentBlocksOmitted(t *testing.T) {
	c := New(nil)
	p := sampleProfile(t)

	data, err := c.EncodeTree(p)
	if err != nil {
		t.Fatalf("encode tree: %v", err)
	}
	doc := string(data)
	if strings.Contains(doc, "stats:") || strings.Contains(doc, "achievements:") || strings.Contains(doc, "recipes:") {
		t.Fatalf("absent blocks must not appear in the document:\n%s", doc)
	}

	got, err := c.DecodeTree(data)
	if err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if got.Statistics != nil || got.Achievements != nil || got.Recipes != nil {
		t.Fatal("absent blocks must decode to nil")
	}
}

func TestTreeEmptySetsCollapseToAbsent(t *testing.T) {
	c := New(nil)
	p := sampleProfile(t)
	p.Achievements = profile.NewStringSet()
	p.Recipes = profile.NewStringSet()

	data, err := c.EncodeTree(p)
	if err != nil {
		t.Fatalf("encode tree: %v", err)
	}
	got, err := c.DecodeTree(data)
	if err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	// Empty and absent sets share a serialized form.
	if got.Achievements != nil || got.Recipes != nil {
		t.Fatal("empty sets must decode to nil")
	}
}

func TestDecodeTreeMissingFieldsUseDefaults(t *testing.T) {
	c := New(nil)
	doc := `
entity_id: aa8a4be5-6f2c-4654-90a4-38de0a1c6785
partition: world
`
	got, err := c.DecodeTree([]byte(doc))
	if err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	want := profile.Vitals{
		Health:     profile.DefaultHealth,
		MaxHealth:  profile.DefaultMaxHealth,
		Food:       profile.DefaultFood,
		Saturation: profile.DefaultSaturation,
		Exhaustion: profile.DefaultExhaustion,
	}
	if got.Vitals != want {
		t.Fatalf("expected default vitals, got %+v", got.Vitals)
	}
	if got.Experience != (profile.Experience{}) {
		t.Fatalf("expected zero experience, got %+v", got.Experience)
	}
}

func TestDecodeTreeBadFieldDegradesToDefault(t *testing.T) {
	c := New(nil)
	doc := `
entity_id: aa8a4be5-6f2c-4654-90a4-38de0a1c6785
partition: world
vitals:
  health: banana
  food: 11
`
	got, err := c.DecodeTree([]byte(doc))
	if err != nil {
		t.Fatalf("one bad field must not fail the document: %v", err)
	}
	if got.Vitals.Health != profile.DefaultHealth {
		t.Fatalf("expected health default, got %v", got.Vitals.Health)
	}
	if got.Vitals.Food != 11 {
		t.Fatalf("valid sibling field lost: food = %d", got.Vitals.Food)
	}
}

func TestDecodeTreeUnparseableDocumentFails(t *testing.T) {
	c := New(nil)
	if _, err := c.DecodeTree([]byte("\t: not yaml {")); err == nil {
		t.Fatal("expected error for unparseable document")
	}
}

func TestDecodeTreeBadEntityIDFails(t *testing.T) {
	c := New(nil)
	_, err := c.DecodeTree([]byte("entity_id: nope\npartition: world\n"))
	if err == nil {
		t.Fatal("expected error for unparseable entity id")
	}
}

func TestTreeSparseRegions(t *testing.T) {
	c := New(nil)
	p := profile.New(profile.NewKey(uuid.New(), "world"))
	p.Inventory[35] = profile.ItemStack{TypeID: "minecraft:elytra", Count: 1}

	data, err := c.EncodeTree(p)
	if err != nil {
		t.Fatalf("encode tree: %v", err)
	}
	got, err := c.DecodeTree(data)
	if err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(got.Inventory) != 1 {
		t.Fatalf("expected single occupied slot, got %d", len(got.Inventory))
	}
	if got.Inventory[35].TypeID != "minecraft:elytra" {
		t.Fatalf("slot 35 lost: %+v", got.Inventory)
	}
	if got.Armor != nil || got.OffHand != nil || got.EnderChest != nil {
		t.Fatal("empty regions must decode to nil, not placeholder maps")
	}
}
