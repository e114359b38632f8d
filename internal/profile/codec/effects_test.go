package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PCX-SH/xinventories/internal/profile"
)

func TestEffectsRoundTrip(t *testing.T) {
	c := New(nil)
	effects := []profile.StatusEffect{
		{Type: "speed", Duration: 1200, Amplifier: 1, Ambient: true, Particles: false, Icon: true},
		{Type: "regeneration", Duration: 80, Amplifier: 0},
	}

	s := c.EncodeEffects(effects)
	want := "speed:1200:1:1:0:1;regeneration:80:0:0:0:0"
	if s != want {
		t.Fatalf("expected %q, got %q", want, s)
	}

	got := c.DecodeEffects(s)
	if diff := cmp.Diff(effects, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEffectsNamespacedTypeRoundTrip(t *testing.T) {
	c := New(nil)
	effects := []profile.StatusEffect{
		{Type: "minecraft:speed", Duration: 600, Amplifier: 2, Particles: true},
	}

	s := c.EncodeEffects(effects)
	// The namespaced type contains a colon, so the entry has seven fields.
	want := "minecraft:speed:600:2:0:1:0"
	if s != want {
		t.Fatalf("expected %q, got %q", want, s)
	}

	got := c.DecodeEffects(s)
	if diff := cmp.Diff(effects, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEffectsMixedFormats(t *testing.T) {
	c := New(nil)
	got := c.DecodeEffects("minecraft:strength:100:0:0:0:0;haste:40:1:0:0:1")

	if len(got) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(got))
	}
	if got[0].Type != "minecraft:strength" {
		t.Fatalf("expected namespaced type, got %q", got[0].Type)
	}
	if got[1].Type != "haste" || !got[1].Icon {
		t.Fatalf("bare effect decoded wrong: %+v", got[1])
	}
}

func TestDecodeEffectsSkipsMalformedEntries(t *testing.T) {
	c := New(nil)
	got := c.DecodeEffects("speed:100:1:0:0:0;garbage;slowness:40:0:0:0:0")

	if len(got) != 2 {
		t.Fatalf("expected malformed entry skipped, got %d effects", len(got))
	}
	if got[0].Type != "speed" || got[1].Type != "slowness" {
		t.Fatalf("wrong survivors: %+v", got)
	}
}

func TestDecodeEffectsBadNumberFallsBackToZero(t *testing.T) {
	c := New(nil)
	got := c.DecodeEffects("speed:NaN:1:0:0:0")

	if len(got) != 1 {
		t.Fatalf("expected 1 effect, got %d", len(got))
	}
	if got[0].Duration != 0 || got[0].Amplifier != 1 {
		t.Fatalf("expected duration fallback to 0, got %+v", got[0])
	}
}

func TestDecodeEffectsEmpty(t *testing.T) {
	c := New(nil)
	if got := c.DecodeEffects(""); got != nil {
		t.Fatalf("expected nil for empty string, got %v", got)
	}
	if got := c.DecodeEffects("  "); got != nil {
		t.Fatalf("expected nil for blank string, got %v", got)
	}
	if got := c.EncodeEffects(nil); got != "" {
		t.Fatalf("expected empty string for no effects, got %q", got)
	}
}
