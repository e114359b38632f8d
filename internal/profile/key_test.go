package profile

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestKeyStringWithoutMode(t *testing.T) {
	id := uuid.MustParse("0f9ab310-7a35-4c77-8f4a-2f8a11dd6bba")
	key := NewKey(id, "world")

	want := "0f9ab310-7a35-4c77-8f4a-2f8a11dd6bba_world"
	if got := key.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestKeyStringLowercasesMode(t *testing.T) {
	id := uuid.MustParse("0f9ab310-7a35-4c77-8f4a-2f8a11dd6bba")
	key := NewModeKey(id, "world", ModeCreative)

	if got := key.String(); !strings.HasSuffix(got, "_world_creative") {
		t.Fatalf("expected lowercase mode suffix, got %q", got)
	}
}

func TestKeyModeNoneIsDistinct(t *testing.T) {
	id := uuid.New()
	plain := NewKey(id, "world")
	survival := NewModeKey(id, "world", ModeSurvival)

	if plain.String() == survival.String() {
		t.Fatal("mode-less key must not collide with a mode key")
	}
}

func TestParseGameMode(t *testing.T) {
	cases := []struct {
		in   string
		want GameMode
	}{
		{"", ModeNone},
		{"  ", ModeNone},
		{"SURVIVAL", ModeSurvival},
		{"survival", ModeSurvival},
		{"Creative", ModeCreative},
		{"ADVENTURE", ModeAdventure},
		{"spectator", ModeSpectator},
		{"hardcore", GameMode("HARDCORE")},
	}
	for _, tc := range cases {
		if got := ParseGameMode(tc.in); got != tc.want {
			t.Fatalf("ParseGameMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeyValidate(t *testing.T) {
	if err := (Key{Partition: "world"}).Validate(); err == nil {
		t.Fatal("expected error for nil entity id")
	}
	if err := (Key{EntityID: uuid.New()}).Validate(); err == nil {
		t.Fatal("expected error for empty partition")
	}
	if err := (Key{EntityID: uuid.New(), Partition: " "}).Validate(); err == nil {
		t.Fatal("expected error for blank partition")
	}
	if err := NewKey(uuid.New(), "world").Validate(); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
}
