package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// Compact status-effect format: one effect per entry, entries joined by
// ";", fields joined by ":". Bare effect types produce six fields; the
// legacy namespaced form ("minecraft:speed") produces seven because the
// type itself contains a colon. Decode sniffs the field count to accept
// both. This layout is a stored format and must not change.
const (
	effectFieldSep = ":"
	effectListSep  = ";"
)

// EncodeEffects renders the compact effect list string.
func (c *Codec) EncodeEffects(effects []profile.StatusEffect) string {
	if len(effects) == 0 {
		return ""
	}
	parts := make([]string, 0, len(effects))
	for _, e := range effects {
		parts = append(parts, strings.Join([]string{
			e.Type,
			strconv.Itoa(e.Duration),
			strconv.Itoa(e.Amplifier),
			encodeBool(e.Ambient),
			encodeBool(e.Particles),
			encodeBool(e.Icon),
		}, effectFieldSep))
	}
	return strings.Join(parts, effectListSep)
}

// DecodeEffects parses the compact effect list string. Malformed entries
// are skipped with a warning; numeric fields inside an otherwise valid
// entry fall back to zero.
func (c *Codec) DecodeEffects(s string) []profile.StatusEffect {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []profile.StatusEffect
	for _, entry := range strings.Split(s, effectListSep) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		effect, err := c.decodeEffect(entry)
		if err != nil {
			c.warnf("skipping status effect %q: %v", entry, err)
			continue
		}
		out = append(out, effect)
	}
	return out
}

func (c *Codec) decodeEffect(entry string) (profile.StatusEffect, error) {
	fields := strings.Split(entry, effectFieldSep)
	var typeName string
	switch len(fields) {
	case 6:
		typeName = fields[0]
		fields = fields[1:]
	case 7:
		// namespaced type occupies the first two fields
		typeName = fields[0] + ":" + fields[1]
		fields = fields[2:]
	default:
		return profile.StatusEffect{}, fmt.Errorf("expected 6 or 7 fields, got %d", len(fields))
	}
	if typeName == "" {
		return profile.StatusEffect{}, fmt.Errorf("empty effect type")
	}
	return profile.StatusEffect{
		Type:      typeName,
		Duration:  c.effectInt(typeName, "duration", fields[0]),
		Amplifier: c.effectInt(typeName, "amplifier", fields[1]),
		Ambient:   decodeBool(fields[2]),
		Particles: decodeBool(fields[3]),
		Icon:      decodeBool(fields[4]),
	}, nil
}

func (c *Codec) effectInt(effect, field, raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.warnf("effect %s: bad %s %q, using 0", effect, field, raw)
		return 0
	}
	return n
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeBool(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}
