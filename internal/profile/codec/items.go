package codec

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PCX-SH/xinventories/internal/profile"
)

// Compact item-region format for single-column relational storage:
// slot@type@count@base64data entries joined by ";". "@" never occurs in
// item type identifiers, so no escaping is needed. Empty slots are simply
// absent from the string.
const (
	itemFieldSep = "@"
	itemListSep  = ";"
)

// EncodeItems renders a sparse slot region as a compact string. Slots are
// emitted in ascending order so equal regions encode identically.
func (c *Codec) EncodeItems(region map[int]profile.ItemStack) string {
	if len(region) == 0 {
		return ""
	}
	slots := make([]int, 0, len(region))
	for slot := range region {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	parts := make([]string, 0, len(slots))
	for _, slot := range slots {
		item := region[slot]
		parts = append(parts, strings.Join([]string{
			strconv.Itoa(slot),
			item.TypeID,
			strconv.Itoa(item.Count),
			base64.StdEncoding.EncodeToString(item.Data),
		}, itemFieldSep))
	}
	return strings.Join(parts, itemListSep)
}

// DecodeItems parses a compact region string. Malformed entries are
// skipped with a warning; the rest of the region still loads.
func (c *Codec) DecodeItems(s string) map[int]profile.ItemStack {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	region := make(map[int]profile.ItemStack)
	for _, entry := range strings.Split(s, itemListSep) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		slot, item, err := decodeItem(entry)
		if err != nil {
			c.warnf("skipping item entry %q: %v", entry, err)
			continue
		}
		region[slot] = item
	}
	if len(region) == 0 {
		return nil
	}
	return region
}

func decodeItem(entry string) (int, profile.ItemStack, error) {
	fields := strings.Split(entry, itemFieldSep)
	if len(fields) != 4 {
		return 0, profile.ItemStack{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	slot, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, profile.ItemStack{}, fmt.Errorf("bad slot %q: %w", fields[0], err)
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, profile.ItemStack{}, fmt.Errorf("bad count %q: %w", fields[2], err)
	}
	var data []byte
	if fields[3] != "" {
		data, err = base64.StdEncoding.DecodeString(fields[3])
		if err != nil {
			return 0, profile.ItemStack{}, fmt.Errorf("bad item data: %w", err)
		}
	}
	return slot, profile.ItemStack{TypeID: fields[1], Count: count, Data: data}, nil
}
