package sniper

import (
	"strings"
	"time"
)

// chooseSlot picks the candidate for t: the first preferred time that has
// a matching slot, otherwise the earliest matching slot in the window.
func chooseSlot(t Target, available []Slot) (Slot, bool) {
	var matching []Slot
	for _, s := range available {
		if isSlotMatch(t, s) {
			matching = append(matching, s)
		}
	}
	if len(matching) == 0 {
		return Slot{}, false
	}

	// Keep the earliest slot per minute.
	byMinute := make(map[int64]Slot, len(matching))
	for _, s := range matching {
		k := s.Start.Truncate(time.Minute).Unix()
		if existing, ok := byMinute[k]; ok && !s.Start.Before(existing.Start) {
			continue
		}
		byMinute[k] = s
	}
	for _, p := range t.Preferred {
		if s, ok := byMinute[p.Truncate(time.Minute).Unix()]; ok {
			return s, true
		}
	}

	best := matching[0]
	for _, s := range matching[1:] {
		if s.Start.Before(best.Start) {
			best = s
		}
	}
	return best, true
}

func isSlotMatch(t Target, s Slot) bool {
	if s.Token == "" {
		return false
	}
	if s.Start.Before(t.WindowStart) || s.Start.After(t.WindowEnd) {
		return false
	}
	if s.MinSize > 0 && t.PartySize < s.MinSize {
		return false
	}
	if s.MaxSize > 0 && t.PartySize > s.MaxSize {
		return false
	}
	if len(t.Types) == 0 {
		return true
	}
	for _, rt := range t.Types {
		if strings.EqualFold(strings.TrimSpace(rt), s.Type) {
			return true
		}
	}
	return false
}
