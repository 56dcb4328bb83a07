package sniper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChooseSlot(t *testing.T) {
	at1830 := day.Add(18*time.Hour + 30*time.Minute)
	at2000 := day.Add(20 * time.Hour)

	t.Run("preferred time beats an earlier slot", func(t *testing.T) {
		got, ok := chooseSlot(testTarget(), []Slot{slotAt(at1830, "a"), slotAt(at1900, "b")})
		assert.True(t, ok)
		assert.Equal(t, "b", got.Token)
	})

	t.Run("preferences are ordered", func(t *testing.T) {
		tgt := testTarget()
		tgt.Preferred = []time.Time{at2000, at1900}
		got, ok := chooseSlot(tgt, []Slot{slotAt(at1900, "b"), slotAt(at2000, "c")})
		assert.True(t, ok)
		assert.Equal(t, "c", got.Token)
	})

	t.Run("falls back to the earliest slot in the window", func(t *testing.T) {
		got, ok := chooseSlot(testTarget(), []Slot{slotAt(at2000, "c"), slotAt(at1830, "a")})
		assert.True(t, ok)
		assert.Equal(t, "a", got.Token)
	})

	t.Run("filters what the target cannot use", func(t *testing.T) {
		tooSmall := slotAt(at1900, "small")
		tooSmall.MaxSize = 1
		patio := slotAt(at1900, "patio")
		patio.Type = "Patio"
		tgt := testTarget()
		tgt.Types = []string{" dining room "}

		_, ok := chooseSlot(tgt, []Slot{
			tooSmall,
			patio,
			slotAt(at1900, ""),
			slotAt(day.Add(22*time.Hour), "late"),
		})
		assert.False(t, ok)
	})

	t.Run("type match ignores case", func(t *testing.T) {
		tgt := testTarget()
		tgt.Types = []string{"DINING ROOM"}
		got, ok := chooseSlot(tgt, []Slot{slotAt(at1900, "b")})
		assert.True(t, ok)
		assert.Equal(t, "b", got.Token)
	})

	t.Run("window bounds are inclusive", func(t *testing.T) {
		tgt := testTarget()
		tgt.Preferred = nil
		got, ok := chooseSlot(tgt, []Slot{slotAt(tgt.WindowEnd, "end")})
		assert.True(t, ok)
		assert.Equal(t, "end", got.Token)
	})
}

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Target)
	}{
		{"venue", func(t *Target) { t.VenueID = " " }},
		{"party size", func(t *Target) { t.PartySize = 0 }},
		{"day", func(t *Target) { t.Day = time.Time{} }},
		{"window", func(t *Target) { t.WindowEnd = time.Time{} }},
		{"inverted window", func(t *Target) { t.WindowEnd = t.WindowStart.Add(-time.Minute) }},
		{"preferred outside window", func(t *Target) { t.Preferred = []time.Time{day.Add(23 * time.Hour)} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tgt := testTarget()
			tt.mutate(&tgt)
			assert.ErrorIs(t, tgt.Validate(), ErrInvalidTarget)
		})
	}
	assert.NoError(t, testTarget().Validate())
}
