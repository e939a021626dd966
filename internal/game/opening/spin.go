package opening

import (
	"fmt"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/rng"
)

// SpinConfig shapes the decorative spin sequence built for each outcome.
type SpinConfig struct {
	// Length is the total number of slots in the sequence.
	Length int
	// WinSlotMin and WinSlotMax bound the winning slot (inclusive), keeping
	// the animated stop point away from the sequence edges.
	WinSlotMin int
	WinSlotMax int
}

// DefaultSpinConfig matches the client's reel animation: 50 slots with the
// stop point in the central 20-29 band.
func DefaultSpinConfig() SpinConfig {
	return SpinConfig{Length: 50, WinSlotMin: 20, WinSlotMax: 29}
}

// Validate checks the spin configuration invariants.
func (c SpinConfig) Validate() error {
	if c.Length < 1 {
		return fmt.Errorf("spin: length must be >= 1, got %d", c.Length)
	}
	if c.WinSlotMin < 0 || c.WinSlotMax < c.WinSlotMin || c.WinSlotMax >= c.Length {
		return fmt.Errorf("spin: winning slot range [%d, %d] must sit inside [0, %d]",
			c.WinSlotMin, c.WinSlotMax, c.Length-1)
	}
	return nil
}

// SpinSequence is the presentation payload for one outcome: filler entries
// with the committed outcome placed at WinningSlot. Purely decorative; a
// filler slot may coincidentally equal the winning item elsewhere in the
// sequence without constituting a second win.
type SpinSequence struct {
	Entries     []loot.LootEntry
	WinningSlot int
}

// GenerateSpin builds a spin sequence around an already-committed outcome.
// The winning slot is drawn uniformly from the configured central band; all
// other slots are independent weighted draws over the full pool.
//
// Precondition: cfg must have passed Validate; src must be non-nil.
// Postcondition: len(Entries) == cfg.Length and
// Entries[WinningSlot] == outcome.Entry. Pure function of its inputs plus
// the src stream; never influences the outcome.
func GenerateSpin(def loot.CaseDefinition, outcome Outcome, cfg SpinConfig, src rng.Source) (SpinSequence, error) {
	winSlot := cfg.WinSlotMin + src.Intn(cfg.WinSlotMax-cfg.WinSlotMin+1)

	entries := make([]loot.LootEntry, cfg.Length)
	for i := range entries {
		if i == winSlot {
			entries[i] = outcome.Entry
			continue
		}
		filler, err := loot.Sample(def.Entries, src)
		if err != nil {
			return SpinSequence{}, fmt.Errorf("drawing filler slot %d: %w", i, err)
		}
		entries[i] = filler
	}

	return SpinSequence{Entries: entries, WinningSlot: winSlot}, nil
}
