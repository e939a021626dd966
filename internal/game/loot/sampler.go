package loot

import (
	"errors"
	"fmt"

	"github.com/dropforge/dropforge/internal/game/rng"
)

// ErrInvalidDistribution is returned when a drop pool cannot be sampled:
// empty entry list or a non-positive weight. This is a catalog
// configuration error and is never retried.
var ErrInvalidDistribution = errors.New("invalid drop distribution")

// Sample draws one entry according to the cumulative-weight distribution.
// Weights need not sum to any fixed total.
//
// Precondition: src must be non-nil.
// Postcondition: deterministic given a fixed src stream; no side effects.
// Each entry is selected with probability weight/totalWeight.
func Sample(entries []LootEntry, src rng.Source) (LootEntry, error) {
	if len(entries) == 0 {
		return LootEntry{}, fmt.Errorf("%w: empty entry list", ErrInvalidDistribution)
	}
	total := 0
	for _, e := range entries {
		if e.DropWeight <= 0 {
			return LootEntry{}, fmt.Errorf("%w: entry %q has weight %d", ErrInvalidDistribution, e.Name, e.DropWeight)
		}
		total += e.DropWeight
	}

	r := src.Intn(total)
	cumulative := 0
	for _, e := range entries {
		cumulative += e.DropWeight
		if r < cumulative {
			return e, nil
		}
	}
	// Unreachable: r < total == final cumulative.
	return entries[len(entries)-1], nil
}

// SampleUniform draws one entry with equal probability, ignoring weights.
// Used for forced-tier selection, where the guarantee fixes the tier but
// not the item.
//
// Precondition: src must be non-nil.
func SampleUniform(entries []LootEntry, src rng.Source) (LootEntry, error) {
	if len(entries) == 0 {
		return LootEntry{}, fmt.Errorf("%w: empty entry list", ErrInvalidDistribution)
	}
	return entries[src.Intn(len(entries))], nil
}
