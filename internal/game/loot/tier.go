// Package loot defines case and item schemas plus weighted item sampling.
package loot

import "fmt"

// RarityTier classifies loot entries by value rank.
type RarityTier string

// Rarity tiers in ascending value order.
const (
	TierCommon    RarityTier = "common"
	TierRare      RarityTier = "rare"
	TierEpic      RarityTier = "epic"
	TierLegendary RarityTier = "legendary"
)

// tierRanks gives the total order over tiers. Higher rank means rarer.
var tierRanks = map[RarityTier]int{
	TierCommon:    0,
	TierRare:      1,
	TierEpic:      2,
	TierLegendary: 3,
}

// Tiers lists all tiers in ascending rank order.
var Tiers = []RarityTier{TierCommon, TierRare, TierEpic, TierLegendary}

// Rank returns the tier's position in the value order (common == 0).
//
// Precondition: t must be a valid tier (use ParseTier to check).
func (t RarityTier) Rank() int {
	rank, ok := tierRanks[t]
	if !ok {
		panic(fmt.Sprintf("loot: unknown rarity tier %q", string(t)))
	}
	return rank
}

// AtLeast reports whether t is the same tier as other or rarer.
func (t RarityTier) AtLeast(other RarityTier) bool {
	return t.Rank() >= other.Rank()
}

// ParseTier converts a string into a RarityTier.
//
// Postcondition: returns a valid tier or a non-nil error.
func ParseTier(s string) (RarityTier, error) {
	t := RarityTier(s)
	if _, ok := tierRanks[t]; !ok {
		return "", fmt.Errorf("loot: unknown rarity tier %q", s)
	}
	return t, nil
}
