// Package pity tracks per-user rarity-escalation guarantees: counters of
// openings since the last drop of each guaranteed tier, and randomized
// thresholds that bound how long a dry streak can run.
package pity

import (
	"errors"
	"fmt"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/rng"
)

// ErrInvalidPityConfig is returned when the pity rule set or the case it is
// applied to is misconfigured. Fatal to the request, never retried.
var ErrInvalidPityConfig = errors.New("invalid pity configuration")

// Rule is the guarantee configuration for a single tier: after a guaranteed
// drop, the next threshold is redrawn uniformly from [MinThreshold, MaxThreshold].
type Rule struct {
	Tier         loot.RarityTier
	MinThreshold int
	MaxThreshold int
}

// DrawThreshold draws a fresh threshold uniformly from the rule's range.
//
// Precondition: the rule must have passed Rules.Validate; src must be non-nil.
// Postcondition: MinThreshold <= result <= MaxThreshold.
func (r Rule) DrawThreshold(src rng.Source) int {
	spread := r.MaxThreshold - r.MinThreshold
	if spread == 0 {
		return r.MinThreshold
	}
	return r.MinThreshold + src.Intn(spread+1)
}

// Rules is the full guarantee configuration, one rule per guaranteed tier.
type Rules []Rule

// Validate checks that the rule set satisfies its invariants.
//
// Postcondition: returns nil iff every rule targets a tier above common,
// has 1 <= MinThreshold <= MaxThreshold, and no tier appears twice.
func (rs Rules) Validate() error {
	seen := make(map[loot.RarityTier]bool, len(rs))
	for i, r := range rs {
		if _, err := loot.ParseTier(string(r.Tier)); err != nil {
			return fmt.Errorf("%w: rule[%d]: %v", ErrInvalidPityConfig, i, err)
		}
		if r.Tier == loot.TierCommon {
			return fmt.Errorf("%w: rule[%d]: common tier cannot carry a guarantee", ErrInvalidPityConfig, i)
		}
		if seen[r.Tier] {
			return fmt.Errorf("%w: duplicate rule for tier %q", ErrInvalidPityConfig, r.Tier)
		}
		seen[r.Tier] = true
		if r.MinThreshold < 1 {
			return fmt.Errorf("%w: rule for %q: min threshold must be >= 1, got %d", ErrInvalidPityConfig, r.Tier, r.MinThreshold)
		}
		if r.MinThreshold > r.MaxThreshold {
			return fmt.Errorf("%w: rule for %q: min threshold (%d) must be <= max (%d)", ErrInvalidPityConfig, r.Tier, r.MinThreshold, r.MaxThreshold)
		}
	}
	return nil
}

// Tiers returns the guaranteed tiers in ascending rank order.
func (rs Rules) Tiers() []loot.RarityTier {
	out := make([]loot.RarityTier, 0, len(rs))
	for _, tier := range loot.Tiers {
		if _, ok := rs.ruleFor(tier); ok {
			out = append(out, tier)
		}
	}
	return out
}

// ruleFor returns the rule governing tier, if any.
func (rs Rules) ruleFor(tier loot.RarityTier) (Rule, bool) {
	for _, r := range rs {
		if r.Tier == tier {
			return r, true
		}
	}
	return Rule{}, false
}
