package pity

import (
	"context"
	"fmt"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/rng"
)

// State holds the guarantee counters for one (user, scope, tier) tuple.
//
// Invariant: SinceLast < Threshold. An opening that would push the counter
// to the threshold is forced to the guaranteed tier instead, so the counter
// never reaches it.
type State struct {
	// SinceLast counts openings since the last drop at or above the tier.
	SinceLast int
	// Threshold is the count the guarantee never lets SinceLast reach: the
	// opening that would get it there is forced.
	Threshold int
}

// Store is the keyed persistence port for pity states. Implementations must
// provide per-(userID, scopeID) exclusive read-modify-write so that two
// simultaneous openings never observe the same pre-increment counters.
type Store interface {
	// Mutate loads the states for (userID, scopeID), runs fn on them under
	// an exclusive per-key lock, and persists whatever fn leaves in the map.
	// States are created lazily by callers; a missing tier is simply absent
	// from the map. Never deletes persisted states.
	Mutate(ctx context.Context, userID, scopeID string, fn func(states map[loot.RarityTier]State) error) error
}

// Ledger applies the guarantee rules over a Store.
// Safe for concurrent use; cross-key operations do not contend.
type Ledger struct {
	rules Rules
	store Store
	src   rng.Source
}

// NewLedger creates a Ledger over the given store.
//
// Precondition: rules must have passed Validate; store and src must be non-nil.
func NewLedger(rules Rules, store Store, src rng.Source) *Ledger {
	return &Ledger{rules: rules, store: store, src: src}
}

// Rules returns the ledger's guarantee configuration.
func (l *Ledger) Rules() Rules { return l.rules }

// GuaranteedTiers returns the tiers that carry a guarantee, ascending.
func (l *Ledger) GuaranteedTiers() []loot.RarityTier { return l.rules.Tiers() }

// Peek reads the current counters for every guaranteed tier, creating
// default state (SinceLast 0, freshly drawn threshold) where absent.
func (l *Ledger) Peek(ctx context.Context, userID, scopeID string) (map[loot.RarityTier]State, error) {
	out := make(map[loot.RarityTier]State, len(l.rules))
	err := l.store.Mutate(ctx, userID, scopeID, func(states map[loot.RarityTier]State) error {
		l.ensure(states)
		for tier, st := range states {
			out[tier] = st
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("peeking pity state: %w", err)
	}
	return out, nil
}

// ForcedTier reports which tier, if any, the next opening must grant.
// Checked from the highest tier down; the highest due tier wins when
// several are simultaneously due.
func (l *Ledger) ForcedTier(ctx context.Context, userID, scopeID string) (loot.RarityTier, bool, error) {
	var forced loot.RarityTier
	found := false
	err := l.store.Mutate(ctx, userID, scopeID, func(states map[loot.RarityTier]State) error {
		l.ensure(states)
		for i := len(loot.Tiers) - 1; i >= 0; i-- {
			tier := loot.Tiers[i]
			if _, ok := l.rules.ruleFor(tier); !ok {
				continue
			}
			if st := states[tier]; st.SinceLast+1 >= st.Threshold {
				forced = tier
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("checking forced tier: %w", err)
	}
	return forced, found, nil
}

// RecordOpening updates every guaranteed tier's counters after one opening
// that granted grantedTier. Tiers satisfied by the grant (grantedTier at or
// above them) reset to zero; all others increment. When the grant was forced
// by a fired guarantee, the granted tier's threshold is redrawn from its
// rule's range.
func (l *Ledger) RecordOpening(ctx context.Context, userID, scopeID string, grantedTier loot.RarityTier, forced bool) error {
	if _, err := loot.ParseTier(string(grantedTier)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPityConfig, err)
	}
	err := l.store.Mutate(ctx, userID, scopeID, func(states map[loot.RarityTier]State) error {
		l.ensure(states)
		for _, rule := range l.rules {
			st := states[rule.Tier]
			if grantedTier.AtLeast(rule.Tier) {
				st.SinceLast = 0
				if forced && rule.Tier == grantedTier {
					st.Threshold = rule.DrawThreshold(l.src)
				}
			} else {
				st.SinceLast++
			}
			states[rule.Tier] = st
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording opening: %w", err)
	}
	return nil
}

// ensure creates default state for any guaranteed tier missing from states.
// Defaults are created lazily on a user's first opening in the scope.
func (l *Ledger) ensure(states map[loot.RarityTier]State) {
	for _, rule := range l.rules {
		if _, ok := states[rule.Tier]; !ok {
			states[rule.Tier] = State{SinceLast: 0, Threshold: rule.DrawThreshold(l.src)}
		}
	}
}
