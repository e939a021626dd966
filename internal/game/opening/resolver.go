package opening

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/pity"
	"github.com/dropforge/dropforge/internal/game/rng"
)

// Resolver orchestrates one opening: consults the pity ledger, falls back
// to the weighted sampler when no guarantee fires, applies the revenue
// throttle, and records the granted tier back into the ledger.
//
// Callers must serialize Resolve calls per user (the session layer holds a
// per-user lock); cross-user calls are safe concurrently.
type Resolver struct {
	pity    *pity.Ledger
	revenue RevenueBook
	src     rng.Source
	logger  *zap.Logger
}

// NewResolver creates a Resolver.
//
// Precondition: ledger, revenue, src, and logger must be non-nil.
func NewResolver(ledger *pity.Ledger, revenue RevenueBook, src rng.Source, logger *zap.Logger) *Resolver {
	return &Resolver{pity: ledger, revenue: revenue, src: src, logger: logger}
}

// Resolve commits one outcome for userID opening def. scopeID selects the
// pity scope (normally the case ID).
//
// Postcondition: on success the pity counters reflect the granted tier and
// the returned Outcome is final; it is never re-rolled.
func (r *Resolver) Resolve(ctx context.Context, def loot.CaseDefinition, userID, scopeID string) (Outcome, error) {
	forcedTier, forced, err := r.pity.ForcedTier(ctx, userID, scopeID)
	if err != nil {
		return Outcome{}, err
	}

	var entry loot.LootEntry
	if forced {
		// The guarantee fixes the tier, not the item: equal weight within
		// the forced tier.
		tierEntries := def.EntriesAtTier(forcedTier)
		if len(tierEntries) == 0 {
			return Outcome{}, fmt.Errorf("%w: case %s has no entries at forced tier %q",
				pity.ErrInvalidPityConfig, def.ID, forcedTier)
		}
		entry, err = loot.SampleUniform(tierEntries, r.src)
		if err != nil {
			return Outcome{}, err
		}
	} else {
		entry, err = loot.Sample(def.Entries, r.src)
		if err != nil {
			return Outcome{}, err
		}
	}

	throttled := false
	if !forced {
		entry, throttled, err = r.applyThrottle(ctx, def, entry)
		if err != nil {
			return Outcome{}, err
		}
	}

	// Granting a top-tier item consumes bracket revenue, whether natural
	// or forced. Common-only cases have no top tier to meter.
	var valueDebited int64
	if entry.Tier == def.TopTier() && entry.Tier != loot.TierCommon {
		if err := r.revenue.Add(ctx, BracketFor(def.Price), -entry.Value); err != nil {
			return Outcome{}, fmt.Errorf("debiting revenue book: %w", err)
		}
		valueDebited = entry.Value
	}

	if err := r.pity.RecordOpening(ctx, userID, scopeID, entry.Tier, forced); err != nil {
		// The grant is abandoned, so the item value must flow back into the
		// bracket before the session layer refunds the charge.
		if valueDebited > 0 {
			if revErr := r.revenue.Add(ctx, BracketFor(def.Price), valueDebited); revErr != nil {
				r.logger.Error("restoring revenue after failed pity update",
					zap.String("user_id", userID),
					zap.String("case_id", def.ID),
					zap.Int64("value", valueDebited),
					zap.Error(revErr),
				)
			}
		}
		return Outcome{}, err
	}

	out := Outcome{
		ID:           uuid.New(),
		UserID:       userID,
		CaseID:       def.ID,
		Entry:        entry,
		Tier:         entry.Tier,
		ForcedByPity: forced,
		Throttled:    throttled,
		CommittedAt:  time.Now().UTC(),
	}

	r.logger.Info("outcome committed",
		zap.String("outcome_id", out.ID.String()),
		zap.String("user_id", userID),
		zap.String("case_id", def.ID),
		zap.String("item", entry.Name),
		zap.String("tier", string(entry.Tier)),
		zap.Bool("forced_by_pity", forced),
		zap.Bool("throttled", throttled),
	)
	return out, nil
}

// applyThrottle downgrades a natural top-tier draw when the price bracket's
// net revenue cannot cover the drawn item's value. The downgrade is
// deterministic: the highest-value entry of the next tier present in the
// case, so a throttled draw is never disguised as a second unlucky roll.
// Forced guarantees are unconditional and never pass through here.
func (r *Resolver) applyThrottle(ctx context.Context, def loot.CaseDefinition, entry loot.LootEntry) (loot.LootEntry, bool, error) {
	top := def.TopTier()
	if entry.Tier != top || top == loot.TierCommon {
		return entry, false, nil
	}

	net, err := r.revenue.Net(ctx, BracketFor(def.Price))
	if err != nil {
		return loot.LootEntry{}, false, fmt.Errorf("reading revenue book: %w", err)
	}
	if net >= entry.Value {
		return entry, false, nil
	}

	downTier, ok := def.NextTierBelow(top)
	if !ok {
		// Single-tier case: nothing to downgrade to, grant as drawn.
		return entry, false, nil
	}
	downgraded := def.EntriesAtTier(downTier)[0]
	for _, e := range def.EntriesAtTier(downTier) {
		if e.Value > downgraded.Value {
			downgraded = e
		}
	}
	return downgraded, true, nil
}
