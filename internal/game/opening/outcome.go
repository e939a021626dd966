// Package opening resolves case openings: the committed outcome of each
// opening, the economic throttle on top-tier drops, and the decorative spin
// sequence built around a committed outcome.
package opening

import (
	"time"

	"github.com/google/uuid"

	"github.com/dropforge/dropforge/internal/game/loot"
)

// Outcome is the immutable record of one resolved opening. It is created
// exactly once per opening and consumed exactly once by settlement, keyed
// by ID.
type Outcome struct {
	// ID is the settlement idempotency key.
	ID uuid.UUID
	// UserID is the opener.
	UserID string
	// CaseID is the case that was opened.
	CaseID string
	// Entry is the granted item.
	Entry loot.LootEntry
	// Tier is Entry's rarity tier, recorded for audit.
	Tier loot.RarityTier
	// ForcedByPity is true when a fired guarantee fixed the tier.
	ForcedByPity bool
	// Throttled is true when a natural top-tier draw was downgraded by the
	// revenue throttle.
	Throttled bool
	// CommittedAt is the resolution timestamp (UTC).
	CommittedAt time.Time
}
