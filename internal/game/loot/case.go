package loot

import "fmt"

// LootEntry is one item a case can drop, with its drop weight and tier.
type LootEntry struct {
	// Name identifies the item within its case.
	Name string `yaml:"name"`
	// Value is the item's worth in currency minor units.
	Value int64 `yaml:"value"`
	// DropWeight is the entry's relative weight in the natural draw.
	DropWeight int `yaml:"weight"`
	// Tier is the entry's rarity classification.
	Tier RarityTier `yaml:"tier"`
}

// CaseDefinition describes a purchasable case and its drop pool.
// Definitions are immutable for the duration of a resolution; the catalog
// owns mutation.
type CaseDefinition struct {
	// ID identifies the case in the catalog.
	ID string `yaml:"id"`
	// Price is the cost of one opening in currency minor units.
	Price int64 `yaml:"price"`
	// Entries is the ordered drop pool. Weights need not sum to any
	// fixed total; they are normalized by the sampler.
	Entries []LootEntry `yaml:"entries"`
}

// Validate checks that the case definition satisfies its invariants.
//
// Precondition: guaranteedTiers lists the tiers that carry a pity rule;
// the case must contain at least one entry for each of them.
// Postcondition: returns nil iff the definition can be resolved safely.
func (c CaseDefinition) Validate(guaranteedTiers []RarityTier) error {
	if c.ID == "" {
		return fmt.Errorf("case: id must be non-empty")
	}
	if c.Price <= 0 {
		return fmt.Errorf("case %s: price must be > 0, got %d", c.ID, c.Price)
	}
	if len(c.Entries) == 0 {
		return fmt.Errorf("case %s: must have at least one entry", c.ID)
	}
	for i, e := range c.Entries {
		if e.Name == "" {
			return fmt.Errorf("case %s: entry[%d] must have a non-empty name", c.ID, i)
		}
		if e.Value < 0 {
			return fmt.Errorf("case %s: entry %q value must be >= 0, got %d", c.ID, e.Name, e.Value)
		}
		if e.DropWeight <= 0 {
			return fmt.Errorf("case %s: entry %q weight must be > 0, got %d", c.ID, e.Name, e.DropWeight)
		}
		if _, err := ParseTier(string(e.Tier)); err != nil {
			return fmt.Errorf("case %s: entry %q: %w", c.ID, e.Name, err)
		}
	}
	for _, tier := range guaranteedTiers {
		if len(c.EntriesAtTier(tier)) == 0 {
			return fmt.Errorf("case %s: no entries at guaranteed tier %q", c.ID, tier)
		}
	}
	return nil
}

// EntriesAtTier returns the entries belonging to the given tier, in pool order.
func (c CaseDefinition) EntriesAtTier(tier RarityTier) []LootEntry {
	var out []LootEntry
	for _, e := range c.Entries {
		if e.Tier == tier {
			out = append(out, e)
		}
	}
	return out
}

// TopTier returns the rarest tier present in the case.
//
// Precondition: the case must have at least one entry.
func (c CaseDefinition) TopTier() RarityTier {
	top := c.Entries[0].Tier
	for _, e := range c.Entries[1:] {
		if e.Tier.Rank() > top.Rank() {
			top = e.Tier
		}
	}
	return top
}

// NextTierBelow returns the rarest tier present in the case strictly below
// tier, and false if no such tier exists.
func (c CaseDefinition) NextTierBelow(tier RarityTier) (RarityTier, bool) {
	best := RarityTier("")
	found := false
	for _, e := range c.Entries {
		if e.Tier.Rank() >= tier.Rank() {
			continue
		}
		if !found || e.Tier.Rank() > best.Rank() {
			best = e.Tier
			found = true
		}
	}
	return best, found
}
