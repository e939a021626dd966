package loot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/dropforge/internal/game/loot"
)

func TestRarityTier_Rank_Ordering(t *testing.T) {
	assert.Less(t, loot.TierCommon.Rank(), loot.TierRare.Rank())
	assert.Less(t, loot.TierRare.Rank(), loot.TierEpic.Rank())
	assert.Less(t, loot.TierEpic.Rank(), loot.TierLegendary.Rank())
}

func TestRarityTier_Rank_PanicsOnUnknown(t *testing.T) {
	assert.Panics(t, func() { loot.RarityTier("mythic").Rank() })
}

func TestRarityTier_AtLeast(t *testing.T) {
	assert.True(t, loot.TierLegendary.AtLeast(loot.TierRare))
	assert.True(t, loot.TierRare.AtLeast(loot.TierRare))
	assert.False(t, loot.TierCommon.AtLeast(loot.TierRare))
}

func TestParseTier_Valid(t *testing.T) {
	for _, s := range []string{"common", "rare", "epic", "legendary"} {
		tier, err := loot.ParseTier(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(tier))
	}
}

func TestParseTier_Unknown(t *testing.T) {
	_, err := loot.ParseTier("mythic")
	assert.Error(t, err)
}

func TestTiers_AscendingRank(t *testing.T) {
	for i := 1; i < len(loot.Tiers); i++ {
		assert.Greater(t, loot.Tiers[i].Rank(), loot.Tiers[i-1].Rank())
	}
}
