package opening_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/opening"
	"github.com/dropforge/dropforge/internal/game/pity"
	"github.com/dropforge/dropforge/internal/game/rng"
)

// scriptedSource replays a fixed list of draw values, then falls back to a
// seeded stream. Lets a test pin the natural draw while leaving the pity
// ledger's own source untouched.
type scriptedSource struct {
	vals     []int
	i        int
	fallback rng.Source
}

func newScriptedSource(vals ...int) *scriptedSource {
	return &scriptedSource{vals: vals, fallback: rng.NewSeededSource(0)}
}

func (s *scriptedSource) Intn(n int) int {
	if s.i < len(s.vals) {
		v := s.vals[s.i]
		s.i++
		return v % n
	}
	return s.fallback.Intn(n)
}

func resolverCase() loot.CaseDefinition {
	return loot.CaseDefinition{
		ID:    "field-crate",
		Price: 300,
		Entries: []loot.LootEntry{
			{Name: "scrap", Value: 40, DropWeight: 50, Tier: loot.TierCommon},
			{Name: "gloves", Value: 150, DropWeight: 30, Tier: loot.TierCommon},
			{Name: "saber", Value: 2500, DropWeight: 20, Tier: loot.TierLegendary},
		},
	}
}

// Threshold of 2: the first opening draws naturally, a miss leaves the
// counter one short of the threshold, and the second opening is forced.
func legendaryRules() pity.Rules {
	return pity.Rules{{Tier: loot.TierLegendary, MinThreshold: 2, MaxThreshold: 2}}
}

func newResolver(t *testing.T, rules pity.Rules, book opening.RevenueBook, src rng.Source) (*opening.Resolver, *pity.Ledger) {
	t.Helper()
	require.NoError(t, rules.Validate())
	ledger := pity.NewLedger(rules, pity.NewMemoryStore(), rng.NewSeededSource(1))
	return opening.NewResolver(ledger, book, src, zap.NewNop()), ledger
}

func TestResolver_NaturalDraw(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	// r=0 lands in the first cumulative band: scrap.
	res, _ := newResolver(t, legendaryRules(), book, newScriptedSource(0))

	out, err := res.Resolve(context.Background(), resolverCase(), "u1", "field-crate")
	require.NoError(t, err)
	assert.Equal(t, "scrap", out.Entry.Name)
	assert.Equal(t, loot.TierCommon, out.Tier)
	assert.False(t, out.ForcedByPity)
	assert.False(t, out.Throttled)
	assert.NotEqual(t, out.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, out.CommittedAt.IsZero())
}

func TestResolver_NaturalDrawUpdatesPityCounters(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	res, ledger := newResolver(t, legendaryRules(), book, newScriptedSource(0))
	ctx := context.Background()

	_, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.NoError(t, err)

	states, err := ledger.Peek(ctx, "u1", "field-crate")
	require.NoError(t, err)
	assert.Equal(t, 1, states[loot.TierLegendary].SinceLast)
}

func TestResolver_ForcedGrantsGuaranteedTier(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	// A miss on the first opening leaves the second forced regardless of
	// its draw.
	res, ledger := newResolver(t, legendaryRules(), book, newScriptedSource(0, 0))
	ctx := context.Background()

	first, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.NoError(t, err)
	require.False(t, first.ForcedByPity)

	second, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.NoError(t, err)
	assert.True(t, second.ForcedByPity)
	assert.Equal(t, loot.TierLegendary, second.Tier)
	assert.False(t, second.Throttled)

	states, err := ledger.Peek(ctx, "u1", "field-crate")
	require.NoError(t, err)
	assert.Equal(t, 0, states[loot.TierLegendary].SinceLast)
}

func TestResolver_ForcedNeverThrottled(t *testing.T) {
	// Empty revenue book: a natural legendary would be downgraded, a forced
	// one must not be.
	book := opening.NewMemoryRevenueBook()
	res, _ := newResolver(t, legendaryRules(), book, newScriptedSource(0, 0))
	ctx := context.Background()

	_, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.NoError(t, err)
	out, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.NoError(t, err)

	assert.True(t, out.ForcedByPity)
	assert.Equal(t, loot.TierLegendary, out.Tier)

	// The grant still consumes bracket revenue.
	net, err := book.Net(ctx, opening.BracketFor(300))
	require.NoError(t, err)
	assert.Equal(t, int64(-2500), net)
}

func TestResolver_ThrottleDowngradesNaturalTopTier(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	// r=99 lands in the legendary band (50+30 <= 99 < 100).
	res, _ := newResolver(t, legendaryRules(), book, newScriptedSource(99))

	out, err := res.Resolve(context.Background(), resolverCase(), "u1", "field-crate")
	require.NoError(t, err)
	assert.True(t, out.Throttled)
	assert.False(t, out.ForcedByPity)
	assert.Equal(t, loot.TierCommon, out.Tier)
	// Deterministic downgrade: the highest-value entry of the next tier.
	assert.Equal(t, "gloves", out.Entry.Name)
}

func TestResolver_ThrottleAllowsFundedTopTier(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	ctx := context.Background()
	require.NoError(t, book.Add(ctx, opening.BracketFor(300), 3000))

	res, _ := newResolver(t, legendaryRules(), book, newScriptedSource(99))

	out, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.NoError(t, err)
	assert.False(t, out.Throttled)
	assert.Equal(t, loot.TierLegendary, out.Tier)

	net, err := book.Net(ctx, opening.BracketFor(300))
	require.NoError(t, err)
	assert.Equal(t, int64(500), net, "granting the item consumes its value")
}

func TestResolver_ThrottledDrawStillUpdatesPityWithGrantedTier(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	res, ledger := newResolver(t, legendaryRules(), book, newScriptedSource(99))
	ctx := context.Background()

	out, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.NoError(t, err)
	require.True(t, out.Throttled)

	// Counters record the post-throttle tier: the legendary drought continues.
	states, err := ledger.Peek(ctx, "u1", "field-crate")
	require.NoError(t, err)
	assert.Equal(t, 1, states[loot.TierLegendary].SinceLast)
}

func TestResolver_ForcedTierWithoutEntriesFails(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	res, _ := newResolver(t, legendaryRules(), book, newScriptedSource(0, 0))
	ctx := context.Background()

	// Catalog validation would reject this case; simulate the misconfiguration
	// by resolving against a pool with no legendary entries.
	broken := loot.CaseDefinition{
		ID:    "broken",
		Price: 300,
		Entries: []loot.LootEntry{
			{Name: "scrap", Value: 40, DropWeight: 1, Tier: loot.TierCommon},
		},
	}

	_, err := res.Resolve(ctx, broken, "u1", "broken")
	require.NoError(t, err)
	_, err = res.Resolve(ctx, broken, "u1", "broken")
	assert.ErrorIs(t, err, pity.ErrInvalidPityConfig)
}

// flakyPityStore accepts the first ok Mutate calls and rejects the rest.
type flakyPityStore struct {
	inner pity.Store
	ok    int
	calls int
}

func (s *flakyPityStore) Mutate(ctx context.Context, userID, scopeID string, fn func(states map[loot.RarityTier]pity.State) error) error {
	s.calls++
	if s.calls > s.ok {
		return errors.New("pity store offline")
	}
	return s.inner.Mutate(ctx, userID, scopeID, fn)
}

func TestResolver_FailedPityUpdateRestoresRevenue(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	ctx := context.Background()
	require.NoError(t, book.Add(ctx, opening.BracketFor(300), 3000))

	// A threshold of 1 forces the very first opening, so the top-tier value
	// is debited before the pity write. The store accepts the ForcedTier
	// read and rejects the RecordOpening write.
	rules := pity.Rules{{Tier: loot.TierLegendary, MinThreshold: 1, MaxThreshold: 1}}
	require.NoError(t, rules.Validate())
	store := &flakyPityStore{inner: pity.NewMemoryStore(), ok: 1}
	ledger := pity.NewLedger(rules, store, rng.NewSeededSource(1))
	res := opening.NewResolver(ledger, book, newScriptedSource(0), zap.NewNop())

	_, err := res.Resolve(ctx, resolverCase(), "u1", "field-crate")
	require.Error(t, err)

	net, nerr := book.Net(ctx, opening.BracketFor(300))
	require.NoError(t, nerr)
	assert.Equal(t, int64(3000), net, "abandoned grant must hand its value back")
}

func TestResolver_SingleTierCaseNeverThrottles(t *testing.T) {
	book := opening.NewMemoryRevenueBook()
	rules := pity.Rules{{Tier: loot.TierLegendary, MinThreshold: 100, MaxThreshold: 100}}
	res, _ := newResolver(t, rules, book, newScriptedSource(0))

	solo := loot.CaseDefinition{
		ID:    "solo",
		Price: 5000,
		Entries: []loot.LootEntry{
			{Name: "crown", Value: 9000, DropWeight: 1, Tier: loot.TierLegendary},
		},
	}

	out, err := res.Resolve(context.Background(), solo, "u1", "solo")
	require.NoError(t, err)
	assert.False(t, out.Throttled)
	assert.Equal(t, loot.TierLegendary, out.Tier)
}
