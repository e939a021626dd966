// Package main provides an offline Monte Carlo driver for case odds. It runs
// a seeded stream of openings against in-memory stores and prints the
// empirical tier distribution, guarantee fires, and throttle downgrades.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/catalog"
	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/opening"
	"github.com/dropforge/dropforge/internal/game/pity"
	"github.com/dropforge/dropforge/internal/game/rng"
)

func main() {
	casesDir := flag.String("cases-dir", "content/cases", "path to case YAML files")
	caseID := flag.String("case", "", "case ID to simulate (default: first case in the catalog)")
	openings := flag.Int("n", 100000, "number of openings to simulate")
	seed := flag.Uint64("seed", 1, "RNG seed")
	users := flag.Int("users", 1000, "number of simulated users, round-robin")
	flag.Parse()

	logger := zap.NewNop()
	src := rng.NewSeededSource(*seed)

	rules := pity.Rules{
		{Tier: loot.TierRare, MinThreshold: 5, MaxThreshold: 15},
		{Tier: loot.TierEpic, MinThreshold: 20, MaxThreshold: 60},
		{Tier: loot.TierLegendary, MinThreshold: 100, MaxThreshold: 200},
	}
	if err := rules.Validate(); err != nil {
		log.Fatalf("pity rules: %v", err)
	}

	defs, err := catalog.LoadCasesFromDir(*casesDir, rules.Tiers())
	if err != nil {
		log.Fatalf("loading cases: %v", err)
	}
	store, err := catalog.NewStore(defs)
	if err != nil {
		log.Fatalf("indexing cases: %v", err)
	}

	id := *caseID
	if id == "" {
		ids := store.IDs()
		if len(ids) == 0 {
			log.Fatal("catalog is empty")
		}
		id = ids[0]
	}
	def, err := store.Case(context.Background(), id)
	if err != nil {
		log.Fatalf("selecting case: %v", err)
	}

	revenue := opening.NewMemoryRevenueBook()
	pityLedger := pity.NewLedger(rules, pity.NewMemoryStore(), src)
	resolver := opening.NewResolver(pityLedger, revenue, src, logger)

	ctx := context.Background()
	bracket := opening.BracketFor(def.Price)
	tierCounts := make(map[loot.RarityTier]int)
	valueOut := int64(0)
	forced := 0
	throttled := 0

	for i := 0; i < *openings; i++ {
		user := fmt.Sprintf("sim-%d", i%*users)
		if err := revenue.Add(ctx, bracket, def.Price); err != nil {
			log.Fatalf("crediting revenue: %v", err)
		}
		out, err := resolver.Resolve(ctx, def, user, def.ID)
		if err != nil {
			log.Fatalf("resolving opening %d: %v", i, err)
		}
		tierCounts[out.Tier]++
		valueOut += out.Entry.Value
		if out.ForcedByPity {
			forced++
		}
		if out.Throttled {
			throttled++
		}
	}

	net, err := revenue.Net(ctx, bracket)
	if err != nil {
		log.Fatalf("reading revenue: %v", err)
	}

	fmt.Printf("case %q: %d openings, price %d, seed %d\n\n", def.ID, *openings, def.Price, *seed)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "tier\tcount\tfrequency")
	for _, tier := range loot.Tiers {
		count, ok := tierCounts[tier]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.4f%%\n", tier, count, 100*float64(count)/float64(*openings))
	}
	w.Flush()

	fmt.Printf("\nguarantee fires:     %d (%.4f%%)\n", forced, 100*float64(forced)/float64(*openings))
	fmt.Printf("throttle downgrades: %d (%.4f%%)\n", throttled, 100*float64(throttled)/float64(*openings))
	fmt.Printf("gross intake:        %d\n", int64(*openings)*def.Price)
	fmt.Printf("item value granted:  %d\n", valueOut)
	fmt.Printf("bracket net:         %d\n", net)

	// Payout reference at the default sell-back rate.
	payout := int64(math.Floor(float64(valueOut) * 0.8))
	fmt.Printf("sell-all payout:     %d (rate 0.8)\n", payout)
}
