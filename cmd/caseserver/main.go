// Package main provides the case server binary that serves the case-opening
// HTTP API backed by PostgreSQL.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/caseserver"
	"github.com/dropforge/dropforge/internal/catalog"
	"github.com/dropforge/dropforge/internal/config"
	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/opening"
	"github.com/dropforge/dropforge/internal/game/pity"
	"github.com/dropforge/dropforge/internal/game/rng"
	"github.com/dropforge/dropforge/internal/game/session"
	"github.com/dropforge/dropforge/internal/game/settle"
	"github.com/dropforge/dropforge/internal/observability"
	"github.com/dropforge/dropforge/internal/server"
	"github.com/dropforge/dropforge/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	casesDir := flag.String("cases-dir", "", "path to case YAML files; overrides game.cases_dir")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *casesDir != "" {
		cfg.Game.CasesDir = *casesDir
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	src := rng.NewCryptoSource()

	rules, err := pityRules(cfg.Game)
	if err != nil {
		logger.Fatal("building pity rules", zap.Error(err))
	}

	// Load the case catalog. Every case must satisfy the guaranteed tiers.
	catStart := time.Now()
	defs, err := catalog.LoadCasesFromDir(cfg.Game.CasesDir, rules.Tiers())
	if err != nil {
		logger.Fatal("loading case definitions", zap.Error(err))
	}
	store, err := catalog.NewStore(defs)
	if err != nil {
		logger.Fatal("indexing case definitions", zap.Error(err))
	}
	logger.Info("catalog loaded",
		zap.Int("cases", store.Len()),
		zap.Duration("elapsed", time.Since(catStart)),
	)

	// Connect to PostgreSQL.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	db := pool.DB()
	balances := postgres.NewBalanceRepository(db)
	outcomes := postgres.NewOutcomeRepository(db)
	inventory := postgres.NewInventoryRepository(db)
	revenue := postgres.NewRevenueRepository(db)
	pityStore := postgres.NewPityRepository(db)

	pityLedger := pity.NewLedger(rules, pityStore, src)
	resolver := opening.NewResolver(pityLedger, revenue, src, logger)
	engine := settle.NewEngine(outcomes, balances, inventory, cfg.Game.SellBackRate, logger)

	manager := session.NewManager(store, resolver, engine, balances, revenue, outcomes, src,
		session.Config{
			MaxOpenings:     cfg.Game.MaxOpenings,
			DecisionTimeout: cfg.Game.DecisionTimeout,
			SweepInterval:   cfg.Game.SweepInterval,
			Spin: opening.SpinConfig{
				Length:     cfg.Game.Spin.Length,
				WinSlotMin: cfg.Game.Spin.WinSlotMin,
				WinSlotMax: cfg.Game.Spin.WinSlotMax,
			},
			PityScope: cfg.Game.PityScope,
		},
		logger,
	)

	httpService := caseserver.NewService(manager, pool, logger, cfg.Server)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("http", httpService)
	lifecycle.Add("session-sweep", manager)
	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("case server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// pityRules converts the configured guarantee ranges into validated rules.
func pityRules(cfg config.GameConfig) (pity.Rules, error) {
	rules := make(pity.Rules, 0, len(cfg.Pity))
	for _, rc := range cfg.Pity {
		tier, err := loot.ParseTier(rc.Tier)
		if err != nil {
			return nil, err
		}
		rules = append(rules, pity.Rule{
			Tier:         tier,
			MinThreshold: rc.MinThreshold,
			MaxThreshold: rc.MaxThreshold,
		})
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}
