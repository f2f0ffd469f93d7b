// Command citysim runs the Cryptopolis token economy simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cryptopolis/internal/api"
	"cryptopolis/internal/blend"
	"cryptopolis/internal/buildings"
	"cryptopolis/internal/config"
	"cryptopolis/internal/engine"
	"cryptopolis/internal/entropy"
	"cryptopolis/internal/feed"
	"cryptopolis/internal/persistence"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML tuning overrides")
		dbPath     = flag.String("db", "data/cryptopolis.db", "SQLite save file")
		apiPort    = flag.Int("port", 8080, "HTTP API port")
		seed       = flag.Int64("seed", 0, "deterministic RNG seed (0 = crypto random)")
		useFeed    = flag.Bool("feed", true, "drive the blender from the synthetic market feed")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Cryptopolis — crypto city token economy")

	// ── Config ───────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
		slog.Info("config loaded", "path", *configPath)
	}

	// ── Randomness ───────────────────────────────────────────────────
	var rng entropy.Source
	if *seed != 0 {
		rng = entropy.NewSeeded(*seed)
		slog.Info("seeded rng", "seed", *seed)
	} else {
		rng = entropy.NewCrypto()
	}

	// ── Database ─────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(*dbPath), 0755)
	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", *dbPath)

	// ── Simulation ───────────────────────────────────────────────────
	orch := engine.New(cfg, buildings.DefaultCatalog(), rng)

	if db.HasState() {
		st, err := db.LoadState()
		if err != nil {
			slog.Error("failed to load saved state", "error", err)
			os.Exit(1)
		}
		orch.Import(st)
		slog.Info("state restored",
			"tick", st.CurrentTick,
			"balance", st.Treasury.Balance,
			"buildings", len(st.Buildings),
		)
	} else {
		slog.Info("no saved state, starting fresh",
			"balance", cfg.TreasuryStart,
			"catalog", buildings.DefaultCatalog().Len(),
		)
		if err := db.SaveState(orch.Export()); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// Auto-save once per in-game day.
	orch.OnTick(func(s engine.TickSummary) {
		if cfg.TicksPerDay > 0 && s.Tick%uint64(cfg.TicksPerDay) == 0 {
			if err := db.SaveState(orch.Export()); err != nil {
				slog.Error("daily save failed", "error", err)
			}
		}
	})

	// ── Market feed ──────────────────────────────────────────────────
	blender := blend.NewBlender(blend.Options{
		RealSentimentWeight: cfg.RealSentimentWeight,
		SentimentSmoothing:  cfg.SentimentSmoothing,
		YieldClampMin:       cfg.YieldClampMin,
		YieldClampMax:       cfg.YieldClampMax,
		YieldSmoothing:      cfg.YieldSmoothing,
		ExpectedBaseAPY:     cfg.ExpectedBaseAPY,
		TVLDeltaScale:       cfg.TVLDeltaScale,
		TriggerCooldown:     cfg.TriggerCooldownTicks,
		PriceMoveThreshold:  cfg.PriceMoveThreshold,
		SentimentExtreme:    cfg.SentimentExtreme,
		ReversalThreshold:   cfg.ReversalThreshold,
	})
	if *useFeed {
		feedSeed := *seed
		if feedSeed == 0 {
			feedSeed = time.Now().UnixNano()
		}
		gen := feed.New(feedSeed)
		// Refresh the blended signals once per event-check interval.
		orch.OnTick(func(s engine.TickSummary) {
			every := uint64(cfg.EventCheckIntervalMs / cfg.TickIntervalMs)
			if every == 0 {
				every = 1
			}
			if s.Tick%every != 0 {
				return
			}
			snap := gen.Snapshot(s.Tick)
			blended := blender.Blend(snap, s.Sentiment)
			orch.SetRealWorldData(blended)
			orch.SetRealEventTriggers(blender.Triggers(snap, blended, s.Tick))
			orch.SetRealTickerItems(blender.Ticker(snap))
		})
		slog.Info("synthetic market feed enabled", "seed", feedSeed)
	}

	// ── Runner and API ───────────────────────────────────────────────
	runner := engine.NewRunner(orch,
		time.Duration(cfg.TickIntervalMs)*time.Millisecond,
		time.Duration(cfg.EventCheckIntervalMs)*time.Millisecond,
	)

	adminKey := os.Getenv("CITYSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("CITYSIM_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	server := &api.Server{
		Orch:     orch,
		Runner:   runner,
		Blender:  blender,
		DB:       db,
		Port:     *apiPort,
		AdminKey: adminKey,
	}
	server.Start()

	// ── Start ────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("\nCryptopolis is open for business.\n")
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", *apiPort)
	if tick := orch.CurrentTick(); tick > 0 {
		fmt.Printf("Resuming from tick %d\n", tick)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runner.Run(ctx)

	slog.Info("final save...")
	if err := db.SaveState(orch.Export()); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. State saved.")
}
