// Assistant - read-only market view for Polymarket Up/Down windows.
//
// The assistant watches two feeds side by side:
// 1. Binance spot trades for the underlying asset (BTC by default)
// 2. Polymarket's 15-minute Up/Down prediction windows
//
// Every second it selects the window a trader would be watching, pins
// the window's reference price, aligns spot against the market's Up
// odds, computes an ATR envelope, and publishes the consolidated
// snapshot over a small HTTP API. It observes only: no orders, no keys.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/archive"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/assistant"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/binance"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/cache"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/chainlink"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/config"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/database"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/logging"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/notify"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/polymarket"
	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/server"
)

const version = "1.0.0"

func main() {
	// Basic console logging until the configured logger takes over
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(cfg)

	log.Info().
		Str("version", version).
		Str("asset", cfg.Asset).
		Dur("window", cfg.WindowDuration).
		Str("reference", cfg.ReferenceSource).
		Msg("👁️ Assistant starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// ====== OPTIONAL SERVICES ======

	var snapCache *cache.Cache
	if cfg.CacheEnabled() {
		snapCache, err = cache.New(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Redis unavailable, running without cache")
			snapCache = nil
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("🧰 Snapshot cache connected")
		}
	}

	var archiver *archive.Archiver
	if cfg.ArchiveEnabled() {
		archiver, err = archive.New(ctx, archive.Config{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Region: cfg.AWSRegion,
		})
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ S3 archive unavailable, running without it")
			archiver = nil
		} else {
			log.Info().Str("bucket", cfg.S3Bucket).Msg("📦 Window archive enabled")
		}
	}

	var notifier *notify.Notifier
	if cfg.TelegramEnabled() {
		notifier, err = notify.New(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram unavailable, running without notifications")
			notifier = nil
		}
	}

	// ====== CORE COMPONENTS ======

	// 1. Binance feed - live spot trades plus OHLC bars for the ATR
	feed := binance.NewFeed(binance.FeedConfig{
		Symbol:        cfg.Symbol,
		WSBaseURL:     cfg.BinanceWSURL,
		KlineInterval: cfg.KlineInterval,
		KlineLimit:    cfg.KlineLimit,
		KlineRefresh:  cfg.KlineRefresh,
	})
	if err := feed.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start Binance feed")
	}
	log.Info().Str("symbol", cfg.Symbol).Msg("📈 Binance feed connected")

	// 2. Chainlink oracle - only when it anchors the reference price
	var oracle *chainlink.Client
	if cfg.ReferenceSource == "chainlink" {
		feedAddr, known := chainlink.FeedAddressForAsset(cfg.Asset)
		if !known {
			log.Warn().Str("asset", cfg.Asset).Msg("⚠️ No Chainlink feed for asset, reference falls back to spot")
		} else {
			oracle, err = chainlink.NewClient(chainlink.Config{
				RPCURL:       cfg.ChainlinkRPCURL,
				FeedAddress:  feedAddr,
				PollInterval: cfg.ChainlinkPoll,
			})
			if err != nil {
				log.Warn().Err(err).Msg("⚠️ Chainlink unavailable, reference falls back to spot")
				oracle = nil
			} else if err := oracle.Start(); err != nil {
				log.Warn().Err(err).Msg("⚠️ Chainlink start failed, reference falls back to spot")
				oracle = nil
			} else {
				log.Info().Str("feed", feedAddr).Msg("⛓️ Chainlink price feed connected (Polygon)")
			}
		}
	}

	// 3. Polymarket scanner - Up/Down window candidates and live odds
	gamma := polymarket.NewGammaClient(nil).WithBaseURL(cfg.GammaAPIURL)
	clob := polymarket.NewClobClient(nil).WithBaseURL(cfg.ClobAPIURL)
	scanner := polymarket.NewScanner(gamma, clob, polymarket.ScannerConfig{
		Asset:          cfg.Asset,
		Window:         cfg.WindowDuration,
		MarketPoll:     cfg.MarketPollInterval,
		PricePoll:      cfg.PricePollInterval,
		RequestsPerSec: cfg.RequestsPerSec,
		Burst:          cfg.RequestBurst,
	})
	scanner.Start()
	log.Info().Str("asset", cfg.Asset).Msg("🔍 Window scanner started")

	// 4. Engine - the serialized tick pipeline
	deps := assistant.Deps{
		Markets:  scanner,
		Spot:     feed,
		DB:       db,
		Cache:    snapCache,
		Archiver: archiver,
	}
	if oracle != nil {
		deps.Oracle = oracle
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	engine := assistant.NewEngine(assistant.Config{
		Asset:             cfg.Asset,
		WindowDuration:    cfg.WindowDuration,
		TickInterval:      cfg.TickInterval,
		SampleSpacing:     cfg.SampleSpacing,
		HistoryCapacity:   cfg.HistoryCapacity,
		ATRPeriod:         cfg.ATRPeriod,
		ATRMultiplier:     cfg.ATRMultiplier,
		ATRMode:           cfg.ATRMode,
		ReferenceSource:   cfg.ReferenceSource,
		SnapshotRetention: cfg.SnapshotRetention,
	}, deps)
	engine.Start()

	// 5. HTTP API
	srv := server.NewServer(server.Config{Addr: cfg.HTTPAddr}, engine, db)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Periodic status line off the snapshot stream
	statusCh := engine.Subscribe()
	go func() {
		last := time.Now()
		for snap := range statusCh {
			if time.Since(last) < 5*time.Minute {
				continue
			}
			last = time.Now()
			evt := log.Info().Int("points", len(snap.AlignedHistory))
			if snap.SpotPrice != nil {
				evt = evt.Float64("spot", *snap.SpotPrice)
			}
			if snap.SelectedMarket != nil {
				evt = evt.Str("slug", snap.SelectedMarket.Slug).
					Float64("minLeft", snap.SelectedMarket.TimeLeftMinutes)
			}
			evt.Msg("📊 Status")
		}
	}()

	if notifier != nil {
		notifier.Startup(cfg.Asset, cfg.WindowDuration)
	}

	// ====== STARTUP COMPLETE ======
	log.Info().Msg("✅ All systems online")
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════╗")
	log.Info().Msg("║        UP/DOWN WINDOW ASSISTANT          ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msg("║  Read-only: observes, never trades       ║")
	log.Info().Msg("║  → Spot feed vs Up/Down odds             ║")
	log.Info().Msg("║  → Reference price per window            ║")
	log.Info().Msg("║  → ATR envelope around the anchor        ║")
	log.Info().Msg("╚══════════════════════════════════════════╝")
	log.Info().Msg("")
	log.Info().Msgf("💡 Snapshot at http://localhost%s/api/snapshot", cfg.HTTPAddr)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("🛑 Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("🛑 Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️ HTTP shutdown incomplete")
	}

	engine.Stop()
	scanner.Stop()
	feed.Stop()
	if oracle != nil {
		oracle.Stop()
	}
	if notifier != nil {
		notifier.Shutdown()
	}
	if snapCache != nil {
		snapCache.Close()
	}
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Database close failed")
	}

	log.Info().Msg("👋 Goodbye!")
}
