package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-trading-engine/config"
	"paper-trading-engine/internal/database"
	"paper-trading-engine/internal/engine"
	"paper-trading-engine/internal/ledger"
	"paper-trading-engine/internal/logging"
	"paper-trading-engine/internal/market"
	"paper-trading-engine/internal/risk"
	"paper-trading-engine/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.JSONFormat)
	logger.Info().Str("strategy", cfg.Strategy.Name).Strs("symbols", cfg.Engine.Symbols).
		Msg("paper trading engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence is optional: with the database disabled the engine runs
	// purely in memory.
	var repo *database.Repository
	if cfg.Database.Enabled {
		db, err := database.NewDB(cfg.Database, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("database migrations failed")
		}
		repo = database.NewRepository(db)
	}

	redisClient := database.NewRedisClient(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}
	stateStore := database.NewRedisStateStore(redisClient, logger)

	// Market data: Binance klines behind a per-timeframe TTL cache, plus
	// the Fear & Greed index for the sentiment stage.
	binance := market.NewBinanceSource(cfg.Market.BaseURL, logger)
	candles := market.NewCachedCandleSource(binance)
	sentiment := market.NewFearGreedSource(logger)

	registry := strategy.NewRegistry()
	registry.Register("multi_timeframe", func() strategy.Strategy {
		return strategy.NewMultiTimeframe(cfg.Strategy.MultiTimeframe)
	})
	registry.Register("rsi_ma_crossover", func() strategy.Strategy {
		return strategy.NewRSIMACrossover(cfg.Strategy.RSIMACrossover)
	})
	strat, err := registry.Resolve(cfg.Strategy.Name)
	if err != nil {
		logger.Fatal().Err(err).Msg("strategy resolution failed")
	}

	// Historical providers come from the repository when available. The
	// stages treat a nil provider as disabled.
	var hourlyStats risk.HourlyStatsProvider
	var lossPatterns risk.LossPatternProvider
	if repo != nil {
		hourlyStats = repo
		lossPatterns = repo
	}

	tracker := risk.NewPerformanceTracker(50)

	streakMode, streakCount := stateStore.LoadStreak(ctx)
	if streakMode != string(cfg.Martingale.Mode) {
		streakCount = 0
	}
	streak := risk.NewStreakState(cfg.Martingale.Mode, streakCount)

	pipeline := risk.NewPipeline(logger,
		risk.NewSentimentStage(cfg.Sentiment, sentiment, logger),
		risk.NewTimeFilterStage(cfg.TimeFilter, hourlyStats, logger),
		risk.NewCorrelationStage(cfg.Correlation, candles, logger),
		risk.NewLossPatternStage(cfg.LossPattern, lossPatterns, logger),
		risk.NewVolatilityStage(cfg.Volatility, logger),
		risk.NewSizingStage(cfg.Sizing, tracker, logger),
		risk.NewMartingaleStage(cfg.Martingale, streak, logger),
	)

	var tradeStore ledger.TradeStore
	if repo != nil {
		tradeStore = repo
	}
	book := ledger.New(decimal.NewFromFloat(cfg.Ledger.InitialBalance), cfg.Ledger.Trailing, tradeStore, logger)

	if repo != nil {
		restoreLedger(ctx, repo, book, logger)
	}

	var streakStore engine.StreakStore = stateStore
	var contexts engine.EntryContextStore
	if repo != nil {
		contexts = repo
	}

	runner := engine.New(cfg.Engine, candles, strat, pipeline, book,
		streak, tracker, streakStore, contexts, logger)

	logger.Info().Int("cycle_seconds", cfg.CycleSeconds).
		Str("balance", book.Balance().String()).Msg("engine running")
	runner.Run(ctx, time.Duration(cfg.CycleSeconds)*time.Second)

	logger.Info().Str("balance", book.Balance().String()).
		Int("closed_trades", len(book.ClosedTrades())).Msg("shutdown complete")
}

// restoreLedger reconciles the in-memory ledger with persisted state. A
// missing account row means a first run and keeps the configured balance.
func restoreLedger(ctx context.Context, repo *database.Repository, book *ledger.Ledger, logger zerolog.Logger) {
	balance, peakBalance, found, err := repo.LoadAccount(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("account restore failed, starting from configured balance")
		return
	}
	if !found {
		return
	}

	positions, err := repo.LoadOpenPositions(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("position restore failed, starting from configured balance")
		return
	}

	book.Restore(balance, peakBalance, positions)
	logger.Info().Str("balance", balance.String()).Int("open_positions", len(positions)).
		Msg("ledger state restored")
}
