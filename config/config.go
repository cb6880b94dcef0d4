// Package config loads engine configuration from a JSON file with
// environment variable overrides. Environment values take precedence
// over the file; defaults fill anything left unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"paper-trading-engine/internal/database"
	"paper-trading-engine/internal/engine"
	"paper-trading-engine/internal/ledger"
	"paper-trading-engine/internal/risk"
	"paper-trading-engine/internal/strategy"
)

type Config struct {
	CycleSeconds int            `json:"cycle_seconds"` // seconds between engine cycles
	Engine       engine.Config  `json:"engine"`
	Strategy     StrategyConfig `json:"strategy"`
	Ledger       LedgerConfig   `json:"ledger"`

	// Risk pipeline stages, in execution order.
	Sentiment   risk.SentimentConfig   `json:"sentiment"`
	TimeFilter  risk.TimeFilterConfig  `json:"time_filter"`
	Correlation risk.CorrelationConfig `json:"correlation"`
	LossPattern risk.LossPatternConfig `json:"loss_pattern"`
	Volatility  risk.VolatilityConfig  `json:"volatility"`
	Sizing      risk.SizingConfig      `json:"sizing"`
	Martingale  risk.MartingaleConfig  `json:"martingale"`

	Market   MarketConfig         `json:"market"`
	Database database.Config      `json:"database"`
	Redis    database.RedisConfig `json:"redis"`
	Logging  LoggingConfig        `json:"logging"`
}

// MarketConfig holds the market data endpoint settings.
type MarketConfig struct {
	BaseURL string `json:"base_url"`
}

// StrategyConfig selects and parameterizes the signal strategy.
type StrategyConfig struct {
	Name           string                        `json:"name"`
	MultiTimeframe strategy.MultiTimeframeConfig `json:"multi_timeframe"`
	RSIMACrossover strategy.RSIMACrossoverConfig `json:"rsi_ma_crossover"`
}

// LedgerConfig holds the paper account settings.
type LedgerConfig struct {
	InitialBalance float64               `json:"initial_balance"`
	Trailing       ledger.TrailingConfig `json:"trailing"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
}

// Default returns a fully populated configuration.
func Default() *Config {
	return &Config{
		CycleSeconds: 60,
		Engine:       engine.DefaultConfig(),
		Strategy: StrategyConfig{
			Name:           "multi_timeframe",
			MultiTimeframe: strategy.DefaultMultiTimeframeConfig(),
			RSIMACrossover: strategy.DefaultRSIMACrossoverConfig(),
		},
		Ledger: LedgerConfig{
			InitialBalance: 10000,
			Trailing: ledger.TrailingConfig{
				Enabled:       true,
				ActivationPct: 1.5,
				TrailPct:      1.0,
			},
		},
		Sentiment:   risk.DefaultSentimentConfig(),
		TimeFilter:  risk.DefaultTimeFilterConfig(),
		Correlation: risk.DefaultCorrelationConfig(),
		LossPattern: risk.DefaultLossPatternConfig(),
		Volatility:  risk.DefaultVolatilityConfig(),
		Sizing:      risk.DefaultSizingConfig(),
		Martingale:  risk.DefaultMartingaleConfig(),
		Market: MarketConfig{
			BaseURL: "https://api.binance.com",
		},
		Database: database.Config{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "paper_trading",
			SSLMode:  "disable",
		},
		Redis: database.RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file is fine; defaults plus environment carry the run.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.CycleSeconds <= 0 {
		return fmt.Errorf("cycle_seconds must be positive, got %d", c.CycleSeconds)
	}
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Ledger.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive, got %f", c.Ledger.InitialBalance)
	}
	if c.Engine.Defaults.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %d", c.Engine.Defaults.Leverage)
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	return nil
}

// applyEnvOverrides applies environment variables on top of the loaded
// configuration. Only variables that are actually set take effect.
func applyEnvOverrides(cfg *Config) {
	if symbols, ok := os.LookupEnv("TRADING_SYMBOLS"); ok {
		cfg.Engine.Symbols = splitSymbols(symbols)
	}
	overrideInt("CYCLE_SECONDS", &cfg.CycleSeconds)
	overrideFloat("INITIAL_BALANCE", &cfg.Ledger.InitialBalance)
	overrideString("STRATEGY_NAME", &cfg.Strategy.Name)

	overrideString("BINANCE_BASE_URL", &cfg.Market.BaseURL)

	overrideBool("DATABASE_ENABLED", &cfg.Database.Enabled)
	overrideString("DATABASE_HOST", &cfg.Database.Host)
	overrideInt("DATABASE_PORT", &cfg.Database.Port)
	overrideString("DATABASE_USER", &cfg.Database.User)
	overrideString("DATABASE_PASSWORD", &cfg.Database.Password)
	overrideString("DATABASE_NAME", &cfg.Database.Database)
	overrideString("DATABASE_SSL_MODE", &cfg.Database.SSLMode)

	overrideBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	overrideString("REDIS_ADDR", &cfg.Redis.Addr)
	overrideString("REDIS_PASSWORD", &cfg.Redis.Password)
	overrideInt("REDIS_DB", &cfg.Redis.DB)

	overrideString("LOG_LEVEL", &cfg.Logging.Level)
	overrideBool("LOG_JSON", &cfg.Logging.JSONFormat)
}

func splitSymbols(raw string) []string {
	var symbols []string
	for _, symbol := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(symbol); trimmed != "" {
			symbols = append(symbols, strings.ToUpper(trimmed))
		}
	}
	return symbols
}

func overrideString(key string, target *string) {
	if value, ok := os.LookupEnv(key); ok {
		*target = value
	}
}

func overrideInt(key string, target *int) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(key string, target *float64) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(key string, target *bool) {
	if value, ok := os.LookupEnv(key); ok {
		*target = value == "true" || value == "1"
	}
}
