// Package database persists ledger state, closed trades and the
// aggregated statistics the risk stages read back. PostgreSQL is the
// durable store; Redis mirrors small hot state with an in-memory
// fallback so a Redis outage never stops the engine.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection pool and verifies it.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := &DB{
		Pool:   pool,
		logger: logger.With().Str("component", "Database").Logger(),
	}
	db.logger.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")
	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		// Singleton account row carrying balance and peak balance.
		`CREATE TABLE IF NOT EXISTS account (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			balance DECIMAL(20, 8) NOT NULL,
			peak_balance DECIMAL(20, 8) NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Open positions, deleted on close.
		`CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			leverage INTEGER NOT NULL,
			margin DECIMAL(20, 8) NOT NULL,
			stop_loss_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			take_profit_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			best_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			trailing_active BOOLEAN NOT NULL DEFAULT FALSE,
			opened_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol)`,

		// Append-only record of terminated positions.
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id SERIAL PRIMARY KEY,
			position_id UUID NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			leverage INTEGER NOT NULL,
			margin DECIMAL(20, 8) NOT NULL,
			pnl DECIMAL(20, 8) NOT NULL,
			pnl_percent DECIMAL(10, 4) NOT NULL,
			exit_reason VARCHAR(20) NOT NULL,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_closed_at ON closed_trades(closed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_position ON closed_trades(position_id)`,

		// Market regime at entry time, joined to closed trades for the
		// loss-pattern summary.
		`CREATE TABLE IF NOT EXISTS entry_contexts (
			position_id UUID PRIMARY KEY,
			trend VARCHAR(10) NOT NULL,
			volatility VARCHAR(10) NOT NULL,
			rsi_range VARCHAR(10) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("statements", len(migrations)).Msg("migrations applied")
	return nil
}
