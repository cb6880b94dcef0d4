package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paper-trading-engine/internal/ledger"
	"paper-trading-engine/internal/risk"
)

// Repository provides data access methods. It implements the narrow
// interfaces its consumers declare: ledger.TradeStore, the risk stage
// providers and the engine's entry context store. Decimal values travel
// as text so PostgreSQL numerics never round-trip through floats.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveBalance upserts the singleton account row.
func (r *Repository) SaveBalance(ctx context.Context, balance, peakBalance decimal.Decimal) error {
	query := `
		INSERT INTO account (id, balance, peak_balance, updated_at)
		VALUES (1, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET balance = EXCLUDED.balance, peak_balance = EXCLUDED.peak_balance, updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Pool.Exec(ctx, query, balance.String(), peakBalance.String())
	return err
}

// LoadAccount reads the persisted balance state. found is false when no
// account row exists yet.
func (r *Repository) LoadAccount(ctx context.Context) (balance, peakBalance decimal.Decimal, found bool, err error) {
	query := `SELECT balance::text, peak_balance::text FROM account WHERE id = 1`

	var balanceText, peakText string
	if err = r.db.Pool.QueryRow(ctx, query).Scan(&balanceText, &peakText); err != nil {
		if isNoRows(err) {
			return decimal.Zero, decimal.Zero, false, nil
		}
		return decimal.Zero, decimal.Zero, false, err
	}

	if balance, err = decimal.NewFromString(balanceText); err != nil {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("parse balance: %w", err)
	}
	if peakBalance, err = decimal.NewFromString(peakText); err != nil {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("parse peak balance: %w", err)
	}
	return balance, peakBalance, true, nil
}

// InsertPosition persists an open position.
func (r *Repository) InsertPosition(ctx context.Context, position *ledger.Position) error {
	query := `
		INSERT INTO positions (id, symbol, side, entry_price, quantity, leverage, margin,
		                       stop_loss_price, take_profit_price, best_price, trailing_active, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET stop_loss_price = EXCLUDED.stop_loss_price,
		    best_price = EXCLUDED.best_price,
		    trailing_active = EXCLUDED.trailing_active
	`
	_, err := r.db.Pool.Exec(ctx, query,
		position.ID, position.Symbol, string(position.Side),
		position.EntryPrice.String(), position.Quantity.String(), position.Leverage, position.Margin.String(),
		position.StopLossPrice.String(), position.TakeProfitPrice.String(),
		position.BestPrice.String(), position.TrailingActive, position.OpenedAt,
	)
	return err
}

// DeletePosition removes a position after it closes.
func (r *Repository) DeletePosition(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	return err
}

// LoadOpenPositions reads all persisted open positions for startup
// reconciliation.
func (r *Repository) LoadOpenPositions(ctx context.Context) ([]*ledger.Position, error) {
	query := `
		SELECT id, symbol, side, entry_price::text, quantity::text, leverage, margin::text,
		       stop_loss_price::text, take_profit_price::text, best_price::text, trailing_active, opened_at
		FROM positions
		ORDER BY opened_at
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*ledger.Position
	for rows.Next() {
		var (
			position ledger.Position
			side     string
			decimals [6]string
		)
		err := rows.Scan(
			&position.ID, &position.Symbol, &side, &decimals[0], &decimals[1],
			&position.Leverage, &decimals[2], &decimals[3], &decimals[4], &decimals[5],
			&position.TrailingActive, &position.OpenedAt,
		)
		if err != nil {
			return nil, err
		}

		position.Side = ledger.Side(side)
		targets := []*decimal.Decimal{
			&position.EntryPrice, &position.Quantity, &position.Margin,
			&position.StopLossPrice, &position.TakeProfitPrice, &position.BestPrice,
		}
		for i, target := range targets {
			if *target, err = decimal.NewFromString(decimals[i]); err != nil {
				return nil, fmt.Errorf("parse position %s: %w", position.ID, err)
			}
		}
		positions = append(positions, &position)
	}
	return positions, rows.Err()
}

// InsertClosedTrade appends a terminated position to the trade history.
func (r *Repository) InsertClosedTrade(ctx context.Context, trade *ledger.ClosedTrade) error {
	query := `
		INSERT INTO closed_trades (position_id, symbol, side, entry_price, exit_price, quantity,
		                           leverage, margin, pnl, pnl_percent, exit_reason, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		trade.PositionID, trade.Symbol, string(trade.Side),
		trade.EntryPrice.String(), trade.ExitPrice.String(), trade.Quantity.String(),
		trade.Leverage, trade.Margin.String(), trade.PnL.String(), trade.PnLPercent.String(),
		trade.ExitReason, trade.OpenedAt, trade.ClosedAt,
	)
	return err
}

// SaveEntryContext records the market regime a position was opened under.
func (r *Repository) SaveEntryContext(ctx context.Context, positionID, trend, volatility, rsiRange string) error {
	query := `
		INSERT INTO entry_contexts (position_id, trend, volatility, rsi_range)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (position_id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query, positionID, trend, volatility, rsiRange)
	return err
}

// HourlyStats aggregates realized results by hour of day for the time
// filter stage.
func (r *Repository) HourlyStats(ctx context.Context) ([]risk.HourlyStats, error) {
	query := `
		SELECT EXTRACT(HOUR FROM closed_at)::int AS hour, COUNT(*), COALESCE(SUM(pnl), 0)::float8
		FROM closed_trades
		GROUP BY hour
		ORDER BY hour
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []risk.HourlyStats
	for rows.Next() {
		var s risk.HourlyStats
		if err := rows.Scan(&s.Hour, &s.Trades, &s.TotalPnL); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// LossPatterns aggregates closed trades by the market regime they were
// opened under. Trades without a recorded entry context fall into buckets
// with empty dimensions, which the loss-pattern stage ignores for soft
// factors but still counts for the per-side aggregate.
func (r *Repository) LossPatterns(ctx context.Context) ([]risk.PatternBucket, error) {
	query := `
		SELECT COALESCE(c.trend, ''), COALESCE(c.volatility, ''), t.side, COALESCE(c.rsi_range, ''),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE t.pnl <= 0),
		       COALESCE(SUM(CASE WHEN t.pnl < 0 THEN -t.pnl ELSE 0 END), 0)::float8
		FROM closed_trades t
		LEFT JOIN entry_contexts c ON c.position_id = t.position_id
		GROUP BY 1, 2, 3, 4
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []risk.PatternBucket
	for rows.Next() {
		var b risk.PatternBucket
		if err := rows.Scan(&b.Trend, &b.Volatility, &b.Side, &b.RSIRange, &b.Trades, &b.Losses, &b.TotalLoss); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// TradeHistory retrieves closed trades newest first.
func (r *Repository) TradeHistory(ctx context.Context, limit int) ([]*ClosedTradeRecord, error) {
	query := `
		SELECT id, position_id, symbol, side, entry_price::text, exit_price::text, quantity::text,
		       leverage, pnl::text, pnl_percent::text, exit_reason, opened_at, closed_at
		FROM closed_trades
		ORDER BY closed_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ClosedTradeRecord
	for rows.Next() {
		record := &ClosedTradeRecord{}
		err := rows.Scan(
			&record.ID, &record.PositionID, &record.Symbol, &record.Side,
			&record.EntryPrice, &record.ExitPrice, &record.Quantity, &record.Leverage,
			&record.PnL, &record.PnLPercent, &record.ExitReason, &record.OpenedAt, &record.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DailySummary aggregates realized results for one calendar day.
func (r *Repository) DailySummary(ctx context.Context, day time.Time) (*DailySummaryRecord, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE pnl > 0),
		       COALESCE(SUM(pnl), 0)::text
		FROM closed_trades
		WHERE closed_at >= $1 AND closed_at < $1 + INTERVAL '1 day'
	`
	summary := &DailySummaryRecord{Day: day}
	err := r.db.Pool.QueryRow(ctx, query, day.Truncate(24*time.Hour)).
		Scan(&summary.Trades, &summary.Wins, &summary.TotalPnL)
	if err != nil {
		return nil, err
	}
	return summary, nil
}
