package database

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ClosedTradeRecord is a closed trade as read back from the history
// table. Decimal columns stay as their text form; reporting callers
// format rather than compute.
type ClosedTradeRecord struct {
	ID         int64     `json:"id"`
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice string    `json:"entry_price"`
	ExitPrice  string    `json:"exit_price"`
	Quantity   string    `json:"quantity"`
	Leverage   int       `json:"leverage"`
	PnL        string    `json:"pnl"`
	PnLPercent string    `json:"pnl_percent"`
	ExitReason string    `json:"exit_reason"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// DailySummaryRecord aggregates one day of realized trading results.
type DailySummaryRecord struct {
	Day      time.Time `json:"day"`
	Trades   int       `json:"trades"`
	Wins     int       `json:"wins"`
	TotalPnL string    `json:"total_pnl"`
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
