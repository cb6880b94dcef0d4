package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss     = "stop_loss"
	ExitTakeProfit   = "take_profit"
	ExitTrailingStop = "trailing_stop"
	ExitReversal     = "reversal"
	ExitManual       = "manual"
)

// Position is an open leveraged position. A zero StopLossPrice or
// TakeProfitPrice means the level is not set. Positions are created by
// Open, mutated only by trailing updates and terminated by Close; a close
// is always all-or-nothing.
type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"` // base-asset amount
	Leverage   int             `json:"leverage"`
	Margin     decimal.Decimal `json:"margin"` // entry_price * quantity / leverage

	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`

	// Trailing-stop sub-state: best price seen since entry (highest for
	// longs, lowest for shorts) and whether the trail is armed.
	BestPrice      decimal.Decimal `json:"best_price"`
	TrailingActive bool            `json:"trailing_active"`

	OpenedAt time.Time `json:"opened_at"`
}

// UnrealizedPnL computes the directional P&L at the given price.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.Side == SideLong {
		return price.Sub(p.EntryPrice).Mul(p.Quantity)
	}
	return p.EntryPrice.Sub(price).Mul(p.Quantity)
}

// ClosedTrade is the immutable, append-only record of a terminated
// position. It feeds the historical loss-pattern summary and reporting.
type ClosedTrade struct {
	PositionID string          `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Leverage   int             `json:"leverage"`
	Margin     decimal.Decimal `json:"margin"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent decimal.Decimal `json:"pnl_percent"` // P&L relative to margin
	ExitReason string          `json:"exit_reason"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// Win reports whether the trade realized a profit.
func (t *ClosedTrade) Win() bool {
	return t.PnL.IsPositive()
}
