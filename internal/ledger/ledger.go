// Package ledger owns the authoritative set of open positions and the
// running paper balance. It is the only component that mutates financial
// state: opening moves capital from balance into margin, closing returns
// the margin plus realized P&L. All money arithmetic uses decimal values
// so thousands of trades cannot accumulate float drift.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance rejects an open whose margin exceeds the
	// available balance. Non-fatal: the engine logs and skips.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPositionNotFound marks a close against an unknown position id.
	// The close is aborted without touching the ledger.
	ErrPositionNotFound = errors.New("position not found")

	// ErrTradingPaused rejects opens while the drawdown pause is active.
	ErrTradingPaused = errors.New("trading paused by drawdown guard")

	errInvalidOrder = errors.New("invalid order parameters")
)

// TradeStore persists ledger mutations. Implementations must tolerate
// being called after every mutation; a store failure is logged and the
// in-memory state reconciles from the store on next load.
type TradeStore interface {
	SaveBalance(ctx context.Context, balance, peakBalance decimal.Decimal) error
	InsertPosition(ctx context.Context, position *Position) error
	DeletePosition(ctx context.Context, id string) error
	InsertClosedTrade(ctx context.Context, trade *ClosedTrade) error
}

// TrailingConfig controls trailing-stop behavior at evaluation time.
type TrailingConfig struct {
	Enabled       bool    `json:"enabled"`
	ActivationPct float64 `json:"activation_pct"` // unrealized profit % that arms the trail
	TrailPct      float64 `json:"trail_pct"`      // distance from the best price seen
}

// DrawdownConfig controls the balance drawdown guard.
type DrawdownConfig struct {
	Enabled        bool          `json:"enabled"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	PauseDuration  time.Duration `json:"pause_duration"`
}

// Ledger tracks balance, peak balance and open positions for one account.
// All mutations hold the ledger mutex; no ambient global state.
type Ledger struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	peakBalance decimal.Decimal
	positions   map[string]*Position
	closed      []*ClosedTrade
	paused      bool
	pausedUntil time.Time
	trailing    TrailingConfig
	store       TradeStore
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates a ledger with the given starting balance. store may be nil
// for a purely in-memory run.
func New(initialBalance decimal.Decimal, trailing TrailingConfig, store TradeStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		balance:     initialBalance,
		peakBalance: initialBalance,
		positions:   make(map[string]*Position),
		trailing:    trailing,
		store:       store,
		logger:      logger.With().Str("component", "Ledger").Logger(),
		now:         time.Now,
	}
}

// Restore replaces the in-memory state with previously persisted state.
// Used once at startup to reconcile with the store.
func (l *Ledger) Restore(balance, peakBalance decimal.Decimal, positions []*Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = balance
	l.peakBalance = peakBalance
	l.positions = make(map[string]*Position, len(positions))
	for _, p := range positions {
		l.positions[p.ID] = p
	}
}

// Open creates a new leveraged position. Margin is price*quantity/leverage
// and is the single point where leverage applies; callers size orders with
// un-leveraged notional amounts.
func (l *Ledger) Open(ctx context.Context, symbol string, side Side, price, quantity decimal.Decimal, leverage int, stopLossPct, takeProfitPct float64) (*Position, error) {
	if leverage < 1 || !quantity.IsPositive() || !price.IsPositive() {
		return nil, errInvalidOrder
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return nil, ErrTradingPaused
	}

	margin := price.Mul(quantity).Div(decimal.NewFromInt(int64(leverage)))
	if margin.GreaterThan(l.balance) {
		return nil, ErrInsufficientBalance
	}

	position := &Position{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: price,
		Quantity:   quantity,
		Leverage:   leverage,
		Margin:     margin,
		BestPrice:  price,
		OpenedAt:   l.now(),
	}
	if stopLossPct > 0 {
		position.StopLossPrice = stopLevel(side, price, stopLossPct)
	}
	if takeProfitPct > 0 {
		position.TakeProfitPrice = targetLevel(side, price, takeProfitPct)
	}

	l.balance = l.balance.Sub(margin)
	l.positions[position.ID] = position

	l.persist(ctx, func(s TradeStore) error { return s.InsertPosition(ctx, position) })
	l.persistBalance(ctx)

	l.logger.Info().Str("id", position.ID).Str("symbol", symbol).Str("side", string(side)).
		Str("entry", price.String()).Str("margin", margin.String()).Int("leverage", leverage).
		Msg("position opened")
	return position, nil
}

// Close terminates a position at the given exit price and credits the
// margin plus realized P&L back to the balance. A loss is floored at the
// committed margin, matching isolated-margin liquidation.
func (l *Ledger) Close(ctx context.Context, id string, exitPrice decimal.Decimal, reason string) (*ClosedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked(ctx, id, exitPrice, reason)
}

func (l *Ledger) closeLocked(ctx context.Context, id string, exitPrice decimal.Decimal, reason string) (*ClosedTrade, error) {
	position, ok := l.positions[id]
	if !ok {
		return nil, ErrPositionNotFound
	}

	pnl := position.UnrealizedPnL(exitPrice)
	if pnl.LessThan(position.Margin.Neg()) {
		pnl = position.Margin.Neg()
	}

	trade := &ClosedTrade{
		PositionID: position.ID,
		Symbol:     position.Symbol,
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   position.Quantity,
		Leverage:   position.Leverage,
		Margin:     position.Margin,
		PnL:        pnl,
		PnLPercent: pnl.Div(position.Margin).Mul(decimal.NewFromInt(100)),
		ExitReason: reason,
		OpenedAt:   position.OpenedAt,
		ClosedAt:   l.now(),
	}

	l.balance = l.balance.Add(position.Margin).Add(pnl)
	if l.balance.GreaterThan(l.peakBalance) {
		l.peakBalance = l.balance
	}
	delete(l.positions, id)
	l.closed = append(l.closed, trade)

	l.persist(ctx, func(s TradeStore) error { return s.DeletePosition(ctx, id) })
	l.persist(ctx, func(s TradeStore) error { return s.InsertClosedTrade(ctx, trade) })
	l.persistBalance(ctx)

	l.logger.Info().Str("id", id).Str("symbol", trade.Symbol).Str("reason", reason).
		Str("exit", exitPrice.String()).Str("pnl", pnl.String()).
		Str("balance", l.balance.String()).Msg("position closed")
	return trade, nil
}

// Evaluate runs the stop checks for every open position on a symbol, in
// fixed order: stop-loss, take-profit, then trailing-stop arming and
// ratcheting. Session extremes sharpen the checks when provided (zero
// means unavailable). At most one closure per position per call.
func (l *Ledger) Evaluate(ctx context.Context, symbol string, price, sessionHigh, sessionLow decimal.Decimal) []*ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var closes []*ClosedTrade
	for _, position := range l.positionsFor(symbol) {
		if trade := l.evaluatePosition(ctx, position, price, sessionHigh, sessionLow); trade != nil {
			closes = append(closes, trade)
		}
	}
	return closes
}

func (l *Ledger) evaluatePosition(ctx context.Context, position *Position, price, sessionHigh, sessionLow decimal.Decimal) *ClosedTrade {
	adverse := price // price to test the stop against
	favorable := price
	if position.Side == SideLong {
		if sessionLow.IsPositive() {
			adverse = sessionLow
		}
		if sessionHigh.IsPositive() {
			favorable = sessionHigh
		}
	} else {
		if sessionHigh.IsPositive() {
			adverse = sessionHigh
		}
		if sessionLow.IsPositive() {
			favorable = sessionLow
		}
	}

	// (a) stop-loss
	if !position.StopLossPrice.IsZero() && breached(position.Side, adverse, position.StopLossPrice) {
		reason := ExitStopLoss
		if position.TrailingActive {
			reason = ExitTrailingStop
		}
		trade, err := l.closeLocked(ctx, position.ID, position.StopLossPrice, reason)
		if err != nil {
			l.logger.Error().Err(err).Str("id", position.ID).Msg("stop-loss close failed")
			return nil
		}
		return trade
	}

	// (b) take-profit
	if !position.TakeProfitPrice.IsZero() && reached(position.Side, favorable, position.TakeProfitPrice) {
		trade, err := l.closeLocked(ctx, position.ID, position.TakeProfitPrice, ExitTakeProfit)
		if err != nil {
			l.logger.Error().Err(err).Str("id", position.ID).Msg("take-profit close failed")
			return nil
		}
		return trade
	}

	// (c) trailing-stop arming and ratcheting
	if l.trailing.Enabled {
		l.updateTrailing(position, price, favorable)
		if position.TrailingActive && !position.StopLossPrice.IsZero() &&
			breached(position.Side, price, position.StopLossPrice) {
			trade, err := l.closeLocked(ctx, position.ID, position.StopLossPrice, ExitTrailingStop)
			if err != nil {
				l.logger.Error().Err(err).Str("id", position.ID).Msg("trailing-stop close failed")
				return nil
			}
			return trade
		}
	}
	return nil
}

// updateTrailing tracks the best price seen, arms the trail once
// unrealized profit reaches the activation percent and then ratchets the
// stop toward the best price. The stop only ever tightens.
func (l *Ledger) updateTrailing(position *Position, price, favorable decimal.Decimal) {
	if position.Side == SideLong {
		if favorable.GreaterThan(position.BestPrice) {
			position.BestPrice = favorable
		}
	} else if favorable.LessThan(position.BestPrice) {
		position.BestPrice = favorable
	}

	if !position.TrailingActive {
		profitPct := position.UnrealizedPnL(price).Div(position.EntryPrice.Mul(position.Quantity)).
			Mul(decimal.NewFromInt(100))
		if profitPct.GreaterThanOrEqual(decimal.NewFromFloat(l.trailing.ActivationPct)) {
			position.TrailingActive = true
			l.logger.Info().Str("id", position.ID).Str("profit_pct", profitPct.StringFixed(2)).
				Msg("trailing stop armed")
		}
	}
	if !position.TrailingActive {
		return
	}

	newStop := stopLevel(position.Side, position.BestPrice, l.trailing.TrailPct)
	if position.StopLossPrice.IsZero() || tighter(position.Side, newStop, position.StopLossPrice) {
		position.StopLossPrice = newStop
	}
}

// CheckDrawdown pauses trading when the drawdown from the peak balance
// reaches the configured maximum, and clears an elapsed pause. Returns
// whether trading is currently paused. The engine consults this gate
// before every open.
func (l *Ledger) CheckDrawdown(cfg DrawdownConfig) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !cfg.Enabled {
		return false
	}

	if l.paused {
		if l.now().After(l.pausedUntil) {
			l.paused = false
			l.pausedUntil = time.Time{}
			l.logger.Info().Msg("drawdown pause elapsed, trading resumed")
		}
		return l.paused
	}

	if !l.peakBalance.IsPositive() {
		return false
	}
	drawdown := l.peakBalance.Sub(l.balance).Div(l.peakBalance).Mul(decimal.NewFromInt(100))
	if drawdown.GreaterThanOrEqual(decimal.NewFromFloat(cfg.MaxDrawdownPct)) {
		l.paused = true
		l.pausedUntil = l.now().Add(cfg.PauseDuration)
		l.logger.Warn().Str("drawdown_pct", drawdown.StringFixed(2)).
			Time("paused_until", l.pausedUntil).Msg("max drawdown reached, trading paused")
	}
	return l.paused
}

// Balance returns the available (uncommitted) balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// PeakBalance returns the balance high-water mark.
func (l *Ledger) PeakBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peakBalance
}

// TotalEquity returns balance plus all committed margin.
func (l *Ledger) TotalEquity() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity := l.balance
	for _, p := range l.positions {
		equity = equity.Add(p.Margin)
	}
	return equity
}

// OpenPositions returns copies of the open positions for a symbol, or all
// positions when symbol is empty, ordered by open time.
func (l *Ledger) OpenPositions(symbol string) []*Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*Position
	for _, p := range l.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// ClosedTrades returns the trades closed during this run.
func (l *Ledger) ClosedTrades() []*ClosedTrade {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*ClosedTrade(nil), l.closed...)
}

// TradingPaused reports the drawdown pause state.
func (l *Ledger) TradingPaused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// positionsFor returns the open positions on a symbol in deterministic
// order. Caller holds the mutex.
func (l *Ledger) positionsFor(symbol string) []*Position {
	var out []*Position
	for _, p := range l.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (l *Ledger) persist(ctx context.Context, fn func(TradeStore) error) {
	if l.store == nil {
		return
	}
	if err := fn(l.store); err != nil {
		l.logger.Error().Err(err).Msg("store write failed, will reconcile on next load")
	}
}

func (l *Ledger) persistBalance(ctx context.Context) {
	l.persist(ctx, func(s TradeStore) error { return s.SaveBalance(ctx, l.balance, l.peakBalance) })
}

// stopLevel derives a stop price the given percent against the position.
func stopLevel(side Side, price decimal.Decimal, pct float64) decimal.Decimal {
	offset := price.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	if side == SideLong {
		return price.Sub(offset)
	}
	return price.Add(offset)
}

// targetLevel derives a take-profit price the given percent in favor.
func targetLevel(side Side, price decimal.Decimal, pct float64) decimal.Decimal {
	offset := price.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	if side == SideLong {
		return price.Add(offset)
	}
	return price.Sub(offset)
}

// breached reports whether the adverse price has crossed the stop.
func breached(side Side, price, stop decimal.Decimal) bool {
	if side == SideLong {
		return price.LessThanOrEqual(stop)
	}
	return price.GreaterThanOrEqual(stop)
}

// reached reports whether the favorable price has crossed the target.
func reached(side Side, price, target decimal.Decimal) bool {
	if side == SideLong {
		return price.GreaterThanOrEqual(target)
	}
	return price.LessThanOrEqual(target)
}

// tighter reports whether candidate tightens the stop for the side.
func tighter(side Side, candidate, current decimal.Decimal) bool {
	if side == SideLong {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}
