// Package engine orchestrates the per-cycle trading flow: candles in,
// signal, risk pipeline, ledger mutations, persistence hooks. Symbols are
// processed sequentially so ledger mutations stay trivially serialized,
// and a failure on one symbol never aborts the others.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-trading-engine/internal/indicator"
	"paper-trading-engine/internal/ledger"
	"paper-trading-engine/internal/market"
	"paper-trading-engine/internal/risk"
	"paper-trading-engine/internal/strategy"
)

// StreakStore persists the martingale streak after each closed trade.
type StreakStore interface {
	SaveStreak(ctx context.Context, mode string, count int) error
}

// EntryContextStore records the market regime under which a position was
// opened. The loss-pattern summary buckets closed trades by this context.
type EntryContextStore interface {
	SaveEntryContext(ctx context.Context, positionID, trend, volatility, rsiRange string) error
}

// Config holds engine configuration.
type Config struct {
	Symbols           []string              `json:"symbols"`
	EntryTimeframe    market.Timeframe      `json:"entry_timeframe"`
	MiddleTimeframe   market.Timeframe      `json:"middle_timeframe"`
	TrendTimeframe    market.Timeframe      `json:"trend_timeframe"`
	CandleLimit       int                   `json:"candle_limit"`
	ATRPeriod         int                   `json:"atr_period"`
	ATRAverageWindow  int                   `json:"atr_average_window"`
	MaxOpenPositions  int                   `json:"max_open_positions"`
	MaxTradesPerCycle int                   `json:"max_trades_per_cycle"`
	Defaults          risk.Defaults         `json:"defaults"`
	Drawdown          ledger.DrawdownConfig `json:"drawdown"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Symbols:           []string{"BTCUSDT"},
		EntryTimeframe:    market.TF5m,
		MiddleTimeframe:   market.TF15m,
		TrendTimeframe:    market.TF1h,
		CandleLimit:       100,
		ATRPeriod:         14,
		ATRAverageWindow:  20,
		MaxOpenPositions:  3,
		MaxTradesPerCycle: 2,
		Defaults: risk.Defaults{
			StopLossPct:   2.0,
			TakeProfitPct: 4.0,
			Leverage:      3,
			BaseNotional:  100,
		},
		Drawdown: ledger.DrawdownConfig{
			Enabled:        true,
			MaxDrawdownPct: 20,
			PauseDuration:  4 * time.Hour,
		},
	}
}

// Engine runs the decision-and-ledger flow once per cycle.
type Engine struct {
	config      Config
	candles     market.CandleSource
	strategy    strategy.Strategy
	pipeline    *risk.Pipeline
	ledger      *ledger.Ledger
	streak      *risk.StreakState
	performance *risk.PerformanceTracker
	streakStore StreakStore
	contexts    EntryContextStore
	logger      zerolog.Logger

	cycleEntries int // entries placed in the current cycle
}

// New creates an engine. streakStore and contexts may be nil.
func New(config Config, candles market.CandleSource, strat strategy.Strategy, pipeline *risk.Pipeline,
	book *ledger.Ledger, streak *risk.StreakState, performance *risk.PerformanceTracker,
	streakStore StreakStore, contexts EntryContextStore, logger zerolog.Logger) *Engine {
	return &Engine{
		config:      config,
		candles:     candles,
		strategy:    strat,
		pipeline:    pipeline,
		ledger:      book,
		streak:      streak,
		performance: performance,
		streakStore: streakStore,
		contexts:    contexts,
		logger:      logger.With().Str("component", "Engine").Logger(),
	}
}

// Run executes one cycle per tick until the context is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopped")
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle processes every configured symbol sequentially. Per-symbol
// errors are logged and skipped.
func (e *Engine) RunCycle(ctx context.Context) {
	e.cycleEntries = 0
	for _, symbol := range e.config.Symbols {
		if err := e.ProcessSymbol(ctx, symbol); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("symbol cycle skipped")
		}
	}
}

// ProcessSymbol runs one full decision cycle for a symbol.
func (e *Engine) ProcessSymbol(ctx context.Context, symbol string) error {
	data, err := e.fetch(ctx, symbol)
	if err != nil {
		return fmt.Errorf("%w: %v", market.ErrDataUnavailable, err)
	}

	last := data.Entry[len(data.Entry)-1]
	price := decimal.NewFromFloat(last.Close)
	sessionHigh := decimal.NewFromFloat(last.High)
	sessionLow := decimal.NewFromFloat(last.Low)

	// Stop, target and trailing checks run before any new entry.
	for _, trade := range e.ledger.Evaluate(ctx, symbol, price, sessionHigh, sessionLow) {
		e.recordResult(ctx, trade)
	}

	signal, err := e.strategy.Evaluate(data)
	if err != nil {
		return fmt.Errorf("strategy evaluation: %w", err)
	}
	if signal.Direction == strategy.DirectionHold {
		e.logger.Debug().Str("symbol", symbol).Str("rationale", signal.Rationale).Msg("holding")
		return nil
	}

	draft := risk.NewDraft(symbol, signal, e.config.Defaults, e.snapshot(signal, data))
	e.pipeline.Run(ctx, draft)
	if !draft.Approved {
		return nil
	}

	// Close every opposing position at current price before entering.
	opposing := oppositeSide(draft.Direction)
	for _, position := range e.ledger.OpenPositions(symbol) {
		if position.Side != opposing {
			continue
		}
		trade, err := e.ledger.Close(ctx, position.ID, price, ledger.ExitReversal)
		if err != nil {
			e.logger.Error().Err(err).Str("id", position.ID).Msg("reversal close failed")
			continue
		}
		e.recordResult(ctx, trade)
	}

	if e.ledger.CheckDrawdown(e.config.Drawdown) {
		e.logger.Info().Str("symbol", symbol).Msg("drawdown pause active, entry skipped")
		return nil
	}
	if e.config.MaxOpenPositions > 0 && len(e.ledger.OpenPositions("")) >= e.config.MaxOpenPositions {
		e.logger.Info().Str("symbol", symbol).Msg("max open positions reached, entry skipped")
		return nil
	}
	if e.config.MaxTradesPerCycle > 0 && e.cycleEntries >= e.config.MaxTradesPerCycle {
		e.logger.Info().Str("symbol", symbol).Msg("per-cycle trade cap reached, entry skipped")
		return nil
	}

	quantity := decimal.NewFromFloat(draft.Notional).Div(price)
	position, err := e.ledger.Open(ctx, symbol, entrySide(draft.Direction), price, quantity,
		draft.Leverage, draft.StopLossPct, draft.TakeProfitPct)
	if err != nil {
		// Rejected entries are non-fatal; the cycle moves on.
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("entry rejected")
		return nil
	}

	e.cycleEntries++

	if e.contexts != nil {
		err := e.contexts.SaveEntryContext(ctx, position.ID, draft.Market.TrendLabel,
			risk.VolatilityLabel(draft.Market.ATR, draft.Market.AvgATR), risk.RSIBucket(draft.Market.RSI))
		if err != nil {
			e.logger.Error().Err(err).Str("id", position.ID).Msg("entry context persistence failed")
		}
	}

	e.logger.Info().Str("symbol", symbol).Str("id", position.ID).
		Str("side", string(position.Side)).Float64("confidence", draft.Confidence).
		Str("rationale", signal.Rationale).Msg("entry placed")
	return nil
}

// fetch loads the three timeframes sequentially.
func (e *Engine) fetch(ctx context.Context, symbol string) (*market.MultiTimeframeCandles, error) {
	data := &market.MultiTimeframeCandles{Symbol: symbol, Timestamp: time.Now()}

	var err error
	if data.Entry, err = e.candles.FetchCandles(ctx, symbol, e.config.EntryTimeframe, e.config.CandleLimit); err != nil {
		return nil, fmt.Errorf("entry timeframe: %w", err)
	}
	if len(data.Entry) == 0 {
		return nil, fmt.Errorf("entry timeframe: no candles")
	}
	if data.Middle, err = e.candles.FetchCandles(ctx, symbol, e.config.MiddleTimeframe, e.config.CandleLimit); err != nil {
		return nil, fmt.Errorf("middle timeframe: %w", err)
	}
	if data.Trend, err = e.candles.FetchCandles(ctx, symbol, e.config.TrendTimeframe, e.config.CandleLimit); err != nil {
		return nil, fmt.Errorf("trend timeframe: %w", err)
	}
	return data, nil
}

// snapshot derives the market context the risk stages need.
func (e *Engine) snapshot(signal *strategy.Signal, data *market.MultiTimeframeCandles) risk.MarketSnapshot {
	snapshot := risk.MarketSnapshot{TrendLabel: trendLabel(data.Trend)}

	if rsi, ok := signal.Indicators["rsi"]; ok && !math.IsNaN(rsi) {
		snapshot.RSI = rsi
	} else {
		snapshot.RSI = 50
	}

	atrSeries := indicator.ATR(data.Entry, e.config.ATRPeriod)
	if current := indicator.Last(atrSeries); indicator.IsValid(current) {
		snapshot.ATR = current
		snapshot.AvgATR = trailingMean(atrSeries, e.config.ATRAverageWindow)
	}
	return snapshot
}

// trendLabel classifies the highest timeframe with a 9/21 EMA compare.
func trendLabel(candles []market.Candle) string {
	closes := market.Closes(candles)
	fast := indicator.Last(indicator.EMA(closes, 9))
	slow := indicator.Last(indicator.EMA(closes, 21))
	if !indicator.IsValid(fast) || !indicator.IsValid(slow) || slow == 0 {
		return "SIDEWAYS"
	}

	gap := math.Abs(fast-slow) / slow * 100
	switch {
	case gap < 0.5:
		return "SIDEWAYS"
	case fast > slow:
		return "UPTREND"
	default:
		return "DOWNTREND"
	}
}

// trailingMean averages the last window valid values of a series.
func trailingMean(series []float64, window int) float64 {
	sum := 0.0
	count := 0
	for i := len(series) - 1; i >= 0 && count < window; i-- {
		if !indicator.IsValid(series[i]) {
			continue
		}
		sum += series[i]
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// recordResult updates streak and performance state once per closed trade.
func (e *Engine) recordResult(ctx context.Context, trade *ledger.ClosedTrade) {
	win := trade.Win()
	if e.streak != nil {
		e.streak.RecordResult(win)
		if e.streakStore != nil {
			if err := e.streakStore.SaveStreak(ctx, string(e.streak.Mode()), e.streak.Count()); err != nil {
				e.logger.Error().Err(err).Msg("streak persistence failed")
			}
		}
	}
	if e.performance != nil {
		e.performance.Record(win)
	}
}

func entrySide(direction strategy.Direction) ledger.Side {
	if direction == strategy.DirectionShort {
		return ledger.SideShort
	}
	return ledger.SideLong
}

func oppositeSide(direction strategy.Direction) ledger.Side {
	if direction == strategy.DirectionShort {
		return ledger.SideLong
	}
	return ledger.SideShort
}
