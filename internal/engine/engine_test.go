package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-trading-engine/internal/ledger"
	"paper-trading-engine/internal/market"
	"paper-trading-engine/internal/risk"
	"paper-trading-engine/internal/strategy"
)

type scriptedSource struct {
	candles map[string][]market.Candle // keyed by symbol
	failing map[string]bool
}

func (s *scriptedSource) FetchCandles(ctx context.Context, symbol string, interval market.Timeframe, limit int) ([]market.Candle, error) {
	if s.failing[symbol] {
		return nil, errors.New("feed down")
	}
	return s.candles[symbol], nil
}

type fixedStrategy struct {
	signal *strategy.Signal
	err    error
}

func (s *fixedStrategy) Name() string { return "fixed" }
func (s *fixedStrategy) Evaluate(data *market.MultiTimeframeCandles) (*strategy.Signal, error) {
	return s.signal, s.err
}

func flatCandles(price float64, n int) []market.Candle {
	candles := make([]market.Candle, n)
	openTime := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime: openTime.Add(time.Duration(i) * time.Minute),
			Open:     price, High: price, Low: price, Close: price,
			Volume: 1000,
		}
	}
	return candles
}

func buySignal(confidence float64) *strategy.Signal {
	return &strategy.Signal{
		Direction:  strategy.DirectionBuy,
		Rationale:  "test entry",
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

func newTestEngine(source market.CandleSource, strat strategy.Strategy, book *ledger.Ledger) *Engine {
	cfg := DefaultConfig()
	cfg.Symbols = []string{"ETHUSDT"}
	streak := risk.NewStreakState(risk.ModeMartingale, 0)
	tracker := risk.NewPerformanceTracker(50)
	pipeline := risk.NewPipeline(zerolog.Nop())
	return New(cfg, source, strat, pipeline, book, streak, tracker, nil, nil, zerolog.Nop())
}

func TestProcessSymbol_OpensPositionOnApprovedSignal(t *testing.T) {
	source := &scriptedSource{candles: map[string][]market.Candle{"ETHUSDT": flatCandles(100, 30)}}
	book := ledger.New(decimal.NewFromInt(1000), ledger.TrailingConfig{}, nil, zerolog.Nop())
	engine := newTestEngine(source, &fixedStrategy{signal: buySignal(80)}, book)

	if err := engine.ProcessSymbol(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positions := book.OpenPositions("ETHUSDT")
	if len(positions) != 1 {
		t.Fatalf("expected one open position, got %d", len(positions))
	}
	if positions[0].Side != ledger.SideLong {
		t.Errorf("expected LONG, got %s", positions[0].Side)
	}
	// Default notional 100 at price 100 is one unit.
	if !positions[0].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected quantity 1, got %s", positions[0].Quantity)
	}
}

func TestProcessSymbol_ReversalClosesOpposingFirst(t *testing.T) {
	source := &scriptedSource{candles: map[string][]market.Candle{"ETHUSDT": flatCandles(100, 30)}}
	book := ledger.New(decimal.NewFromInt(1000), ledger.TrailingConfig{}, nil, zerolog.Nop())
	engine := newTestEngine(source, &fixedStrategy{signal: buySignal(80)}, book)

	_, err := book.Open(context.Background(), "ETHUSDT", ledger.SideShort,
		decimal.NewFromInt(110), decimal.NewFromInt(1), 3, 0, 0)
	if err != nil {
		t.Fatalf("seeding short: %v", err)
	}

	if err := engine.ProcessSymbol(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed := book.ClosedTrades()
	if len(closed) != 1 {
		t.Fatalf("expected one closed trade, got %d", len(closed))
	}
	if closed[0].ExitReason != ledger.ExitReversal {
		t.Errorf("expected exit reason %q, got %q", ledger.ExitReversal, closed[0].ExitReason)
	}

	positions := book.OpenPositions("ETHUSDT")
	if len(positions) != 1 || positions[0].Side != ledger.SideLong {
		t.Fatalf("expected a single replacing LONG position, got %+v", positions)
	}
}

func TestProcessSymbol_HoldLeavesLedgerUntouched(t *testing.T) {
	source := &scriptedSource{candles: map[string][]market.Candle{"ETHUSDT": flatCandles(100, 30)}}
	book := ledger.New(decimal.NewFromInt(1000), ledger.TrailingConfig{}, nil, zerolog.Nop())
	engine := newTestEngine(source, &fixedStrategy{signal: strategy.Hold("no setup")}, book)

	if err := engine.ProcessSymbol(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(book.OpenPositions("")); got != 0 {
		t.Errorf("expected no positions, got %d", got)
	}
}

func TestRunCycle_IsolatesSymbolFailures(t *testing.T) {
	source := &scriptedSource{
		candles: map[string][]market.Candle{"SOLUSDT": flatCandles(50, 30)},
		failing: map[string]bool{"BTCUSDT": true},
	}
	book := ledger.New(decimal.NewFromInt(1000), ledger.TrailingConfig{}, nil, zerolog.Nop())
	engine := newTestEngine(source, &fixedStrategy{signal: buySignal(80)}, book)
	engine.config.Symbols = []string{"BTCUSDT", "SOLUSDT"}

	engine.RunCycle(context.Background())

	if got := len(book.OpenPositions("BTCUSDT")); got != 0 {
		t.Errorf("failing symbol must not trade, got %d positions", got)
	}
	if got := len(book.OpenPositions("SOLUSDT")); got != 1 {
		t.Errorf("healthy symbol must still trade, got %d positions", got)
	}
}

func TestProcessSymbol_MaxOpenPositionsBlocksEntry(t *testing.T) {
	source := &scriptedSource{candles: map[string][]market.Candle{"ETHUSDT": flatCandles(100, 30)}}
	book := ledger.New(decimal.NewFromInt(1000), ledger.TrailingConfig{}, nil, zerolog.Nop())
	engine := newTestEngine(source, &fixedStrategy{signal: buySignal(80)}, book)
	engine.config.MaxOpenPositions = 1

	_, err := book.Open(context.Background(), "BTCUSDT", ledger.SideLong,
		decimal.NewFromInt(50000), decimal.NewFromFloat(0.01), 3, 0, 0)
	if err != nil {
		t.Fatalf("seeding position: %v", err)
	}

	if err := engine.ProcessSymbol(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(book.OpenPositions("ETHUSDT")); got != 0 {
		t.Errorf("entry must be blocked at capacity, got %d positions", got)
	}
}

func TestRunCycle_PerCycleTradeCap(t *testing.T) {
	source := &scriptedSource{candles: map[string][]market.Candle{
		"ETHUSDT": flatCandles(100, 30),
		"SOLUSDT": flatCandles(50, 30),
	}}
	book := ledger.New(decimal.NewFromInt(1000), ledger.TrailingConfig{}, nil, zerolog.Nop())
	engine := newTestEngine(source, &fixedStrategy{signal: buySignal(80)}, book)
	engine.config.Symbols = []string{"ETHUSDT", "SOLUSDT"}
	engine.config.MaxTradesPerCycle = 1

	engine.RunCycle(context.Background())
	if got := len(book.OpenPositions("")); got != 1 {
		t.Errorf("cap of one entry per cycle, got %d positions", got)
	}

	// A fresh cycle resets the counter.
	engine.RunCycle(context.Background())
	if got := len(book.OpenPositions("")); got != 2 {
		t.Errorf("second cycle must allow another entry, got %d positions", got)
	}
}

func TestProcessSymbol_StopCloseFeedsStreak(t *testing.T) {
	// Last candle dips to 95, breaching a stop at 98.
	candles := flatCandles(100, 30)
	candles[len(candles)-1].Low = 95
	source := &scriptedSource{candles: map[string][]market.Candle{"ETHUSDT": candles}}

	book := ledger.New(decimal.NewFromInt(1000), ledger.TrailingConfig{}, nil, zerolog.Nop())
	engine := newTestEngine(source, &fixedStrategy{signal: strategy.Hold("no setup")}, book)

	_, err := book.Open(context.Background(), "ETHUSDT", ledger.SideLong,
		decimal.NewFromInt(100), decimal.NewFromInt(1), 5, 2.0, 0)
	if err != nil {
		t.Fatalf("seeding long: %v", err)
	}

	if err := engine.ProcessSymbol(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed := book.ClosedTrades()
	if len(closed) != 1 || closed[0].ExitReason != ledger.ExitStopLoss {
		t.Fatalf("expected one stop-loss close, got %+v", closed)
	}
	if engine.streak.Count() != 1 {
		t.Errorf("a losing close must advance the martingale streak, got %d", engine.streak.Count())
	}
}

func TestTrendLabel(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{"rising closes classify as uptrend", 1.01, "UPTREND"},
		{"falling closes classify as downtrend", 0.99, "DOWNTREND"},
		{"flat closes classify as sideways", 1.0, "SIDEWAYS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := make([]market.Candle, 40)
			price := 100.0
			for i := range candles {
				candles[i] = market.Candle{Open: price, High: price, Low: price, Close: price}
				price *= tt.ratio
			}
			if got := trendLabel(candles); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
