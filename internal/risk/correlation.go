package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"paper-trading-engine/internal/indicator"
	"paper-trading-engine/internal/market"
	"paper-trading-engine/internal/strategy"
)

// CorrelationConfig configures the cross-asset correlation filter.
type CorrelationConfig struct {
	Enabled         bool             `json:"enabled"`
	ReferenceSymbol string           `json:"reference_symbol"` // usually BTCUSDT
	Interval        market.Timeframe `json:"interval"`
	Lookback        int              `json:"lookback"`
	FastEMAPeriod   int              `json:"fast_ema_period"`
	SlowEMAPeriod   int              `json:"slow_ema_period"`
	RSIPeriod       int              `json:"rsi_period"`
	Strict          bool             `json:"strict"` // require exact directional agreement
	CacheTTL        time.Duration    `json:"cache_ttl"`
}

// DefaultCorrelationConfig returns the documented defaults.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		Enabled:         true,
		ReferenceSymbol: "BTCUSDT",
		Interval:        market.TF15m,
		Lookback:        60,
		FastEMAPeriod:   9,
		SlowEMAPeriod:   21,
		RSIPeriod:       14,
		Strict:          false,
		CacheTTL:        5 * time.Minute,
	}
}

// CorrelationStage vetoes signals that fight the reference asset's
// momentum. The reference classification is computed on a fixed cadence
// and cached for the configured TTL.
type CorrelationStage struct {
	config CorrelationConfig
	source market.CandleSource
	logger zerolog.Logger

	mu        sync.Mutex
	cached    string
	refreshAt time.Time
}

// NewCorrelationStage creates the stage.
func NewCorrelationStage(config CorrelationConfig, source market.CandleSource, logger zerolog.Logger) *CorrelationStage {
	return &CorrelationStage{
		config: config,
		source: source,
		logger: logger.With().Str("component", "CorrelationStage").Logger(),
	}
}

func (s *CorrelationStage) Name() string { return "correlation" }

func (s *CorrelationStage) Apply(ctx context.Context, draft *OrderDraft) error {
	if !s.config.Enabled || draft.Symbol == s.config.ReferenceSymbol {
		return nil
	}

	momentum, err := s.referenceMomentum(ctx)
	if err != nil {
		// Degrade: missing reference data never blocks the cycle.
		return fmt.Errorf("reference momentum unavailable: %w", err)
	}

	if s.config.Strict {
		if draft.Direction == strategy.DirectionBuy && momentum != "bullish" {
			draft.Veto(s.Name(), fmt.Sprintf("%s momentum is %s, strict mode requires bullish for buys",
				s.config.ReferenceSymbol, momentum))
		} else if draft.Direction == strategy.DirectionShort && momentum != "bearish" {
			draft.Veto(s.Name(), fmt.Sprintf("%s momentum is %s, strict mode requires bearish for shorts",
				s.config.ReferenceSymbol, momentum))
		}
		return nil
	}

	if draft.Direction == strategy.DirectionBuy && momentum == "bearish" {
		draft.Veto(s.Name(), fmt.Sprintf("%s momentum is bearish", s.config.ReferenceSymbol))
	} else if draft.Direction == strategy.DirectionShort && momentum == "bullish" {
		draft.Veto(s.Name(), fmt.Sprintf("%s momentum is bullish", s.config.ReferenceSymbol))
	}
	return nil
}

// referenceMomentum classifies the reference asset from its own EMA and
// RSI, caching the result.
func (s *CorrelationStage) referenceMomentum(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && time.Now().Before(s.refreshAt) {
		return s.cached, nil
	}

	candles, err := s.source.FetchCandles(ctx, s.config.ReferenceSymbol, s.config.Interval, s.config.Lookback)
	if err != nil {
		return "", err
	}

	closes := market.Closes(candles)
	fastEMA := indicator.Last(indicator.EMA(closes, s.config.FastEMAPeriod))
	slowEMA := indicator.Last(indicator.EMA(closes, s.config.SlowEMAPeriod))
	rsi := indicator.Last(indicator.RSI(closes, s.config.RSIPeriod))

	if !indicator.IsValid(fastEMA) || !indicator.IsValid(slowEMA) || !indicator.IsValid(rsi) {
		return "", market.ErrDataUnavailable
	}

	momentum := "neutral"
	if fastEMA > slowEMA && rsi > 50 {
		momentum = "bullish"
	} else if fastEMA < slowEMA && rsi < 50 {
		momentum = "bearish"
	}

	s.cached = momentum
	s.refreshAt = time.Now().Add(s.config.CacheTTL)
	s.logger.Debug().Str("momentum", momentum).Float64("rsi", rsi).Msg("reference momentum refreshed")
	return momentum, nil
}
