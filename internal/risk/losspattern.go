package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"paper-trading-engine/internal/strategy"
)

// PatternBucket aggregates realized results for one combination of trend,
// volatility regime, side and RSI range. The summary is recomputed
// periodically by the persistence layer and read-only here.
type PatternBucket struct {
	Trend      string  `json:"trend"`      // UPTREND, DOWNTREND, SIDEWAYS
	Volatility string  `json:"volatility"` // high, normal, low
	Side       string  `json:"side"`       // LONG or SHORT
	RSIRange   string  `json:"rsi_range"`  // e.g. "30-50"
	Trades     int     `json:"trades"`
	Losses     int     `json:"losses"`
	TotalLoss  float64 `json:"total_loss"`
}

// LossPatternProvider reads the aggregated loss-pattern summary.
type LossPatternProvider interface {
	LossPatterns(ctx context.Context) ([]PatternBucket, error)
}

// LossPatternConfig configures the historical loss-pattern filter.
type LossPatternConfig struct {
	Enabled      bool    `json:"enabled"`
	MinSamples   int     `json:"min_samples"`    // trades before a bucket counts
	WarnLossRate float64 `json:"warn_loss_rate"` // loss rate that flags a risk factor
	MaxFactors   int     `json:"max_factors"`    // co-occurring factors that veto
}

// DefaultLossPatternConfig returns the documented defaults.
func DefaultLossPatternConfig() LossPatternConfig {
	return LossPatternConfig{
		Enabled:      true,
		MinSamples:   5,
		WarnLossRate: 0.7,
		MaxFactors:   2,
	}
}

// LossPatternStage vetoes setups that historically always lost, and
// accumulates soft warnings that veto only when enough of them co-occur.
type LossPatternStage struct {
	config LossPatternConfig
	stats  LossPatternProvider
	logger zerolog.Logger
}

// NewLossPatternStage creates the stage. A nil provider disables it.
func NewLossPatternStage(config LossPatternConfig, stats LossPatternProvider, logger zerolog.Logger) *LossPatternStage {
	return &LossPatternStage{
		config: config,
		stats:  stats,
		logger: logger.With().Str("component", "LossPatternStage").Logger(),
	}
}

func (s *LossPatternStage) Name() string { return "loss_pattern" }

// RSIBucket maps an RSI value to its histogram range label.
func RSIBucket(rsi float64) string {
	switch {
	case rsi < 30:
		return "0-30"
	case rsi < 50:
		return "30-50"
	case rsi < 70:
		return "50-70"
	default:
		return "70-100"
	}
}

// VolatilityLabel maps an ATR ratio to its regime label.
func VolatilityLabel(atr, avgATR float64) string {
	if avgATR <= 0 {
		return "normal"
	}
	ratio := atr / avgATR
	switch {
	case ratio >= 1.5:
		return "high"
	case ratio <= 0.7:
		return "low"
	default:
		return "normal"
	}
}

func (s *LossPatternStage) Apply(ctx context.Context, draft *OrderDraft) error {
	if !s.config.Enabled || s.stats == nil {
		return nil
	}

	buckets, err := s.stats.LossPatterns(ctx)
	if err != nil {
		return fmt.Errorf("loss patterns unavailable: %w", err)
	}

	side := "LONG"
	if draft.Direction == strategy.DirectionShort {
		side = "SHORT"
	}
	trend := draft.Market.TrendLabel
	volatility := VolatilityLabel(draft.Market.ATR, draft.Market.AvgATR)
	rsiRange := RSIBucket(draft.Market.RSI)

	// A side that always lost with enough samples is vetoed outright.
	sideTrades, sideLosses := 0, 0
	for _, b := range buckets {
		if b.Side != side {
			continue
		}
		sideTrades += b.Trades
		sideLosses += b.Losses
	}
	if sideTrades >= s.config.MinSamples && sideLosses == sideTrades {
		draft.Veto(s.Name(), fmt.Sprintf("%s side has a 100%% loss rate over %d trades", side, sideTrades))
		return nil
	}

	// Otherwise collect soft risk factors from buckets matching the
	// current setup on each dimension.
	var factors []string
	for _, b := range buckets {
		if b.Side != side || b.Trades < s.config.MinSamples {
			continue
		}
		lossRate := float64(b.Losses) / float64(b.Trades)
		if lossRate < s.config.WarnLossRate {
			continue
		}
		switch {
		case b.Trend == trend && b.Trend != "":
			factors = append(factors, fmt.Sprintf("trend %s loses %.0f%%", b.Trend, lossRate*100))
		case b.Volatility == volatility && b.Volatility != "":
			factors = append(factors, fmt.Sprintf("%s volatility loses %.0f%%", b.Volatility, lossRate*100))
		case b.RSIRange == rsiRange && b.RSIRange != "":
			factors = append(factors, fmt.Sprintf("rsi %s loses %.0f%%", b.RSIRange, lossRate*100))
		}
	}

	if len(factors) >= s.config.MaxFactors {
		draft.Veto(s.Name(), fmt.Sprintf("%d risk factors co-occur: %s",
			len(factors), strings.Join(factors, "; ")))
	}
	return nil
}
