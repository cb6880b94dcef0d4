package risk

import (
	"context"

	"github.com/rs/zerolog"
)

// VolatilityConfig configures the volatility-based SL/TP/leverage scaling.
type VolatilityConfig struct {
	Enabled          bool    `json:"enabled"`
	MinStopLossPct   float64 `json:"min_stop_loss_pct"`
	MaxStopLossPct   float64 `json:"max_stop_loss_pct"`
	MinTakeProfitPct float64 `json:"min_take_profit_pct"`
	MaxTakeProfitPct float64 `json:"max_take_profit_pct"`
	AdjustLeverage   bool    `json:"adjust_leverage"`
	HighVolThreshold float64 `json:"high_vol_threshold"` // ATR ratio above which leverage is halved
	LowVolThreshold  float64 `json:"low_vol_threshold"`  // ATR ratio below which leverage grows 50%
	MinLeverage      int     `json:"min_leverage"`
	MaxLeverage      int     `json:"max_leverage"`
}

// DefaultVolatilityConfig returns the documented defaults.
func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{
		Enabled:          true,
		MinStopLossPct:   0.5,
		MaxStopLossPct:   5.0,
		MinTakeProfitPct: 1.0,
		MaxTakeProfitPct: 10.0,
		AdjustLeverage:   true,
		HighVolThreshold: 1.5,
		LowVolThreshold:  0.7,
		MinLeverage:      1,
		MaxLeverage:      10,
	}
}

// VolatilityStage scales stop-loss and take-profit percentages by the
// current-to-average ATR ratio, and optionally scales leverage inversely
// to volatility.
type VolatilityStage struct {
	config VolatilityConfig
	logger zerolog.Logger
}

// NewVolatilityStage creates the stage.
func NewVolatilityStage(config VolatilityConfig, logger zerolog.Logger) *VolatilityStage {
	return &VolatilityStage{
		config: config,
		logger: logger.With().Str("component", "VolatilityStage").Logger(),
	}
}

func (s *VolatilityStage) Name() string { return "volatility" }

func (s *VolatilityStage) Apply(ctx context.Context, draft *OrderDraft) error {
	if !s.config.Enabled {
		return nil
	}

	ratio := 1.0
	if draft.Market.AvgATR > 0 && draft.Market.ATR > 0 {
		ratio = draft.Market.ATR / draft.Market.AvgATR
	}

	draft.StopLossPct = clamp(draft.StopLossPct*ratio, s.config.MinStopLossPct, s.config.MaxStopLossPct)
	draft.TakeProfitPct = clamp(draft.TakeProfitPct*ratio, s.config.MinTakeProfitPct, s.config.MaxTakeProfitPct)

	if s.config.AdjustLeverage {
		leverage := draft.Leverage
		if ratio >= s.config.HighVolThreshold {
			leverage /= 2
		} else if ratio <= s.config.LowVolThreshold {
			leverage += leverage / 2
		}
		if leverage < s.config.MinLeverage {
			leverage = s.config.MinLeverage
		}
		if leverage > s.config.MaxLeverage {
			leverage = s.config.MaxLeverage
		}
		draft.Leverage = leverage
	}

	s.logger.Debug().Float64("atr_ratio", ratio).Float64("sl_pct", draft.StopLossPct).
		Float64("tp_pct", draft.TakeProfitPct).Int("leverage", draft.Leverage).
		Str("symbol", draft.Symbol).Msg("volatility adjustment applied")
	return nil
}
