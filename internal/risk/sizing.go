package risk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PerformanceSnapshot summarizes recent realized results. Streak is signed:
// positive for consecutive wins, negative for consecutive losses.
type PerformanceSnapshot struct {
	Trades int
	Wins   int
	Streak int
}

// WinRate returns the fraction of winning trades, 0.5 with no history.
func (p PerformanceSnapshot) WinRate() float64 {
	if p.Trades == 0 {
		return 0.5
	}
	return float64(p.Wins) / float64(p.Trades)
}

// PerformanceProvider reads recent performance for the sizing stage.
type PerformanceProvider interface {
	RecentPerformance(ctx context.Context) (PerformanceSnapshot, error)
}

// SizingConfig configures performance-based position sizing.
type SizingConfig struct {
	Enabled       bool    `json:"enabled"`
	MinTrades     int     `json:"min_trades"`      // sample required before scaling activates
	WinRateWeight float64 `json:"win_rate_weight"` // weight of the win-rate factor
	StreakWeight  float64 `json:"streak_weight"`   // weight of the streak factor
	MinMultiplier float64 `json:"min_multiplier"`
	MaxMultiplier float64 `json:"max_multiplier"`
}

// DefaultSizingConfig returns the documented defaults. The weights sum to
// one so a neutral history yields exactly 1.0x.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		Enabled:       true,
		MinTrades:     10,
		WinRateWeight: 0.7,
		StreakWeight:  0.3,
		MinMultiplier: 0.25,
		MaxMultiplier: 2.0,
	}
}

// SizingStage scales the base notional by recent win rate relative to the
// 50% baseline, blended with a streak factor. Below the minimum sample it
// stays neutral at 1.0x.
type SizingStage struct {
	config SizingConfig
	perf   PerformanceProvider
	logger zerolog.Logger
}

// NewSizingStage creates the stage.
func NewSizingStage(config SizingConfig, perf PerformanceProvider, logger zerolog.Logger) *SizingStage {
	return &SizingStage{
		config: config,
		perf:   perf,
		logger: logger.With().Str("component", "SizingStage").Logger(),
	}
}

func (s *SizingStage) Name() string { return "sizing" }

func (s *SizingStage) Apply(ctx context.Context, draft *OrderDraft) error {
	if !s.config.Enabled || s.perf == nil {
		return nil
	}

	snapshot, err := s.perf.RecentPerformance(ctx)
	if err != nil {
		return fmt.Errorf("performance unavailable: %w", err)
	}

	multiplier := 1.0
	if snapshot.Trades >= s.config.MinTrades {
		winFactor := 1 + (snapshot.WinRate()-0.5)*2

		streak := snapshot.Streak
		if streak > 3 {
			streak = 3
		} else if streak < -3 {
			streak = -3
		}
		streakFactor := 1 + float64(streak)*0.1

		multiplier = clamp(
			s.config.WinRateWeight*winFactor+s.config.StreakWeight*streakFactor,
			s.config.MinMultiplier, s.config.MaxMultiplier)
	}

	draft.SizeMultiplier = multiplier
	draft.Notional *= multiplier

	s.logger.Debug().Float64("multiplier", multiplier).Int("trades", snapshot.Trades).
		Float64("win_rate", snapshot.WinRate()).Int("streak", snapshot.Streak).
		Msg("position size scaled")
	return nil
}
