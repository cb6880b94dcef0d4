package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HourlyStats aggregates realized results for one UTC hour of day.
type HourlyStats struct {
	Hour     int     `json:"hour"`
	Trades   int     `json:"trades"`
	TotalPnL float64 `json:"total_pnl"`
}

// HourlyStatsProvider reads the per-hour performance summary the learned
// hour filter feeds on.
type HourlyStatsProvider interface {
	HourlyStats(ctx context.Context) ([]HourlyStats, error)
}

// TimeFilterConfig configures the time-of-day and weekend filter.
type TimeFilterConfig struct {
	Enabled        bool    `json:"enabled"`
	BlockedHours   []int   `json:"blocked_hours"` // static UTC hours, always vetoed
	AvoidWeekends  bool    `json:"avoid_weekends"`
	LearnedEnabled bool    `json:"learned_enabled"`
	LossThreshold  float64 `json:"loss_threshold"` // avg loss per trade to block an hour
	MinSamples     int     `json:"min_samples"`    // trades required before an hour can be learned
}

// DefaultTimeFilterConfig returns the documented defaults.
func DefaultTimeFilterConfig() TimeFilterConfig {
	return TimeFilterConfig{
		Enabled:        true,
		BlockedHours:   nil,
		AvoidWeekends:  false,
		LearnedEnabled: true,
		LossThreshold:  5.0,
		MinSamples:     10,
	}
}

// TimeFilterStage hard-vetoes entries during blocked UTC hours or
// weekends. Blocked hours are the static configuration plus hours learned
// from historical average loss.
type TimeFilterStage struct {
	config TimeFilterConfig
	stats  HourlyStatsProvider
	now    func() time.Time
	logger zerolog.Logger
}

// NewTimeFilterStage creates the stage. A nil stats provider disables the
// learned set.
func NewTimeFilterStage(config TimeFilterConfig, stats HourlyStatsProvider, logger zerolog.Logger) *TimeFilterStage {
	return &TimeFilterStage{
		config: config,
		stats:  stats,
		now:    time.Now,
		logger: logger.With().Str("component", "TimeFilterStage").Logger(),
	}
}

func (s *TimeFilterStage) Name() string { return "time_filter" }

func (s *TimeFilterStage) Apply(ctx context.Context, draft *OrderDraft) error {
	if !s.config.Enabled {
		return nil
	}

	now := s.now().UTC()

	if s.config.AvoidWeekends {
		if day := now.Weekday(); day == time.Saturday || day == time.Sunday {
			draft.Veto(s.Name(), fmt.Sprintf("weekend trading disabled (%s)", day))
			return nil
		}
	}

	hour := now.Hour()
	for _, blocked := range s.config.BlockedHours {
		if hour == blocked {
			draft.Veto(s.Name(), fmt.Sprintf("hour %02d UTC is in the blocked set", hour))
			return nil
		}
	}

	if !s.config.LearnedEnabled || s.stats == nil {
		return nil
	}

	stats, err := s.stats.HourlyStats(ctx)
	if err != nil {
		// Degrade: the static set still applied.
		return fmt.Errorf("hourly stats unavailable: %w", err)
	}

	for _, h := range stats {
		if h.Hour != hour || h.Trades < s.config.MinSamples {
			continue
		}
		avgLoss := -h.TotalPnL / float64(h.Trades)
		if avgLoss >= s.config.LossThreshold {
			draft.Veto(s.Name(), fmt.Sprintf(
				"hour %02d UTC learned as losing: avg loss %.2f over %d trades",
				hour, avgLoss, h.Trades))
			return nil
		}
	}
	return nil
}
