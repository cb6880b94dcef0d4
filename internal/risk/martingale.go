package risk

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// MartingaleMode selects the streak-based sizing overlay.
type MartingaleMode string

const (
	ModeMartingale     MartingaleMode = "martingale"      // grow after losses
	ModeAntiMartingale MartingaleMode = "anti_martingale" // grow after wins
	ModeOff            MartingaleMode = "off"
)

// StreakState holds the consecutive-result counter. It is mutated exactly
// once per closed trade and shared between the overlay stage and the
// engine's close handler.
type StreakState struct {
	mu    sync.Mutex
	mode  MartingaleMode
	count int
}

// NewStreakState creates streak state, restoring a persisted count.
func NewStreakState(mode MartingaleMode, count int) *StreakState {
	if count < 0 {
		count = 0
	}
	return &StreakState{mode: mode, count: count}
}

// RecordResult updates the streak from one closed trade. Martingale counts
// losses and resets on a win; anti-martingale mirrors that. The counter
// never goes negative.
func (s *StreakState) RecordResult(win bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeMartingale:
		if win {
			s.count = 0
		} else {
			s.count++
		}
	case ModeAntiMartingale:
		if win {
			s.count++
		} else {
			s.count = 0
		}
	default:
		s.count = 0
	}
}

// Count returns the current streak length.
func (s *StreakState) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Mode returns the configured mode.
func (s *StreakState) Mode() MartingaleMode {
	return s.mode
}

// MartingaleConfig configures the streak multiplier overlay.
type MartingaleConfig struct {
	Mode           MartingaleMode `json:"mode"`
	BaseMultiplier float64        `json:"base_multiplier"` // multiplier per streak step
	CapMultiplier  float64        `json:"cap_multiplier"`  // hard upper bound
}

// DefaultMartingaleConfig returns the documented defaults.
func DefaultMartingaleConfig() MartingaleConfig {
	return MartingaleConfig{
		Mode:           ModeOff,
		BaseMultiplier: 1.5,
		CapMultiplier:  4.0,
	}
}

// MartingaleStage multiplies the sized notional by base^streak, capped.
type MartingaleStage struct {
	config MartingaleConfig
	state  *StreakState
	logger zerolog.Logger
}

// NewMartingaleStage creates the stage.
func NewMartingaleStage(config MartingaleConfig, state *StreakState, logger zerolog.Logger) *MartingaleStage {
	return &MartingaleStage{
		config: config,
		state:  state,
		logger: logger.With().Str("component", "MartingaleStage").Logger(),
	}
}

func (s *MartingaleStage) Name() string { return "martingale" }

func (s *MartingaleStage) Apply(ctx context.Context, draft *OrderDraft) error {
	if s.config.Mode == ModeOff || s.state == nil {
		return nil
	}

	streak := s.state.Count()
	if streak == 0 {
		return nil
	}

	multiplier := math.Pow(s.config.BaseMultiplier, float64(streak))
	if multiplier > s.config.CapMultiplier {
		multiplier = s.config.CapMultiplier
	}
	draft.Notional *= multiplier

	s.logger.Debug().Int("streak", streak).Float64("multiplier", multiplier).
		Str("mode", string(s.config.Mode)).Msg("streak multiplier applied")
	return nil
}
