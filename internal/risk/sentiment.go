package risk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"paper-trading-engine/internal/market"
	"paper-trading-engine/internal/strategy"
)

// SentimentConfig configures the sentiment adjustment stage.
type SentimentConfig struct {
	Enabled              bool    `json:"enabled"`
	ExtremeGreedScore    float64 `json:"extreme_greed_score"`    // score at/above which greed is extreme
	ExtremeFearScore     float64 `json:"extreme_fear_score"`     // score at/below which fear is extreme
	ContrarianBoost      float64 `json:"contrarian_boost"`       // confidence added to contrarian signals
	AlignedPenalty       float64 `json:"aligned_penalty"`        // confidence removed from aligned signals
	BuyConfidenceFloor   float64 `json:"buy_confidence_floor"`   // min buy confidence under extreme greed
	ShortConfidenceFloor float64 `json:"short_confidence_floor"` // min short confidence under extreme fear
}

// DefaultSentimentConfig returns the documented defaults. The floors are
// deliberately asymmetric: greed-chasing longs fail more often than
// fear-chasing shorts in the aggregated history.
func DefaultSentimentConfig() SentimentConfig {
	return SentimentConfig{
		Enabled:              true,
		ExtremeGreedScore:    75,
		ExtremeFearScore:     25,
		ContrarianBoost:      10,
		AlignedPenalty:       15,
		BuyConfidenceFloor:   50,
		ShortConfidenceFloor: 40,
	}
}

// SentimentStage boosts contrarian signals and penalizes signals aligned
// with a sentiment extreme. A source failure degrades to a neutral score.
type SentimentStage struct {
	config SentimentConfig
	source market.SentimentSource
	logger zerolog.Logger
}

// NewSentimentStage creates the stage.
func NewSentimentStage(config SentimentConfig, source market.SentimentSource, logger zerolog.Logger) *SentimentStage {
	return &SentimentStage{
		config: config,
		source: source,
		logger: logger.With().Str("component", "SentimentStage").Logger(),
	}
}

func (s *SentimentStage) Name() string { return "sentiment" }

func (s *SentimentStage) Apply(ctx context.Context, draft *OrderDraft) error {
	if !s.config.Enabled {
		return nil
	}

	reading, err := s.source.GetSentiment(ctx, draft.Symbol)
	if err != nil || reading == nil {
		s.logger.Debug().Err(err).Str("symbol", draft.Symbol).Msg("sentiment unavailable, using neutral")
		reading = market.NeutralSentiment()
	}

	switch {
	case reading.Score >= s.config.ExtremeGreedScore:
		if draft.Direction == strategy.DirectionBuy {
			draft.Confidence = clamp(draft.Confidence-s.config.AlignedPenalty, 0, 100)
			if draft.Confidence < s.config.BuyConfidenceFloor {
				draft.Veto(s.Name(), fmt.Sprintf(
					"buy confidence %.1f below floor %.1f under extreme greed (score %.0f)",
					draft.Confidence, s.config.BuyConfidenceFloor, reading.Score))
			}
		} else if draft.Direction == strategy.DirectionShort {
			draft.Confidence = clamp(draft.Confidence+s.config.ContrarianBoost, 0, 100)
		}

	case reading.Score <= s.config.ExtremeFearScore:
		if draft.Direction == strategy.DirectionShort {
			draft.Confidence = clamp(draft.Confidence-s.config.AlignedPenalty, 0, 100)
			if draft.Confidence < s.config.ShortConfidenceFloor {
				draft.Veto(s.Name(), fmt.Sprintf(
					"short confidence %.1f below floor %.1f under extreme fear (score %.0f)",
					draft.Confidence, s.config.ShortConfidenceFloor, reading.Score))
			}
		} else if draft.Direction == strategy.DirectionBuy {
			draft.Confidence = clamp(draft.Confidence+s.config.ContrarianBoost, 0, 100)
		}
	}
	return nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
