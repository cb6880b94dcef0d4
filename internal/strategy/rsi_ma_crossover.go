package strategy

import (
	"fmt"
	"time"

	"paper-trading-engine/internal/indicator"
	"paper-trading-engine/internal/market"
)

// RSIMACrossoverConfig configures the single-timeframe RSI/MA strategy.
type RSIMACrossoverConfig struct {
	FastEMAPeriod int     `json:"fast_ema_period"`
	SlowEMAPeriod int     `json:"slow_ema_period"`
	RSIPeriod     int     `json:"rsi_period"`
	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`
	BufferBars    int     `json:"buffer_bars"`
}

// DefaultRSIMACrossoverConfig returns the documented defaults.
func DefaultRSIMACrossoverConfig() RSIMACrossoverConfig {
	return RSIMACrossoverConfig{
		FastEMAPeriod: 9,
		SlowEMAPeriod: 21,
		RSIPeriod:     14,
		RSIOversold:   35,
		RSIOverbought: 65,
		BufferBars:    5,
	}
}

// RSIMACrossover signals when the RSI leaves an extreme zone while the
// fast/slow EMA alignment confirms the direction. It reads only the entry
// timeframe.
type RSIMACrossover struct {
	config RSIMACrossoverConfig
}

// NewRSIMACrossover creates the strategy with the given configuration.
func NewRSIMACrossover(config RSIMACrossoverConfig) *RSIMACrossover {
	return &RSIMACrossover{config: config}
}

func (s *RSIMACrossover) Name() string {
	return "rsi_ma_crossover"
}

// Evaluate derives a signal from the entry-timeframe candles.
func (s *RSIMACrossover) Evaluate(data *market.MultiTimeframeCandles) (*Signal, error) {
	need := s.config.SlowEMAPeriod + s.config.BufferBars
	if n := s.config.RSIPeriod + 1 + s.config.BufferBars; n > need {
		need = n
	}
	if len(data.Entry) < need {
		return Hold(fmt.Sprintf("insufficient history: need %d bars, have %d", need, len(data.Entry))), nil
	}

	closes := market.Closes(data.Entry)
	fastEMA := indicator.Last(indicator.EMA(closes, s.config.FastEMAPeriod))
	slowEMA := indicator.Last(indicator.EMA(closes, s.config.SlowEMAPeriod))
	rsi := indicator.Last(indicator.RSI(closes, s.config.RSIPeriod))

	if !indicator.IsValid(fastEMA) || !indicator.IsValid(slowEMA) || !indicator.IsValid(rsi) {
		return Hold("insufficient history: indicator values undefined at latest bar"), nil
	}

	direction := DirectionHold
	switch {
	case rsi < s.config.RSIOversold && fastEMA > slowEMA:
		direction = DirectionBuy
	case rsi > s.config.RSIOverbought && fastEMA < slowEMA:
		direction = DirectionShort
	}

	confidence := 0.0
	if direction == DirectionBuy {
		confidence = clamp(50+(s.config.RSIOversold-rsi)*2, 0, 95)
	} else if direction == DirectionShort {
		confidence = clamp(50+(rsi-s.config.RSIOverbought)*2, 0, 95)
	}

	return &Signal{
		Direction: direction,
		Rationale: fmt.Sprintf("rsi=%.1f ema_fast=%.4f ema_slow=%.4f", rsi, fastEMA, slowEMA),
		Confidence: confidence,
		Indicators: map[string]float64{
			"ema_fast": fastEMA,
			"ema_slow": slowEMA,
			"rsi":      rsi,
			"close":    closes[len(closes)-1],
		},
		Timestamp: time.Now(),
	}, nil
}
