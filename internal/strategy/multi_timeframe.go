package strategy

import (
	"fmt"
	"math"
	"time"

	"paper-trading-engine/internal/indicator"
	"paper-trading-engine/internal/market"
)

// classification is the five-way taxonomy shared by the trend and momentum
// components.
type classification string

const (
	classBullish     classification = "bullish"
	classWeakBullish classification = "weak_bullish"
	classNeutral     classification = "neutral"
	classWeakBearish classification = "weak_bearish"
	classBearish     classification = "bearish"
)

func (c classification) bullishLeaning() bool {
	return c == classBullish || c == classWeakBullish
}

func (c classification) bearishLeaning() bool {
	return c == classBearish || c == classWeakBearish
}

// entryState classifies the RSI entry trigger.
type entryState string

const (
	entryOversold   entryState = "oversold"
	entryOverbought entryState = "overbought"
	entryNeutral    entryState = "neutral"
)

// MultiTimeframeConfig configures the multi-timeframe confluence strategy.
type MultiTimeframeConfig struct {
	FastEMAPeriod  int     `json:"fast_ema_period"`
	SlowEMAPeriod  int     `json:"slow_ema_period"`
	MACDFast       int     `json:"macd_fast"`
	MACDSlow       int     `json:"macd_slow"`
	MACDSignal     int     `json:"macd_signal"`
	RSIPeriod      int     `json:"rsi_period"`
	RSIOversold    float64 `json:"rsi_oversold"`
	RSIOverbought  float64 `json:"rsi_overbought"`
	StrongTrendGap float64 `json:"strong_trend_gap"` // EMA gap % for a strong trend
	Strict         bool    `json:"strict"`           // require 3-of-3 confluence
	BufferBars     int     `json:"buffer_bars"`      // extra bars beyond the largest lookback
}

// DefaultMultiTimeframeConfig returns the documented defaults.
func DefaultMultiTimeframeConfig() MultiTimeframeConfig {
	return MultiTimeframeConfig{
		FastEMAPeriod:  9,
		SlowEMAPeriod:  21,
		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		RSIPeriod:      14,
		RSIOversold:    30,
		RSIOverbought:  70,
		StrongTrendGap: 0.5,
		Strict:         false,
		BufferBars:     5,
	}
}

// MultiTimeframe trades confluence across three timeframes: trend on the
// highest, momentum on the middle, entry trigger on the lowest.
type MultiTimeframe struct {
	config MultiTimeframeConfig
}

// NewMultiTimeframe creates the strategy with the given configuration.
func NewMultiTimeframe(config MultiTimeframeConfig) *MultiTimeframe {
	return &MultiTimeframe{config: config}
}

func (s *MultiTimeframe) Name() string {
	return "multi_timeframe"
}

// minBars is the largest lookback any component needs plus a buffer.
func (s *MultiTimeframe) minBars() int {
	min := s.config.SlowEMAPeriod
	if n := s.config.MACDSlow + s.config.MACDSignal; n > min {
		min = n
	}
	if n := s.config.RSIPeriod + 1; n > min {
		min = n
	}
	return min + s.config.BufferBars
}

// Evaluate derives a signal from the three aligned timeframes.
func (s *MultiTimeframe) Evaluate(data *market.MultiTimeframeCandles) (*Signal, error) {
	need := s.minBars()
	if len(data.Trend) < need || len(data.Middle) < need || len(data.Entry) < need {
		return Hold(fmt.Sprintf("insufficient history: need %d bars, have trend=%d middle=%d entry=%d",
			need, len(data.Trend), len(data.Middle), len(data.Entry))), nil
	}

	trend, trendStrength, fastEMA, slowEMA := s.classifyTrend(data.Trend)
	momentum, momentumStrength, histogram := s.classifyMomentum(data.Middle)
	entry, entryStrength, rsi := s.classifyEntry(data.Entry)

	if !indicator.IsValid(fastEMA) || !indicator.IsValid(histogram) || !indicator.IsValid(rsi) {
		return Hold("insufficient history: indicator values undefined at latest bar"), nil
	}

	direction := s.decide(trend, momentum, entry)

	confidence := 0.0
	if direction != DirectionHold {
		confidence = (trendStrength + momentumStrength + entryStrength) / 3
		if confidence > 95 {
			confidence = 95
		}
	}

	return &Signal{
		Direction: direction,
		Rationale: fmt.Sprintf("trend=%s momentum=%s rsi=%.1f (%s)",
			trend, momentum, rsi, entry),
		Confidence: confidence,
		Indicators: map[string]float64{
			"ema_fast":       fastEMA,
			"ema_slow":       slowEMA,
			"macd_histogram": histogram,
			"rsi":            rsi,
			"close":          data.Entry[len(data.Entry)-1].Close,
		},
		Timestamp: time.Now(),
	}, nil
}

// classifyTrend compares fast/slow EMA and the current close on the
// highest timeframe.
func (s *MultiTimeframe) classifyTrend(candles []market.Candle) (classification, float64, float64, float64) {
	closes := market.Closes(candles)
	fastEMA := indicator.Last(indicator.EMA(closes, s.config.FastEMAPeriod))
	slowEMA := indicator.Last(indicator.EMA(closes, s.config.SlowEMAPeriod))
	currentClose := closes[len(closes)-1]

	if !indicator.IsValid(fastEMA) || !indicator.IsValid(slowEMA) || slowEMA == 0 {
		return classNeutral, 50, math.NaN(), math.NaN()
	}

	gapPct := (fastEMA - slowEMA) / slowEMA * 100
	strength := clamp(50+math.Abs(gapPct)*25, 0, 100)

	var class classification
	switch {
	case gapPct > s.config.StrongTrendGap && currentClose > fastEMA:
		class = classBullish
	case gapPct > 0:
		class = classWeakBullish
	case gapPct < -s.config.StrongTrendGap && currentClose < fastEMA:
		class = classBearish
	case gapPct < 0:
		class = classWeakBearish
	default:
		class = classNeutral
		strength = 50
	}
	return class, strength, fastEMA, slowEMA
}

// classifyMomentum reads the MACD histogram sign and its first difference
// versus the prior bar on the middle timeframe.
func (s *MultiTimeframe) classifyMomentum(candles []market.Candle) (classification, float64, float64) {
	closes := market.Closes(candles)
	macd := indicator.MACD(closes, s.config.MACDFast, s.config.MACDSlow, s.config.MACDSignal)

	n := len(macd.Histogram)
	current := macd.Histogram[n-1]
	previous := macd.Histogram[n-2]

	if !indicator.IsValid(current) || !indicator.IsValid(previous) {
		return classNeutral, 50, current
	}

	switch {
	case current > 0 && current > previous:
		return classBullish, 75, current
	case current > 0:
		return classWeakBullish, 60, current
	case current < 0 && current < previous:
		return classBearish, 75, current
	case current < 0:
		return classWeakBearish, 60, current
	default:
		return classNeutral, 50, current
	}
}

// classifyEntry checks the RSI entry trigger on the lowest timeframe.
func (s *MultiTimeframe) classifyEntry(candles []market.Candle) (entryState, float64, float64) {
	closes := market.Closes(candles)
	rsi := indicator.Last(indicator.RSI(closes, s.config.RSIPeriod))

	if !indicator.IsValid(rsi) {
		return entryNeutral, 50, rsi
	}

	switch {
	case rsi < s.config.RSIOversold:
		return entryOversold, clamp(50+(s.config.RSIOversold-rsi)*2, 0, 100), rsi
	case rsi > s.config.RSIOverbought:
		return entryOverbought, clamp(50+(rsi-s.config.RSIOverbought)*2, 0, 100), rsi
	default:
		return entryNeutral, 50, rsi
	}
}

// decide applies strict 3-of-3 or relaxed 2-of-3 confluence.
func (s *MultiTimeframe) decide(trend, momentum classification, entry entryState) Direction {
	if s.config.Strict {
		if trend.bullishLeaning() && momentum.bullishLeaning() && entry == entryOversold {
			return DirectionBuy
		}
		if trend.bearishLeaning() && momentum.bearishLeaning() && entry == entryOverbought {
			return DirectionShort
		}
		return DirectionHold
	}

	buyScore := 0
	shortScore := 0
	if trend.bullishLeaning() {
		buyScore++
	}
	if trend.bearishLeaning() {
		shortScore++
	}
	if momentum.bullishLeaning() {
		buyScore++
	}
	if momentum.bearishLeaning() {
		shortScore++
	}
	if entry == entryOversold {
		buyScore++
	}
	if entry == entryOverbought {
		shortScore++
	}

	switch {
	case buyScore >= 2 && buyScore > shortScore:
		return DirectionBuy
	case shortScore >= 2 && shortScore > buyScore:
		return DirectionShort
	default:
		return DirectionHold
	}
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
