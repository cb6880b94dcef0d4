package market

import (
	"context"
	"errors"
	"time"
)

// Timeframe represents a chart candle interval.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Candle is a single OHLCV bar. Candles are ordered oldest to newest and
// never mutated after they are fetched.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Closes extracts the close series from a candle slice.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// MultiTimeframeCandles holds aligned candle series for one symbol across
// the three timeframes the multi-timeframe strategy consumes.
type MultiTimeframeCandles struct {
	Symbol    string
	Timestamp time.Time
	Entry     []Candle // lowest timeframe, entry trigger
	Middle    []Candle // middle timeframe, momentum
	Trend     []Candle // highest timeframe, trend
}

// ErrDataUnavailable signals that a candle or sentiment fetch failed. The
// engine skips the symbol for the cycle instead of aborting.
var ErrDataUnavailable = errors.New("market data unavailable")

// CandleSource fetches candles for a symbol. Implementations must return
// candles in ascending timestamp order.
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol string, interval Timeframe, limit int) ([]Candle, error)
}

// SentimentReading is an aggregated market sentiment score.
type SentimentReading struct {
	Score          float64   `json:"score"` // 0 = extreme fear, 100 = extreme greed
	Classification string    `json:"classification"`
	TradingBias    string    `json:"trading_bias"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SentimentSource provides best-effort sentiment data. Failures degrade to
// a neutral reading rather than blocking the trading cycle.
type SentimentSource interface {
	GetSentiment(ctx context.Context, symbol string) (*SentimentReading, error)
}

// NeutralSentiment is the fallback reading used when the source fails.
func NeutralSentiment() *SentimentReading {
	return &SentimentReading{
		Score:          50,
		Classification: "Neutral",
		TradingBias:    "none",
		UpdatedAt:      time.Now(),
	}
}

// ClassifySentiment maps a 0-100 score to a fear/greed label.
func ClassifySentiment(score float64) string {
	switch {
	case score <= 20:
		return "Extreme Fear"
	case score <= 40:
		return "Fear"
	case score < 60:
		return "Neutral"
	case score < 80:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}
