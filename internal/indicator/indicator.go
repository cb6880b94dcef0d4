// Package indicator implements technical indicators as pure functions over
// numeric series ordered oldest to newest. Indices without enough trailing
// data carry NaN instead of a value; callers check with IsValid. No
// function in this package panics on short or missing input.
package indicator

import (
	"math"

	"paper-trading-engine/internal/market"
)

// IsValid reports whether a series value is defined.
func IsValid(v float64) bool {
	return !math.IsNaN(v)
}

// Last returns the final value of a series, or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA calculates the Simple Moving Average. The result has the same length
// as the input; indices below period-1 are NaN.
func SMA(data []float64, period int) []float64 {
	out := undefined(len(data))
	if period <= 0 || len(data) < period {
		return out
	}

	for i := period - 1; i < len(data); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += data[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMA calculates the Exponential Moving Average. The value at period-1 is
// seeded with the SMA of the first period elements; earlier indices are NaN.
func EMA(data []float64, period int) []float64 {
	out := undefined(len(data))
	if period <= 0 || len(data) < period {
		return out
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += data[i]
	}
	out[period-1] = seed / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(data); i++ {
		out[i] = (data[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// RSI calculates the Relative Strength Index using simple trailing-window
// averages of gains and losses. Indices below period are NaN. A window with
// zero average loss yields 100.
func RSI(closes []float64, period int) []float64 {
	out := undefined(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	for i := period; i < len(closes); i++ {
		gains := 0.0
		losses := 0.0
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if change > 0 {
				gains += change
			} else {
				losses += -change
			}
		}

		avgGain := gains / float64(period)
		avgLoss := losses / float64(period)

		if avgLoss == 0 {
			out[i] = 100
			continue
		}

		rs := avgGain / avgLoss
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

// MACDResult holds the three aligned MACD series.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD calculates the MACD line, signal line and histogram. The signal
// line is the EMA of the valid MACD values, left-padded with NaN so all
// three series align with the input.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	n := len(closes)
	result := MACDResult{
		Line:      undefined(n),
		Signal:    undefined(n),
		Histogram: undefined(n),
	}

	fastEMA := EMA(closes, fastPeriod)
	slowEMA := EMA(closes, slowPeriod)

	valid := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if IsValid(fastEMA[i]) && IsValid(slowEMA[i]) {
			result.Line[i] = fastEMA[i] - slowEMA[i]
			valid = append(valid, result.Line[i])
		}
	}

	signalValid := EMA(valid, signalPeriod)
	pad := n - len(valid)
	for i, v := range signalValid {
		result.Signal[pad+i] = v
	}

	for i := 0; i < n; i++ {
		if IsValid(result.Line[i]) && IsValid(result.Signal[i]) {
			result.Histogram[i] = result.Line[i] - result.Signal[i]
		}
	}
	return result
}

// BollingerResult holds the three Bollinger Band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands calculates Bollinger Bands using an SMA middle band and
// the population standard deviation over the same trailing window.
func BollingerBands(closes []float64, period int, stdDevMultiplier float64) BollingerResult {
	n := len(closes)
	result := BollingerResult{
		Upper:  undefined(n),
		Middle: SMA(closes, period),
		Lower:  undefined(n),
	}
	if period <= 0 || n < period {
		return result
	}

	for i := period - 1; i < n; i++ {
		middle := result.Middle[i]
		if !IsValid(middle) {
			continue
		}

		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			diff := closes[j] - middle
			variance += diff * diff
		}
		stdDev := math.Sqrt(variance / float64(period))

		result.Upper[i] = middle + stdDev*stdDevMultiplier
		result.Lower[i] = middle - stdDev*stdDevMultiplier
	}
	return result
}

// ATR calculates the Average True Range as the SMA of the true-range
// series. The result aligns with the true-range series (one element per
// candle after the first). Fewer than period+1 candles yields an empty
// slice.
func ATR(candles []market.Candle, period int) []float64 {
	if period <= 0 || len(candles) < period+1 {
		return []float64{}
	}

	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trueRanges = append(trueRanges, tr)
	}

	return SMA(trueRanges, period)
}
