package indicator

import (
	"math"
	"testing"

	"paper-trading-engine/internal/market"
)

const tolerance = 1e-6

// Closes from the classic Wilder RSI worked example.
var wilderCloses = []float64{
	44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08,
	45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64,
	46.21, 46.25, 45.71, 46.45, 45.78, 45.35, 44.03, 44.18, 44.22, 44.57,
}

var sampleCloses = []float64{
	22.27, 22.19, 22.08, 22.17, 22.18, 22.13, 22.23, 22.43, 22.24, 22.29,
	22.15, 22.39, 22.38, 22.61, 23.36, 24.05, 23.75, 23.83, 23.95, 23.63,
	23.82, 23.87, 23.65, 23.19, 23.10, 23.33, 22.68, 23.10, 22.40, 22.17,
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestSMA(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	sma := SMA(data, 3)

	if len(sma) != len(data) {
		t.Fatalf("expected same-length output, got %d", len(sma))
	}
	for i := 0; i < 2; i++ {
		if IsValid(sma[i]) {
			t.Errorf("index %d should be undefined, got %f", i, sma[i])
		}
	}
	for i := 2; i < len(data); i++ {
		expected := float64(i) // mean of i-1, i, i+1 (1-based values)
		if !approxEqual(sma[i], expected) {
			t.Errorf("SMA[%d]: expected %f, got %f", i, expected, sma[i])
		}
	}

	if !approxEqual(SMA(sampleCloses, 10)[9], 22.221000) {
		t.Errorf("SMA10[9]: expected 22.221000, got %f", SMA(sampleCloses, 10)[9])
	}
	if !approxEqual(SMA(sampleCloses, 10)[29], 23.131000) {
		t.Errorf("SMA10[29]: expected 23.131000, got %f", SMA(sampleCloses, 10)[29])
	}
}

func TestSMA_InsufficientData(t *testing.T) {
	sma := SMA([]float64{1, 2}, 5)
	for i, v := range sma {
		if IsValid(v) {
			t.Errorf("index %d should be undefined with insufficient data", i)
		}
	}
}

func TestEMA(t *testing.T) {
	ema := EMA(sampleCloses, 10)

	for i := 0; i < 9; i++ {
		if IsValid(ema[i]) {
			t.Errorf("index %d should be undefined, got %f", i, ema[i])
		}
	}
	// Seed equals the SMA of the first 10 closes.
	if !approxEqual(ema[9], 22.221000) {
		t.Errorf("EMA10 seed: expected 22.221000, got %f", ema[9])
	}
	if !approxEqual(ema[29], 22.915004) {
		t.Errorf("EMA10[29]: expected 22.915004, got %f", ema[29])
	}
}

func TestRSI_WilderExample(t *testing.T) {
	rsi := RSI(wilderCloses, 14)

	for i := 0; i < 14; i++ {
		if IsValid(rsi[i]) {
			t.Errorf("index %d should be undefined, got %f", i, rsi[i])
		}
	}
	if !approxEqual(rsi[14], 70.4641350211) {
		t.Errorf("RSI[14]: expected 70.4641350211, got %.10f", rsi[14])
	}
	if !approxEqual(rsi[29], 38.1426202322) {
		t.Errorf("RSI[29]: expected 38.1426202322, got %.10f", rsi[29])
	}
}

func TestRSI_AllGains(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	rsi := RSI(closes, 14)
	if got := Last(rsi); got != 100 {
		t.Errorf("monotonic rising series: expected RSI 100, got %f", got)
	}
}

func TestMACD(t *testing.T) {
	result := MACD(sampleCloses, 3, 6, 4)

	// First valid signal index is (slow-1)+(signal-1).
	firstSignal := 8
	for i := 0; i < firstSignal; i++ {
		if IsValid(result.Signal[i]) {
			t.Errorf("signal[%d] should be undefined", i)
		}
	}
	if !IsValid(result.Signal[firstSignal]) {
		t.Errorf("signal[%d] should be defined", firstSignal)
	}

	if !approxEqual(result.Line[29], -0.278298) {
		t.Errorf("MACD line[29]: expected -0.278298, got %f", result.Line[29])
	}
	if !approxEqual(result.Signal[29], -0.207110) {
		t.Errorf("MACD signal[29]: expected -0.207110, got %f", result.Signal[29])
	}
	if !approxEqual(result.Histogram[29], -0.071188) {
		t.Errorf("MACD histogram[29]: expected -0.071188, got %f", result.Histogram[29])
	}
}

func TestBollingerBands(t *testing.T) {
	result := BollingerBands(sampleCloses, 20, 2)

	if IsValid(result.Upper[18]) {
		t.Error("upper[18] should be undefined")
	}
	if !approxEqual(result.Middle[19], 22.715500) {
		t.Errorf("middle[19]: expected 22.715500, got %f", result.Middle[19])
	}
	if !approxEqual(result.Upper[19], 24.126053) {
		t.Errorf("upper[19]: expected 24.126053, got %f", result.Upper[19])
	}
	if !approxEqual(result.Lower[19], 21.304947) {
		t.Errorf("lower[19]: expected 21.304947, got %f", result.Lower[19])
	}
	if !approxEqual(result.Upper[29], 24.435466) {
		t.Errorf("upper[29]: expected 24.435466, got %f", result.Upper[29])
	}
	if !approxEqual(result.Lower[29], 21.905534) {
		t.Errorf("lower[29]: expected 21.905534, got %f", result.Lower[29])
	}
}

func TestATR(t *testing.T) {
	bars := [][3]float64{
		{48.70, 47.79, 48.16}, {48.72, 48.14, 48.61}, {48.90, 48.39, 48.75},
		{48.87, 48.37, 48.63}, {48.82, 48.24, 48.74}, {49.05, 48.64, 49.03},
		{49.20, 48.94, 49.07}, {49.35, 48.86, 49.32}, {49.92, 49.50, 49.91},
		{50.19, 49.87, 50.13}, {50.12, 49.20, 49.53}, {49.66, 48.90, 49.50},
		{49.88, 49.43, 49.75}, {50.19, 49.73, 50.03}, {50.36, 49.26, 50.31},
		{50.57, 50.09, 50.52}, {50.65, 50.30, 50.41},
	}
	candles := make([]market.Candle, len(bars))
	for i, b := range bars {
		candles[i] = market.Candle{High: b[0], Low: b[1], Close: b[2]}
	}

	atr := ATR(candles, 14)
	if len(atr) != len(candles)-1 {
		t.Fatalf("expected %d ATR values, got %d", len(candles)-1, len(atr))
	}
	if !approxEqual(atr[13], 0.567857) {
		t.Errorf("ATR[13]: expected 0.567857, got %f", atr[13])
	}
	if !approxEqual(atr[15], 0.549286) {
		t.Errorf("ATR[15]: expected 0.549286, got %f", atr[15])
	}
}

func TestATR_InsufficientData(t *testing.T) {
	candles := []market.Candle{
		{High: 10, Low: 9, Close: 9.5},
		{High: 11, Low: 10, Close: 10.5},
	}
	if atr := ATR(candles, 14); len(atr) != 0 {
		t.Errorf("expected empty ATR with insufficient data, got %d values", len(atr))
	}
}

func TestLast(t *testing.T) {
	if IsValid(Last(nil)) {
		t.Error("Last of empty series should be undefined")
	}
	if got := Last([]float64{1, 2, 3}); got != 3 {
		t.Errorf("expected 3, got %f", got)
	}
}
