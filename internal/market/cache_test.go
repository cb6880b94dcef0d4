package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingSource struct {
	calls   int
	candles []Candle
	err     error
}

func (s *countingSource) FetchCandles(ctx context.Context, symbol string, interval Timeframe, limit int) ([]Candle, error) {
	s.calls++
	return s.candles, s.err
}

func TestCachedCandleSource_ServesFromCache(t *testing.T) {
	source := &countingSource{candles: []Candle{{Close: 100}}}
	cached := NewCachedCandleSource(source)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		candles, err := cached.FetchCandles(ctx, "BTCUSDT", TF5m, 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candles) != 1 {
			t.Fatalf("expected 1 candle, got %d", len(candles))
		}
	}
	if source.calls != 1 {
		t.Errorf("expected a single upstream fetch, got %d", source.calls)
	}
}

func TestCachedCandleSource_KeyedByIntervalAndLimit(t *testing.T) {
	source := &countingSource{candles: []Candle{{Close: 100}}}
	cached := NewCachedCandleSource(source)
	ctx := context.Background()

	cached.FetchCandles(ctx, "BTCUSDT", TF5m, 100)
	cached.FetchCandles(ctx, "BTCUSDT", TF15m, 100)
	cached.FetchCandles(ctx, "BTCUSDT", TF5m, 50)

	if source.calls != 3 {
		t.Errorf("distinct interval/limit pairs must fetch separately, got %d calls", source.calls)
	}
}

func TestCachedCandleSource_ErrorsAreNotCached(t *testing.T) {
	source := &countingSource{err: errors.New("feed down")}
	cached := NewCachedCandleSource(source)
	ctx := context.Background()

	if _, err := cached.FetchCandles(ctx, "BTCUSDT", TF5m, 100); err == nil {
		t.Fatal("expected an error")
	}

	source.err = nil
	source.candles = []Candle{{Close: 100}}
	candles, err := cached.FetchCandles(ctx, "BTCUSDT", TF5m, 100)
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if len(candles) != 1 || source.calls != 2 {
		t.Errorf("recovery fetch must reach upstream, calls=%d", source.calls)
	}
}

func TestCandleCache_Expiry(t *testing.T) {
	cache := NewCandleCache()
	cache.Set("k", []Candle{{Close: 1}}, 10*time.Millisecond)

	if got := cache.Get("k"); got == nil {
		t.Fatal("fresh entry must be served")
	}

	time.Sleep(20 * time.Millisecond)
	if got := cache.Get("k"); got != nil {
		t.Error("expired entry must not be served")
	}

	cache.Clear()
}

func TestClassifySentiment(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{10, "Extreme Fear"},
		{30, "Fear"},
		{50, "Neutral"},
		{70, "Greed"},
		{90, "Extreme Greed"},
	}
	for _, tt := range tests {
		if got := ClassifySentiment(tt.score); got != tt.want {
			t.Errorf("score %.0f: got %s, want %s", tt.score, got, tt.want)
		}
	}
}
