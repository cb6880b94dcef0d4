package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBinanceSource_FetchCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("unexpected symbol %q", got)
		}
		if got := r.URL.Query().Get("interval"); got != "5m" {
			t.Errorf("unexpected interval %q", got)
		}
		w.Write([]byte(`[
			[1700000000000, "100.5", "101.0", "99.5", "100.8", "1234.5", 1700000299999, "0", 10, "0", "0", "0"],
			[1700000300000, "100.8", "102.0", "100.1", "101.9", "2345.6", 1700000599999, "0", 12, "0", "0", "0"]
		]`))
	}))
	defer server.Close()

	source := NewBinanceSource(server.URL, zerolog.Nop())
	candles, err := source.FetchCandles(context.Background(), "BTCUSDT", TF5m, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}

	first := candles[0]
	if !first.OpenTime.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected open time %v", first.OpenTime)
	}
	if first.Open != 100.5 || first.High != 101.0 || first.Low != 99.5 || first.Close != 100.8 {
		t.Errorf("unexpected OHLC %+v", first)
	}
	if candles[1].Close != 101.9 {
		t.Errorf("expected second close 101.9, got %f", candles[1].Close)
	}
}

func TestBinanceSource_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"rate limited"}`))
	}))
	defer server.Close()

	source := NewBinanceSource(server.URL, zerolog.Nop())
	if _, err := source.FetchCandles(context.Background(), "BTCUSDT", TF5m, 10); err == nil {
		t.Fatal("expected an error on non-200 response")
	}
}

func TestFearGreedSource_CachesAndClassifies(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data":[{"value":"18","value_classification":"Extreme Fear","timestamp":"1700000000"}]}`))
	}))
	defer server.Close()

	source := NewFearGreedSource(zerolog.Nop())
	source.url = server.URL

	for i := 0; i < 3; i++ {
		reading, err := source.GetSentiment(context.Background(), "BTCUSDT")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reading.Score != 18 {
			t.Errorf("expected score 18, got %f", reading.Score)
		}
		if reading.Classification != "Extreme Fear" {
			t.Errorf("unexpected classification %s", reading.Classification)
		}
		if reading.TradingBias != "contrarian_buy" {
			t.Errorf("unexpected bias %s", reading.TradingBias)
		}
	}
	if calls != 1 {
		t.Errorf("reading must be cached, got %d upstream calls", calls)
	}
}

func TestFearGreedSource_ServesStaleOnFailure(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":[{"value":"80","value_classification":"Extreme Greed","timestamp":"1700000000"}]}`))
	}))
	defer server.Close()

	source := NewFearGreedSource(zerolog.Nop())
	source.url = server.URL

	if _, err := source.GetSentiment(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	healthy = false
	source.refreshAt = time.Now().Add(-time.Minute) // force a refresh attempt

	reading, err := source.GetSentiment(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("stale reading expected, got error: %v", err)
	}
	if reading.Score != 80 {
		t.Errorf("expected stale score 80, got %f", reading.Score)
	}
}
