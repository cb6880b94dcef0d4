package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// BinanceSource fetches public candlestick data from the Binance REST
// API. Only unauthenticated market data endpoints are used; no orders
// ever leave this process.
type BinanceSource struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewBinanceSource creates a candle source against the given base URL,
// e.g. https://api.binance.com.
func NewBinanceSource(baseURL string, logger zerolog.Logger) *BinanceSource {
	return &BinanceSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "BinanceSource").Logger(),
	}
}

// FetchCandles fetches klines for a symbol in ascending timestamp order.
func (s *BinanceSource) FetchCandles(ctx context.Context, symbol string, interval Timeframe, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building klines request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading klines response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines API error (%d): %s", resp.StatusCode, string(body))
	}

	// Klines arrive as positional arrays of mixed numbers and strings.
	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 6 {
			return nil, fmt.Errorf("malformed kline with %d fields", len(raw))
		}
		openTime, ok := raw[0].(float64)
		if !ok {
			return nil, fmt.Errorf("malformed kline open time %v", raw[0])
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(int64(openTime)),
			Open:     parseFloat(raw[1]),
			High:     parseFloat(raw[2]),
			Low:      parseFloat(raw[3]),
			Close:    parseFloat(raw[4]),
			Volume:   parseFloat(raw[5]),
		})
	}

	s.logger.Debug().Str("symbol", symbol).Str("interval", string(interval)).
		Int("candles", len(candles)).Msg("klines fetched")
	return candles, nil
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
