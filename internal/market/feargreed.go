package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const fearGreedURL = "https://api.alternative.me/fng/?limit=1"

// fearGreedResponse is the alternative.me Fear & Greed index payload.
type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// FearGreedSource reads the crypto Fear & Greed index. The index is
// market-wide, so the symbol argument is ignored. Readings are cached
// because the upstream index updates only a few times per day.
type FearGreedSource struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
	cacheTTL   time.Duration

	mu        sync.Mutex
	cached    *SentimentReading
	refreshAt time.Time
}

// NewFearGreedSource creates the source with a one hour reading cache.
func NewFearGreedSource(logger zerolog.Logger) *FearGreedSource {
	return &FearGreedSource{
		url:        fearGreedURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "FearGreedSource").Logger(),
		cacheTTL:   time.Hour,
	}
}

// GetSentiment returns the latest index reading.
func (s *FearGreedSource) GetSentiment(ctx context.Context, symbol string) (*SentimentReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Now().Before(s.refreshAt) {
		return s.cached, nil
	}

	reading, err := s.fetch(ctx)
	if err != nil {
		// A stale reading beats no reading.
		if s.cached != nil {
			s.logger.Warn().Err(err).Msg("fear and greed refresh failed, serving stale reading")
			return s.cached, nil
		}
		return nil, err
	}

	s.cached = reading
	s.refreshAt = time.Now().Add(s.cacheTTL)
	return reading, nil
}

func (s *FearGreedSource) fetch(ctx context.Context) (*SentimentReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building fear and greed request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching fear and greed index: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading fear and greed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fear and greed API error (%d)", resp.StatusCode)
	}

	var payload fearGreedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing fear and greed response: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("empty fear and greed response")
	}

	score, err := strconv.ParseFloat(payload.Data[0].Value, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing fear and greed value: %w", err)
	}

	return &SentimentReading{
		Score:          score,
		Classification: ClassifySentiment(score),
		TradingBias:    tradingBias(score),
		UpdatedAt:      time.Now(),
	}, nil
}

// tradingBias maps extreme readings to the contrarian bias the sentiment
// stage rewards.
func tradingBias(score float64) string {
	switch {
	case score <= 25:
		return "contrarian_buy"
	case score >= 75:
		return "contrarian_short"
	default:
		return "none"
	}
}
