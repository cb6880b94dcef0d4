package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CandleCache provides TTL caching for candle data so repeated lookups
// within one cycle (or across stages) do not hit the upstream source.
type CandleCache struct {
	data map[string]*cacheEntry
	mu   sync.RWMutex
}

type cacheEntry struct {
	candles   []Candle
	expiresAt time.Time
}

// NewCandleCache creates an empty candle cache.
func NewCandleCache() *CandleCache {
	return &CandleCache{data: make(map[string]*cacheEntry)}
}

// Get retrieves cached candles if not expired.
func (c *CandleCache) Get(key string) []Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.candles
}

// Set stores candles with an expiration.
func (c *CandleCache) Set(key string, candles []Candle, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = &cacheEntry{candles: candles, expiresAt: time.Now().Add(ttl)}
}

// Clear removes expired entries.
func (c *CandleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

// CachedCandleSource wraps a CandleSource with a TTL cache keyed by
// symbol, interval and limit.
type CachedCandleSource struct {
	source CandleSource
	cache  *CandleCache
}

// NewCachedCandleSource wraps source with caching.
func NewCachedCandleSource(source CandleSource) *CachedCandleSource {
	return &CachedCandleSource{source: source, cache: NewCandleCache()}
}

// FetchCandles returns cached candles when fresh, otherwise fetches from
// the underlying source and caches the result.
func (s *CachedCandleSource) FetchCandles(ctx context.Context, symbol string, interval Timeframe, limit int) ([]Candle, error) {
	key := fmt.Sprintf("%s:%s:%d", symbol, interval, limit)

	if cached := s.cache.Get(key); cached != nil {
		return cached, nil
	}

	candles, err := s.source.FetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, candles, cacheTTL(interval))
	return candles, nil
}

// cacheTTL returns an appropriate cache TTL based on timeframe.
func cacheTTL(interval Timeframe) time.Duration {
	switch interval {
	case TF1m:
		return 30 * time.Second
	case TF5m:
		return 2 * time.Minute
	case TF15m:
		return 5 * time.Minute
	case TF1h:
		return 30 * time.Minute
	case TF4h:
		return 2 * time.Hour
	case TF1d:
		return 12 * time.Hour
	default:
		return time.Minute
	}
}
