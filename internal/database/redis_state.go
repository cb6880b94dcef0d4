package database

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// streakKey holds the martingale streak so a restart resumes the
	// progression instead of resetting it.
	streakKey = "paper:streak"

	// streakTTL bounds how long a stale streak survives. A streak older
	// than this no longer reflects recent trading.
	streakTTL = 24 * time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// streakRecord is the persisted form of the martingale streak.
type streakRecord struct {
	Mode    string    `json:"mode"`
	Count   int       `json:"count"`
	SavedAt time.Time `json:"saved_at"`
}

// RedisStateStore mirrors small hot engine state in Redis with an
// in-memory fallback. When Redis is unavailable the engine keeps running
// on the fallback; the mirror resynchronizes on the next successful write.
type RedisStateStore struct {
	client    *redis.Client
	logger    zerolog.Logger
	available atomic.Bool

	mu       sync.RWMutex
	fallback map[string][]byte
}

// NewRedisStateStore creates the store. A nil client means memory-only
// operation.
func NewRedisStateStore(client *redis.Client, logger zerolog.Logger) *RedisStateStore {
	store := &RedisStateStore{
		client:   client,
		logger:   logger.With().Str("component", "RedisState").Logger(),
		fallback: make(map[string][]byte),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			store.logger.Warn().Err(err).Msg("redis unavailable at startup, using in-memory fallback")
		} else {
			store.available.Store(true)
			store.logger.Info().Msg("redis connected")
		}
	} else {
		store.logger.Info().Msg("no redis client configured, state is in-memory only")
	}
	return store
}

// SaveStreak persists the current martingale streak.
func (s *RedisStateStore) SaveStreak(ctx context.Context, mode string, count int) error {
	payload, err := json.Marshal(streakRecord{Mode: mode, Count: count, SavedAt: time.Now()})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.fallback[streakKey] = payload
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	if err := s.client.Set(ctx, streakKey, payload, streakTTL).Err(); err != nil {
		if s.available.Swap(false) {
			s.logger.Warn().Err(err).Msg("redis write failed, falling back to memory")
		}
		return nil
	}
	s.available.Store(true)
	return nil
}

// LoadStreak reads the persisted streak. Returns zero values when no
// streak is stored or Redis is unreachable; the engine then starts from
// a clean streak.
func (s *RedisStateStore) LoadStreak(ctx context.Context) (mode string, count int) {
	payload := s.loadKey(ctx, streakKey)
	if payload == nil {
		return "", 0
	}

	var record streakRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		s.logger.Warn().Err(err).Msg("corrupt streak record ignored")
		return "", 0
	}
	if time.Since(record.SavedAt) > streakTTL {
		return "", 0
	}
	return record.Mode, record.Count
}

// loadKey reads from Redis when available, otherwise from the fallback.
func (s *RedisStateStore) loadKey(ctx context.Context, key string) []byte {
	if s.client != nil {
		payload, err := s.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			s.available.Store(true)
			return payload
		case err == redis.Nil:
			return nil
		default:
			if s.available.Swap(false) {
				s.logger.Warn().Err(err).Msg("redis read failed, falling back to memory")
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback[key]
}

// Available reports whether the last Redis operation succeeded.
func (s *RedisStateStore) Available() bool {
	return s.available.Load()
}

// NewRedisClient creates a Redis client from configuration. Returns nil
// when Redis is disabled.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
