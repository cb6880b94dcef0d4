package database

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestRedisStateStore_MemoryOnlyFallback(t *testing.T) {
	store := NewRedisStateStore(nil, zerolog.Nop())

	if store.Available() {
		t.Error("store without a client must not report redis as available")
	}

	if err := store.SaveStreak(context.Background(), "martingale", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mode, count := store.LoadStreak(context.Background())
	if mode != "martingale" || count != 3 {
		t.Errorf("expected martingale/3, got %s/%d", mode, count)
	}
}

func TestRedisStateStore_LoadWithoutSave(t *testing.T) {
	store := NewRedisStateStore(nil, zerolog.Nop())

	mode, count := store.LoadStreak(context.Background())
	if mode != "" || count != 0 {
		t.Errorf("expected empty streak, got %s/%d", mode, count)
	}
}
