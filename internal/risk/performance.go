package risk

import (
	"context"
	"sync"
)

// PerformanceTracker keeps a bounded window of recent trade results and
// implements PerformanceProvider for the sizing stage. The engine records
// one result per closed trade.
type PerformanceTracker struct {
	mu       sync.Mutex
	results  []bool
	capacity int
}

// NewPerformanceTracker creates a tracker remembering the last capacity
// results.
func NewPerformanceTracker(capacity int) *PerformanceTracker {
	if capacity <= 0 {
		capacity = 50
	}
	return &PerformanceTracker{capacity: capacity}
}

// Record appends one closed-trade result, evicting the oldest beyond
// capacity.
func (t *PerformanceTracker) Record(win bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.results = append(t.results, win)
	if len(t.results) > t.capacity {
		t.results = t.results[len(t.results)-t.capacity:]
	}
}

// RecentPerformance summarizes the window.
func (t *PerformanceTracker) RecentPerformance(ctx context.Context) (PerformanceSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := PerformanceSnapshot{Trades: len(t.results)}
	for _, win := range t.results {
		if win {
			snapshot.Wins++
		}
	}

	// Signed streak from the tail of the window.
	for i := len(t.results) - 1; i >= 0; i-- {
		if t.results[i] != t.results[len(t.results)-1] {
			break
		}
		if t.results[i] {
			snapshot.Streak++
		} else {
			snapshot.Streak--
		}
	}
	return snapshot, nil
}
