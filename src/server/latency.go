package server

import (
	"sort"
	"sync"
	"time"
)

const defaultLatencyWindow = 10000

// latencyWindow keeps the most recent matching pass durations.
type latencyWindow struct {
	mu        sync.RWMutex
	latencies []time.Duration
	size      int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = defaultLatencyWindow
	}
	return &latencyWindow{
		latencies: make([]time.Duration, 0, size),
		size:      size,
	}
}

func (w *latencyWindow) record(latency time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.latencies = append(w.latencies, latency)

	// edge case: maintain rolling window by removing oldest measurements
	if len(w.latencies) > w.size {
		removeCount := len(w.latencies) - w.size
		w.latencies = append(w.latencies[:0], w.latencies[removeCount:]...)
	}
}

func (w *latencyWindow) percentiles() (p50, p99, p999 time.Duration) {
	w.mu.RLock()
	sorted := make([]time.Duration, len(w.latencies))
	copy(sorted, w.latencies)
	w.mu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	at := func(q float64) time.Duration {
		idx := int(float64(len(sorted)) * q)
		// edge case: ensure index is within bounds
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return at(0.50), at(0.99), at(0.999)
}
