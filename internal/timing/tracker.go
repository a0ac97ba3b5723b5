// Package timing keeps a bounded history of durations per named operation.
package timing

import (
	"sync"
	"time"
)

// DefaultHistory is the number of samples retained per operation.
const DefaultHistory = 128

type Tracker struct {
	mu      sync.RWMutex
	timings map[string][]time.Duration
	history int
	enabled bool
}

// NewTracker keeps at most history samples per operation; history <= 0
// selects DefaultHistory.
func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Tracker{
		timings: make(map[string][]time.Duration),
		history: history,
		enabled: true,
	}
}

// Start begins timing operation. The returned func records the elapsed time
// and is safe to call more than once; only the first call counts.
func (tt *Tracker) Start(operation string) func() time.Duration {
	start := time.Now()
	var once sync.Once
	var elapsed time.Duration
	return func() time.Duration {
		once.Do(func() {
			elapsed = time.Since(start)
			tt.Record(operation, elapsed)
		})
		return elapsed
	}
}

func (tt *Tracker) Record(operation string, d time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if !tt.enabled {
		return
	}
	samples := append(tt.timings[operation], d)
	if len(samples) > tt.history {
		samples = samples[len(samples)-tt.history:]
	}
	tt.timings[operation] = samples
}

func (tt *Tracker) Timings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}
	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) Average(operation string) time.Duration {
	timings := tt.Timings(operation)
	if len(timings) == 0 {
		return 0
	}

	var total time.Duration
	for _, d := range timings {
		total += d
	}
	return total / time.Duration(len(timings))
}

// Averages returns the mean duration of every recorded operation.
func (tt *Tracker) Averages() map[string]time.Duration {
	tt.mu.RLock()
	ops := make([]string, 0, len(tt.timings))
	for op := range tt.timings {
		ops = append(ops, op)
	}
	tt.mu.RUnlock()

	out := make(map[string]time.Duration, len(ops))
	for _, op := range ops {
		out[op] = tt.Average(op)
	}
	return out
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

// Reset drops the samples of operation, or of every operation when it is
// empty.
func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string][]time.Duration)
	} else {
		delete(tt.timings, operation)
	}
}
