package memory

import (
	"sort"
	"sync"
	"time"

	"bilateral-grid/internal/logger"
)

type allocation struct {
	size        int64
	tag         string
	allocatedAt time.Time
}

// TrackerStats summarizes the native memory a Tracker has observed.
type TrackerStats struct {
	TotalAllocated   int64
	TotalDeallocated int64
	CurrentlyActive  int64
	AllocationCount  int64
	UnknownReleases  int64
}

// Leak describes an allocation still outstanding at inspection time.
type Leak struct {
	ID   uint64
	Size int64
	Tag  string
	Age  time.Duration
}

// Tracker records every Mat allocated through it, keyed by Mat ID. It
// satisfies safe.MemoryTracker.
type Tracker struct {
	mu          sync.Mutex
	allocations map[uint64]allocation
	stats       TrackerStats
	log         logger.Logger
}

func NewTracker(log logger.Logger) *Tracker {
	return &Tracker{
		allocations: make(map[uint64]allocation),
		log:         logger.OrNop(log),
	}
}

func (t *Tracker) TrackAllocation(id uint64, size int64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allocations[id] = allocation{size: size, tag: tag, allocatedAt: time.Now()}
	t.stats.TotalAllocated += size
	t.stats.CurrentlyActive += size
	t.stats.AllocationCount++
}

func (t *Tracker) TrackDeallocation(id uint64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.allocations[id]
	if !ok {
		t.stats.UnknownReleases++
		t.log.Warning(component, "release of unknown allocation", map[string]interface{}{
			"id":  id,
			"tag": tag,
		})
		return
	}
	delete(t.allocations, id)
	t.stats.TotalDeallocated += info.size
	t.stats.CurrentlyActive -= info.size
}

func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Outstanding counts live allocations per tag.
func (t *Tracker) Outstanding() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int)
	for _, a := range t.allocations {
		out[a.tag]++
	}
	return out
}

// DetectLeaks lists allocations older than threshold, oldest first.
func (t *Tracker) DetectLeaks(threshold time.Duration) []Leak {
	t.mu.Lock()
	now := time.Now()
	var leaks []Leak
	for id, a := range t.allocations {
		if age := now.Sub(a.allocatedAt); age >= threshold {
			leaks = append(leaks, Leak{ID: id, Size: a.size, Tag: a.tag, Age: age})
		}
	}
	t.mu.Unlock()

	sort.Slice(leaks, func(i, j int) bool { return leaks[i].Age > leaks[j].Age })
	return leaks
}
