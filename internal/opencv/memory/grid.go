package memory

import (
	"fmt"
	"sync"

	"bilateral-grid/internal/logger"
	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// GridKey identifies a set of grid buffers. Buffers are reused only when
// every field matches.
type GridKey struct {
	SplatRows int
	SplatCols int
	Rows      int
	Cols      int
	Channels  int
	Bins      int
	Depth     gocv.MatType
}

func (k GridKey) splatType() gocv.MatType {
	return safe.MakeType(k.Depth, k.Channels)
}

// GridBuffers is one working set: per bin a weighted-source plane and a
// weight-sum plane at splatting size, and a normalized slice at full size.
type GridBuffers struct {
	Key      GridKey
	Weighted []*safe.Mat
	Norm     []*safe.Mat
	Slices   []*safe.Mat
}

func newGridBuffers(key GridKey, tracker safe.MemoryTracker) (*GridBuffers, error) {
	gb := &GridBuffers{
		Key:      key,
		Weighted: make([]*safe.Mat, 0, key.Bins),
		Norm:     make([]*safe.Mat, 0, key.Bins),
		Slices:   make([]*safe.Mat, 0, key.Bins),
	}

	mt := key.splatType()
	for b := 0; b < key.Bins; b++ {
		su, err := newTrackedZero(key.SplatRows, key.SplatCols, mt, tracker, "grid_weighted")
		if err != nil {
			gb.close()
			return nil, fmt.Errorf("allocate weighted plane %d: %w", b, err)
		}
		gb.Weighted = append(gb.Weighted, su)

		sd, err := newTrackedZero(key.SplatRows, key.SplatCols, mt, tracker, "grid_norm")
		if err != nil {
			gb.close()
			return nil, fmt.Errorf("allocate weight-sum plane %d: %w", b, err)
		}
		gb.Norm = append(gb.Norm, sd)

		slice, err := newTrackedZero(key.Rows, key.Cols, mt, tracker, "grid_slice")
		if err != nil {
			gb.close()
			return nil, fmt.Errorf("allocate slice %d: %w", b, err)
		}
		gb.Slices = append(gb.Slices, slice)
	}
	return gb, nil
}

func newTrackedZero(rows, cols int, mt gocv.MatType, tracker safe.MemoryTracker, tag string) (*safe.Mat, error) {
	m, err := safe.NewMatWithTracker(rows, cols, mt, tracker, tag)
	if err != nil {
		return nil, err
	}
	if err := m.Zero(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (gb *GridBuffers) close() {
	safe.CloseAll(gb.Weighted...)
	safe.CloseAll(gb.Norm...)
	safe.CloseAll(gb.Slices...)
	gb.Weighted, gb.Norm, gb.Slices = nil, nil, nil
}

type GridStats struct {
	Reused      int64
	Reallocated int64
}

// GridCache owns at most one GridBuffers set and replaces it whenever a
// request arrives with a different key.
type GridCache struct {
	mu      sync.Mutex
	current *GridBuffers
	stats   GridStats
	tracker *Tracker
	log     logger.Logger
}

// NewGridCache creates an empty cache. Buffers it allocates are recorded in
// tracker when one is given.
func NewGridCache(log logger.Logger, tracker *Tracker) *GridCache {
	return &GridCache{tracker: tracker, log: logger.OrNop(log)}
}

// Acquire returns buffers for key, allocating a new set on a key mismatch.
// Buffer contents are unspecified; callers overwrite them fully.
func (c *GridCache) Acquire(key GridKey) (*GridBuffers, error) {
	if key.Bins <= 0 {
		return nil, fmt.Errorf("grid needs at least one bin, got %d", key.Bins)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.Key == key {
		c.stats.Reused++
		return c.current, nil
	}

	if c.current != nil {
		c.log.Debug(component, "grid key changed, reallocating", map[string]interface{}{
			"old_bins": c.current.Key.Bins,
			"new_bins": key.Bins,
		})
		c.current.close()
		c.current = nil
	}

	var mt safe.MemoryTracker
	if c.tracker != nil {
		mt = c.tracker
	}
	gb, err := newGridBuffers(key, mt)
	if err != nil {
		return nil, err
	}
	c.current = gb
	c.stats.Reallocated++
	return gb, nil
}

func (c *GridCache) Stats() GridStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases the cached buffers.
func (c *GridCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.close()
		c.current = nil
	}
}
