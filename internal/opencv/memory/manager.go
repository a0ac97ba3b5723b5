package memory

import (
	"fmt"
	"sync"

	"bilateral-grid/internal/logger"
	"bilateral-grid/internal/opencv/safe"

	"gocv.io/x/gocv"
)

const (
	component       = "MemoryManager"
	defaultPoolSize = 8
)

// Manager hands out zeroed accumulator planes and recycles them through
// per-shape pools.
type Manager struct {
	pools   map[PoolKey]*Pool
	owned   map[uint64]int64
	mu      sync.Mutex
	stats   Stats
	tracker *Tracker
	log     logger.Logger
}

type PoolKey struct {
	Rows    int
	Cols    int
	MatType gocv.MatType
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	PoolHits       int64
	PoolMisses     int64
	MaxAllowed     int64
}

// NewManager creates a manager that records allocations in tracker. A nil
// tracker gets a private one.
func NewManager(log logger.Logger, tracker *Tracker) *Manager {
	if tracker == nil {
		tracker = NewTracker(log)
	}
	return &Manager{
		tracker: tracker,
		pools: make(map[PoolKey]*Pool),
		owned: make(map[uint64]int64),
		stats: Stats{
			MaxAllowed: 2 * 1024 * 1024 * 1024, // 2GB limit
		},
		log: logger.OrNop(log),
	}
}

// GetMat returns a zero-filled Mat, reusing a pooled one when available.
func (m *Manager) GetMat(rows, cols int, matType gocv.MatType) (*safe.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := safe.ByteSize(rows, cols, matType)
	key := PoolKey{Rows: rows, Cols: cols, MatType: matType}

	if pool, exists := m.pools[key]; exists {
		if mat := pool.Get(); mat != nil {
			if err := mat.Zero(); err != nil {
				mat.Close()
				return nil, err
			}
			m.stats.PoolHits++
			m.track(mat, size)
			m.log.Debug(component, "reused Mat from pool", map[string]interface{}{"rows": rows, "cols": cols})
			return mat, nil
		}
	}

	if m.stats.TotalAllocated-m.stats.TotalReleased+size > m.stats.MaxAllowed {
		return nil, fmt.Errorf("memory limit exceeded: %d bytes allocated",
			m.stats.TotalAllocated-m.stats.TotalReleased)
	}

	m.stats.PoolMisses++
	mat, err := newTrackedZero(rows, cols, matType, m.tracker, "accumulator")
	if err != nil {
		return nil, err
	}
	m.track(mat, size)

	m.log.Debug(component, "created new Mat", map[string]interface{}{"rows": rows, "cols": cols})
	return mat, nil
}

func (m *Manager) track(mat *safe.Mat, size int64) {
	m.owned[mat.ID()] = size
	m.stats.TotalAllocated += size
	m.stats.ActiveMats++
}

// ReleaseMat returns mat to its pool, closing it when the pool is full or
// the Mat was not handed out by this manager.
func (m *Manager) ReleaseMat(mat *safe.Mat) {
	if mat == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := mat.ID()
	size, exists := m.owned[id]
	if !exists {
		m.log.Warning(component, "releasing untracked Mat", nil)
		mat.Close()
		return
	}
	delete(m.owned, id)
	m.stats.TotalReleased += size
	m.stats.ActiveMats--

	key := PoolKey{
		Rows:    mat.Rows(),
		Cols:    mat.Cols(),
		MatType: mat.Type(),
	}

	pool, exists := m.pools[key]
	if !exists {
		pool = NewPool(defaultPoolSize)
		m.pools[key] = pool
	}
	if pool.Put(mat) {
		return
	}

	mat.Close()
	m.log.Debug(component, "closed Mat (pool full)", nil)
}

func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Tracker returns the allocation tracker backing this manager.
func (m *Manager) Tracker() *Tracker {
	return m.tracker
}

func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	matCount := 0
	for key, pool := range m.pools {
		matCount += pool.Cleanup()
		delete(m.pools, key)
	}

	m.log.Debug(component, "cleaned up pooled Mats", map[string]interface{}{"count": matCount})
}
