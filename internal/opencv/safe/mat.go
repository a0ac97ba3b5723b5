package safe

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// MemoryTracker observes allocations keyed by Mat ID.
type MemoryTracker interface {
	TrackAllocation(id uint64, size int64, tag string)
	TrackDeallocation(id uint64, tag string)
}

// Mat wraps a gocv.Mat with validity tracking and a finalizer so planes
// that escape Close are still released.
type Mat struct {
	mat        gocv.Mat
	isValid    int32
	mu         sync.RWMutex
	id         uint64
	memTracker MemoryTracker
	tag        string
}

var nextMatID uint64

func NewMat(rows, cols int, matType gocv.MatType) (*Mat, error) {
	return NewMatWithTracker(rows, cols, matType, nil, "")
}

// NewZeroMat allocates a Mat whose every element is zero.
func NewZeroMat(rows, cols int, matType gocv.MatType) (*Mat, error) {
	m, err := NewMat(rows, cols, matType)
	if err != nil {
		return nil, err
	}
	m.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return m, nil
}

func NewMatWithTracker(rows, cols int, matType gocv.MatType, memTracker MemoryTracker, tag string) (*Mat, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", cols, rows)
	}

	mat := gocv.NewMatWithSize(rows, cols, matType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to create Mat with size %dx%d", cols, rows)
	}

	safeMat := &Mat{
		mat:        mat,
		isValid:    1,
		id:         atomic.AddUint64(&nextMatID, 1),
		memTracker: memTracker,
		tag:        tag,
	}

	if memTracker != nil {
		memTracker.TrackAllocation(safeMat.id, ByteSize(rows, cols, matType), tag)
	}

	runtime.SetFinalizer(safeMat, (*Mat).finalize)

	return safeMat, nil
}

func NewMatFromMatWithTracker(srcMat gocv.Mat, memTracker MemoryTracker, tag string) (*Mat, error) {
	if srcMat.Empty() {
		return nil, fmt.Errorf("source Mat is empty")
	}

	if srcMat.Rows() <= 0 || srcMat.Cols() <= 0 {
		return nil, fmt.Errorf("source Mat has invalid dimensions: %dx%d", srcMat.Cols(), srcMat.Rows())
	}

	clonedMat := srcMat.Clone()
	if clonedMat.Empty() {
		clonedMat.Close()
		return nil, fmt.Errorf("failed to clone Mat")
	}

	return adopt(clonedMat, memTracker, tag), nil
}

// Adopt takes ownership of a freshly produced gocv.Mat without cloning it.
func Adopt(m gocv.Mat) (*Mat, error) {
	if m.Empty() {
		m.Close()
		return nil, fmt.Errorf("cannot adopt empty Mat")
	}
	return adopt(m, nil, ""), nil
}

func adopt(m gocv.Mat, memTracker MemoryTracker, tag string) *Mat {
	safeMat := &Mat{
		mat:        m,
		isValid:    1,
		id:         atomic.AddUint64(&nextMatID, 1),
		memTracker: memTracker,
		tag:        tag,
	}

	if memTracker != nil {
		memTracker.TrackAllocation(safeMat.id, ByteSize(m.Rows(), m.Cols(), m.Type()), tag)
	}

	runtime.SetFinalizer(safeMat, (*Mat).finalize)
	return safeMat
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) Empty() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return true
	}

	return sm.mat.Empty()
}

func (sm *Mat) Rows() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Rows()
}

func (sm *Mat) Cols() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Cols()
}

func (sm *Mat) Channels() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Channels()
}

func (sm *Mat) Type() gocv.MatType {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return gocv.MatTypeCV8UC1
	}

	return sm.mat.Type()
}

// Depth returns the element depth of the Mat with the channel bits cleared.
func (sm *Mat) Depth() gocv.MatType {
	return DepthOf(sm.Type())
}

// SameSize reports whether both Mats have identical spatial dimensions.
func (sm *Mat) SameSize(other *Mat) bool {
	return sm.Rows() == other.Rows() && sm.Cols() == other.Cols()
}

func (sm *Mat) Clone() (*Mat, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, fmt.Errorf("cannot clone invalid Mat")
	}

	if sm.mat.Empty() {
		return nil, fmt.Errorf("cannot clone empty Mat")
	}

	return NewMatFromMatWithTracker(sm.mat, sm.memTracker, sm.tag+"_clone")
}

func (sm *Mat) CopyTo(dst *Mat) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return fmt.Errorf("source Mat is invalid")
	}

	dst.mu.Lock()
	defer dst.mu.Unlock()

	if !dst.IsValid() {
		return fmt.Errorf("destination Mat is invalid")
	}

	if sm.mat.Empty() {
		return fmt.Errorf("source Mat is empty")
	}

	sm.mat.CopyTo(&dst.mat)
	return nil
}

// Zero sets every element to zero.
func (sm *Mat) Zero() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.IsValid() {
		return fmt.Errorf("Mat is invalid")
	}

	sm.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return nil
}

// Uint8Data returns the continuous element buffer of an 8U Mat. The slice
// aliases the Mat memory and stays valid until Close.
func (sm *Mat) Uint8Data() ([]uint8, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkDepth(gocv.MatTypeCV8U); err != nil {
		return nil, err
	}
	return sm.mat.DataPtrUint8()
}

// Float32Data returns the continuous element buffer of a 32F Mat.
func (sm *Mat) Float32Data() ([]float32, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkDepth(gocv.MatTypeCV32F); err != nil {
		return nil, err
	}
	return sm.mat.DataPtrFloat32()
}

// Float64Data returns the continuous element buffer of a 64F Mat.
func (sm *Mat) Float64Data() ([]float64, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkDepth(gocv.MatTypeCV64F); err != nil {
		return nil, err
	}
	return sm.mat.DataPtrFloat64()
}

func (sm *Mat) checkDepth(depth gocv.MatType) error {
	if !sm.IsValid() {
		return fmt.Errorf("Mat is invalid")
	}
	if got := DepthOf(sm.mat.Type()); got != depth {
		return fmt.Errorf("Mat depth %s does not match requested %s", DepthName(got), DepthName(depth))
	}
	return nil
}

func (sm *Mat) GetMat() gocv.Mat {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.mat
}

func (sm *Mat) ID() uint64 {
	return sm.id
}

func (sm *Mat) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		if sm.memTracker != nil {
			sm.memTracker.TrackDeallocation(sm.id, sm.tag)
		}

		if !sm.mat.Empty() {
			sm.mat.Close()
		}

		runtime.SetFinalizer(sm, nil)
	}
}

// finalize is called by Go's garbage collector as last resort cleanup
func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}

// CloseAll closes every non-nil Mat.
func CloseAll(mats ...*Mat) {
	for _, m := range mats {
		if m != nil {
			m.Close()
		}
	}
}
