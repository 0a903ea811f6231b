package tensor

import (
	"fmt"

	"github.com/dartrt/dartrt/storage"
)

// Tensor is a handle describing a view over a ref-counted Storage: shape,
// strides, dtype, memory format and an element offset into storage
// (spec.md §3, §4.1).
type Tensor struct {
	shape   []int64
	strides []int64
	dtype   DType
	format  Format
	offset  int64 // element count into storage
	st      *storage.Storage
}

// NewTensor builds a Tensor over an existing Storage with row-major
// strides derived from shape.
func NewTensor(shape []int64, dtype DType, format Format, st *storage.Storage) *Tensor {
	t := &Tensor{dtype: dtype, format: format, st: st}
	t.SetShape(shape)
	return t
}

// Shape returns the tensor's dimensions. -1 is permitted only as a
// placeholder during reshape inference, never after a kernel launch.
func (t *Tensor) Shape() []int64 { return t.shape }

// Strides returns the per-dimension stride, same arity as Shape.
func (t *Tensor) Strides() []int64 { return t.strides }

// Dim returns the number of dimensions.
func (t *Tensor) Dim() int { return len(t.shape) }

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Format returns the memory layout.
func (t *Tensor) Format() Format { return t.format }

// Offset returns the element offset into Storage.
func (t *Tensor) Offset() int64 { return t.offset }

// Storage returns the backing Storage handle.
func (t *Tensor) Storage() *storage.Storage { return t.st }

// Numel returns the product of the shape dimensions.
func (t *Tensor) Numel() int64 {
	n := int64(1)
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// ByteSize returns Numel * dtype.Size().
func (t *Tensor) ByteSize() int64 {
	return t.Numel() * t.dtype.Size()
}

// SetShape installs a new shape and recomputes row-major strides, unless
// overridden afterward by SetStrides.
func (t *Tensor) SetShape(shape []int64) {
	t.shape = append([]int64(nil), shape...)
	t.strides = rowMajorStrides(t.shape)
}

// SetStrides overrides the strides computed by SetShape. Must have the
// same arity as Shape.
func (t *Tensor) SetStrides(strides []int64) error {
	if len(strides) != len(t.shape) {
		return fmt.Errorf("tensor: stride arity %d does not match shape arity %d", len(strides), len(t.shape))
	}
	t.strides = append([]int64(nil), strides...)
	return nil
}

// ResizeStorage recomputes byte size from the current shape/dtype and, if
// the storage owns its data and its current capacity is insufficient,
// reallocates. Fails if a reallocation is required but the storage
// already holds an allocation (mirrors the double-allocate guard in the
// storage package).
func (t *Tensor) ResizeStorage() error {
	needed := t.Offset()*t.dtype.Size() + t.ByteSize()
	if t.st.SizeBytes() >= needed {
		return nil
	}
	if !t.st.OwnsData() {
		return fmt.Errorf("tensor: cannot resize borrowed storage")
	}
	if !t.st.Ptr().IsNil() {
		return fmt.Errorf("tensor: resize requires reallocation but storage already has data")
	}
	grown := storage.NewOwned(needed, t.st.Device(), t.st.AllocatorHandle())
	if err := grown.AllocateMemory(); err != nil {
		return fmt.Errorf("tensor: resize storage: %w", err)
	}
	// Adopt grown's new allocation in place rather than overwriting the
	// whole Storage struct: t.st may be shared by other Tensor handles
	// holding a ref, and refs is managed with sync/atomic elsewhere, so
	// a blind struct copy would both reset an in-use ref count to 1 and
	// race any concurrent Retain/ReleaseRef on the same Storage.
	t.st.AdoptAllocation(grown)
	return nil
}

// CheckInvariant validates offset*dtype.size + byte_size <= storage size,
// per spec.md §3.
func (t *Tensor) CheckInvariant() error {
	needed := t.Offset()*t.dtype.Size() + t.ByteSize()
	if needed > t.st.SizeBytes() {
		return fmt.Errorf("tensor: offset %d + byte_size %d exceeds storage size %d", t.Offset(), t.ByteSize(), t.st.SizeBytes())
	}
	return nil
}

func rowMajorStrides(shape []int64) []int64 {
	strides := make([]int64, len(shape))
	stride := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}
