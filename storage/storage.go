// Package storage implements the ref-counted Storage record and the
// Allocator trait device backends implement against (spec.md §4.2).
package storage

import (
	"fmt"
	"sync/atomic"
)

// Allocator is implemented once per device by the kernel layer. The core
// runtime never allocates device memory directly; it only calls through
// this trait.
type Allocator interface {
	// Name identifies the device this allocator serves, e.g. "CPU".
	Name() string
	// Allocate reserves bytes of device memory and returns a handle to it.
	Allocate(bytes int64) (Pointer, error)
	// Free releases memory previously returned by Allocate.
	Free(ptr Pointer)
}

// Pointer is an opaque handle to a device memory allocation. For the CPU
// reference allocator this simply wraps a byte slice; other devices may
// wrap an opaque integer or driver handle instead.
type Pointer struct {
	// Bytes is non-nil for host-addressable allocations (CPU device).
	Bytes []byte
	// valid distinguishes a valid-but-empty pointer from the zero value.
	valid bool
}

// NewPointer wraps a host byte slice as a device Pointer.
func NewPointer(b []byte) Pointer { return Pointer{Bytes: b, valid: true} }

// IsNil reports whether the pointer is the zero value (never allocated).
func (p Pointer) IsNil() bool { return !p.valid }

// Storage is a ref-counted record owning (or borrowing) one device memory
// allocation. Construction via NewOwned defers the actual allocation to
// AllocateMemory; NewBorrowed wraps externally managed memory that this
// Storage must never free.
type Storage struct {
	refs      int32
	sizeBytes int64
	device    string
	allocator Allocator
	ownsData  bool
	ptr       Pointer
}

// NewOwned records intent to own sizeBytes on device, without allocating.
// Call AllocateMemory to materialize the bytes.
func NewOwned(sizeBytes int64, device string, allocator Allocator) *Storage {
	return &Storage{
		refs:      1,
		sizeBytes: sizeBytes,
		device:    device,
		allocator: allocator,
		ownsData:  true,
	}
}

// NewBorrowed wraps an externally managed allocation. The resulting
// Storage never frees ptr; FreeMemory and release are both illegal on it.
func NewBorrowed(ptr Pointer, sizeBytes int64, device string) *Storage {
	return &Storage{
		refs:      1,
		sizeBytes: sizeBytes,
		device:    device,
		ownsData:  false,
		ptr:       ptr,
	}
}

// SizeBytes returns the storage's byte size.
func (s *Storage) SizeBytes() int64 { return s.sizeBytes }

// Device returns the owning device's name.
func (s *Storage) Device() string { return s.device }

// AllocatorHandle returns the allocator this storage was created with.
// Nil for storages built by NewBorrowed, which take no allocator.
func (s *Storage) AllocatorHandle() Allocator { return s.allocator }

// OwnsData reports whether this Storage is responsible for freeing ptr.
func (s *Storage) OwnsData() bool { return s.ownsData }

// Ptr returns the current device pointer, the zero value if unallocated.
func (s *Storage) Ptr() Pointer { return s.ptr }

// AllocateMemory materializes device bytes through the allocator. It fails
// if this Storage borrows external memory, or if it already has data.
func (s *Storage) AllocateMemory() error {
	if !s.ownsData {
		return fmt.Errorf("storage: cannot allocate on borrowed storage")
	}
	if !s.ptr.IsNil() {
		return fmt.Errorf("storage: allocate called twice without an intervening free")
	}
	ptr, err := s.allocator.Allocate(s.sizeBytes)
	if err != nil {
		return fmt.Errorf("storage: allocate %d bytes on %s: %w", s.sizeBytes, s.device, err)
	}
	s.ptr = ptr
	return nil
}

// FreeMemory releases device bytes through the allocator and clears ptr.
// It fails if this Storage borrows external memory.
func (s *Storage) FreeMemory() error {
	if !s.ownsData {
		return fmt.Errorf("storage: cannot free borrowed storage")
	}
	if s.ptr.IsNil() {
		return nil
	}
	s.allocator.Free(s.ptr)
	s.ptr = Pointer{}
	return nil
}

// Release yields the device pointer and clears it, transferring freeing
// responsibility to the caller. Only legal when this Storage owns its
// data; fails otherwise.
func (s *Storage) Release() (Pointer, error) {
	if !s.ownsData {
		return Pointer{}, fmt.Errorf("storage: release illegal on borrowed storage")
	}
	ptr := s.ptr
	s.ptr = Pointer{}
	return ptr, nil
}

// Retain increments the reference count and returns the same Storage, for
// call-site chaining when a new handle is taken.
func (s *Storage) Retain() *Storage {
	atomic.AddInt32(&s.refs, 1)
	return s
}

// ReleaseRef decrements the reference count. When it reaches zero and the
// Storage owns its data, the underlying memory is freed through the
// allocator.
func (s *Storage) ReleaseRef() {
	if atomic.AddInt32(&s.refs, -1) > 0 {
		return
	}
	if s.ownsData && !s.ptr.IsNil() {
		s.allocator.Free(s.ptr)
		s.ptr = Pointer{}
	}
}

// RefCount returns the current reference count, for tests and diagnostics.
func (s *Storage) RefCount() int32 { return atomic.LoadInt32(&s.refs) }

// AdoptAllocation replaces s's size/device/allocator/data fields with
// grown's, leaving s's identity and reference count untouched. Used by
// Tensor.ResizeStorage, which must grow the allocation backing an
// existing, possibly multiply-retained Storage in place rather than
// swap in a brand new one that every other holder would miss.
func (s *Storage) AdoptAllocation(grown *Storage) {
	s.sizeBytes = grown.sizeBytes
	s.device = grown.device
	s.allocator = grown.allocator
	s.ownsData = grown.ownsData
	s.ptr = grown.ptr
}
