// Package device provides reference Allocator implementations and a
// process-wide registry keyed by device name (spec.md §4.2).
package device

import (
	"fmt"
	"sync"

	"github.com/dartrt/dartrt/core"
	"github.com/dartrt/dartrt/storage"
)

// CPUAllocator is the reference storage.Allocator backed by the host heap.
// Allocations are cache-line aligned so kernels can rely on SIMD-friendly
// base addresses.
type CPUAllocator struct{}

// NewCPUAllocator returns the CPU device allocator.
func NewCPUAllocator() *CPUAllocator { return &CPUAllocator{} }

func (*CPUAllocator) Name() string { return "CPU" }

func (*CPUAllocator) Allocate(bytes int64) (storage.Pointer, error) {
	if bytes < 0 {
		return storage.Pointer{}, fmt.Errorf("device: negative allocation size %d", bytes)
	}
	return storage.NewPointer(core.AlignedBytes(int(bytes))), nil
}

func (*CPUAllocator) Free(storage.Pointer) {
	// Host heap memory is reclaimed by the garbage collector once the
	// Pointer's backing slice is dropped; nothing to do here.
}

// registry is the process-wide map of device name -> Allocator, mirroring
// the external kernel layer's per-device allocator registration.
var registry = struct {
	mu    sync.RWMutex
	byDev map[string]storage.Allocator
}{byDev: map[string]storage.Allocator{"CPU": NewCPUAllocator()}}

// Register installs an allocator for a device name, replacing any existing
// registration. Used by kernel libraries that add GPU/NPU backends.
func Register(name string, allocator storage.Allocator) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.byDev[name] = allocator
}

// Lookup returns the allocator registered for a device name.
func Lookup(name string) (storage.Allocator, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	alloc, ok := registry.byDev[name]
	if !ok {
		return nil, fmt.Errorf("device: no allocator registered for %q", name)
	}
	return alloc, nil
}
