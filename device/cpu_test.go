package device

import "testing"

func TestCPUAllocatorAllocateAligned(t *testing.T) {
	alloc := NewCPUAllocator()
	ptr, err := alloc.Allocate(100)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(ptr.Bytes) != 100 {
		t.Fatalf("len(ptr.Bytes) = %d, want 100", len(ptr.Bytes))
	}
}

func TestCPUAllocatorRejectsNegativeSize(t *testing.T) {
	alloc := NewCPUAllocator()
	if _, err := alloc.Allocate(-1); err == nil {
		t.Fatal("Allocate(-1): want error, got nil")
	}
}

func TestLookupFindsRegisteredCPU(t *testing.T) {
	alloc, err := Lookup("CPU")
	if err != nil {
		t.Fatalf("Lookup(CPU): %v", err)
	}
	if alloc.Name() != "CPU" {
		t.Fatalf("Name() = %q, want CPU", alloc.Name())
	}
}

func TestLookupUnknownDeviceFails(t *testing.T) {
	if _, err := Lookup("NOPE"); err == nil {
		t.Fatal("Lookup(NOPE): want error, got nil")
	}
}

func TestRegisterOverridesDevice(t *testing.T) {
	Register("TEST", NewCPUAllocator())
	defer func() {
		registry.mu.Lock()
		delete(registry.byDev, "TEST")
		registry.mu.Unlock()
	}()

	alloc, err := Lookup("TEST")
	if err != nil {
		t.Fatalf("Lookup(TEST): %v", err)
	}
	if alloc == nil {
		t.Fatal("Lookup(TEST) returned nil allocator")
	}
}
