package storage

import "testing"

type fakeAllocator struct {
	name      string
	allocated int
	freed     int
	failNext  bool
}

func (f *fakeAllocator) Name() string { return f.name }

func (f *fakeAllocator) Allocate(bytes int64) (Pointer, error) {
	if f.failNext {
		f.failNext = false
		return Pointer{}, errOOM
	}
	f.allocated++
	return NewPointer(make([]byte, bytes)), nil
}

func (f *fakeAllocator) Free(ptr Pointer) { f.freed++ }

var errOOM = fakeErr("out of memory")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestNewOwnedDoesNotAllocate(t *testing.T) {
	alloc := &fakeAllocator{name: "CPU"}
	s := NewOwned(256, "CPU", alloc)

	if !s.Ptr().IsNil() {
		t.Fatal("NewOwned must not allocate eagerly")
	}
	if alloc.allocated != 0 {
		t.Fatalf("allocated = %d, want 0", alloc.allocated)
	}
}

func TestAllocateMemoryTwiceFails(t *testing.T) {
	alloc := &fakeAllocator{name: "CPU"}
	s := NewOwned(64, "CPU", alloc)

	if err := s.AllocateMemory(); err != nil {
		t.Fatalf("first AllocateMemory: %v", err)
	}
	if err := s.AllocateMemory(); err == nil {
		t.Fatal("second AllocateMemory: want error, got nil")
	}
}

func TestFreeBorrowedFails(t *testing.T) {
	ptr := NewPointer(make([]byte, 16))
	s := NewBorrowed(ptr, 16, "CPU")

	if err := s.FreeMemory(); err == nil {
		t.Fatal("FreeMemory on borrowed storage: want error, got nil")
	}
}

func TestReleaseOnlyLegalWhenOwned(t *testing.T) {
	ptr := NewPointer(make([]byte, 16))
	borrowed := NewBorrowed(ptr, 16, "CPU")
	if _, err := borrowed.Release(); err == nil {
		t.Fatal("Release on borrowed storage: want error, got nil")
	}

	alloc := &fakeAllocator{name: "CPU"}
	owned := NewOwned(16, "CPU", alloc)
	if err := owned.AllocateMemory(); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}
	released, err := owned.Release()
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.IsNil() {
		t.Fatal("Release returned nil pointer for an allocated storage")
	}
	if !owned.Ptr().IsNil() {
		t.Fatal("Release must clear the storage's own pointer")
	}
}

func TestReleaseRefFreesAtZero(t *testing.T) {
	alloc := &fakeAllocator{name: "CPU"}
	s := NewOwned(16, "CPU", alloc)
	if err := s.AllocateMemory(); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}

	s.Retain()
	s.ReleaseRef()
	if alloc.freed != 0 {
		t.Fatalf("freed = %d after one of two refs released, want 0", alloc.freed)
	}

	s.ReleaseRef()
	if alloc.freed != 1 {
		t.Fatalf("freed = %d after last ref released, want 1", alloc.freed)
	}
}

func TestAllocateMemoryFailurePropagates(t *testing.T) {
	alloc := &fakeAllocator{name: "CPU", failNext: true}
	s := NewOwned(16, "CPU", alloc)
	if err := s.AllocateMemory(); err == nil {
		t.Fatal("AllocateMemory: want error when allocator fails, got nil")
	}
}
