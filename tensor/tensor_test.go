package tensor

import (
	"testing"

	"github.com/dartrt/dartrt/storage"
)

type fakeAllocator struct{}

func (fakeAllocator) Name() string { return "FAKE" }
func (fakeAllocator) Allocate(bytes int64) (storage.Pointer, error) {
	return storage.NewPointer(make([]byte, bytes)), nil
}
func (fakeAllocator) Free(storage.Pointer) {}

func newTestStorage(t *testing.T, size int64) *storage.Storage {
	t.Helper()
	st := storage.NewOwned(size, "FAKE", fakeAllocator{})
	if err := st.AllocateMemory(); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}
	return st
}

func TestTensorNumelAndByteSize(t *testing.T) {
	st := newTestStorage(t, 2*3*4)
	tn := NewTensor([]int64{2, 3}, DTypeF32, FormatDefault, st)

	if got := tn.Numel(); got != 6 {
		t.Fatalf("Numel() = %d, want 6", got)
	}
	if got := tn.ByteSize(); got != 24 {
		t.Fatalf("ByteSize() = %d, want 24", got)
	}
}

func TestTensorSetShapeRecomputesStrides(t *testing.T) {
	st := newTestStorage(t, 2*3*4*4)
	tn := NewTensor([]int64{2, 3, 4}, DTypeF32, FormatDefault, st)

	want := []int64{12, 4, 1}
	got := tn.Strides()
	if len(got) != len(want) {
		t.Fatalf("Strides() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Strides() = %v, want %v", got, want)
		}
	}
}

func TestTensorCheckInvariantRejectsOverflow(t *testing.T) {
	st := newTestStorage(t, 4) // only 4 bytes, tensor needs 24
	tn := NewTensor([]int64{2, 3}, DTypeF32, FormatDefault, st)

	if err := tn.CheckInvariant(); err == nil {
		t.Fatal("CheckInvariant: want error when byte_size exceeds storage size, got nil")
	}
}

func TestTensorResizeStorageGrowsWhenEmpty(t *testing.T) {
	st := storage.NewOwned(0, "FAKE", fakeAllocator{})
	tn := NewTensor([]int64{2, 2}, DTypeF32, FormatDefault, st)

	if err := tn.ResizeStorage(); err != nil {
		t.Fatalf("ResizeStorage: %v", err)
	}
	if err := tn.CheckInvariant(); err != nil {
		t.Fatalf("CheckInvariant after resize: %v", err)
	}
}

func TestTensorResizeStorageFailsWhenAlreadyAllocatedTooSmall(t *testing.T) {
	st := newTestStorage(t, 4)
	tn := NewTensor([]int64{2, 3}, DTypeF32, FormatDefault, st)

	if err := tn.ResizeStorage(); err == nil {
		t.Fatal("ResizeStorage: want error when existing allocation is insufficient, got nil")
	}
}

func TestTensorSetStridesArityMismatch(t *testing.T) {
	st := newTestStorage(t, 24)
	tn := NewTensor([]int64{2, 3}, DTypeF32, FormatDefault, st)

	if err := tn.SetStrides([]int64{1}); err == nil {
		t.Fatal("SetStrides with wrong arity: want error, got nil")
	}
}
