package kernel

import (
	"testing"

	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/storage"
	"github.com/dartrt/dartrt/tensor"
)

type fakeAllocator struct{}

func (fakeAllocator) Name() string { return "FAKE" }
func (fakeAllocator) Allocate(bytes int64) (storage.Pointer, error) {
	return storage.NewPointer(make([]byte, bytes)), nil
}
func (fakeAllocator) Free(storage.Pointer) {}

func newFloatTensor(t *testing.T, shape []int64, data []float32) *tensor.Tensor {
	t.Helper()
	st := storage.NewOwned(int64(len(data)*4), "FAKE", fakeAllocator{})
	if err := st.AllocateMemory(); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}
	tn := tensor.NewTensor(shape, tensor.DTypeF32, tensor.FormatDefault, st)
	view, err := floatsOf(tn)
	if err != nil {
		t.Fatalf("floatsOf: %v", err)
	}
	copy(view, data)
	return tn
}

func TestElementwiseAddLaunch(t *testing.T) {
	a := newFloatTensor(t, []int64{3}, []float32{1, 2, 3})
	b := newFloatTensor(t, []int64{3}, []float32{10, 20, 30})
	out := newFloatTensor(t, []int64{3}, []float32{0, 0, 0})

	k := &elementwiseKernel{op: graph.Add}
	if err := k.InferShape([]*tensor.Tensor{a, b}, out); err != nil {
		t.Fatalf("InferShape: %v", err)
	}
	if err := k.Launch([]*tensor.Tensor{a, b}, nil, out); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	got, err := floatsOf(out)
	if err != nil {
		t.Fatalf("floatsOf: %v", err)
	}
	want := []float32{11, 22, 33}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMatMulLaunch(t *testing.T) {
	a := newFloatTensor(t, []int64{2, 2}, []float32{1, 2, 3, 4})
	b := newFloatTensor(t, []int64{2, 2}, []float32{5, 6, 7, 8})
	out := newFloatTensor(t, []int64{2, 2}, []float32{0, 0, 0, 0})

	k := &matmulKernel{}
	if err := k.InferShape([]*tensor.Tensor{a, b}, out); err != nil {
		t.Fatalf("InferShape: %v", err)
	}
	if err := k.Launch([]*tensor.Tensor{a, b}, nil, out); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	want := []float32{19, 22, 43, 50}
	got, err := floatsOf(out)
	if err != nil {
		t.Fatalf("floatsOf: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCreateKernelUnknownOpcodeFails(t *testing.T) {
	lib := NewDummyLibrary()
	n := &graph.Node{} // zero value has opcode End, which Dummy has no kernel for
	if _, err := lib.CreateKernel(n); err == nil {
		t.Fatal("CreateKernel(End node): want error, got nil")
	}
}

func TestLookupFindsDummy(t *testing.T) {
	lib, err := Lookup("Dummy")
	if err != nil {
		t.Fatalf("Lookup(Dummy): %v", err)
	}
	if lib.Name() != "Dummy" {
		t.Fatalf("Name() = %q, want Dummy", lib.Name())
	}
}
