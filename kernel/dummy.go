package kernel

import (
	"fmt"
	"unsafe"

	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/tensor"
)

// DummyLibrary is the built-in fallback KernelLib (spec.md §4.10): a
// reference implementation covering the arithmetic opcodes with pure-Go
// math, adapted from the teacher's non-AMD64 fallback kernels
// (kernels/asm_fallback.go's VectorAddOptimized/VectorMulOptimized/
// MatMulOptimized), reshaped onto the Kernel interface. It is
// intentionally not a production math library (SPEC_FULL.md §8).
type DummyLibrary struct{}

// NewDummyLibrary returns the Dummy KernelLib.
func NewDummyLibrary() *DummyLibrary { return &DummyLibrary{} }

func (*DummyLibrary) Name() string { return "Dummy" }

func (*DummyLibrary) CreateKernel(n *graph.Node) (Kernel, error) {
	switch n.Opcode() {
	case graph.Add, graph.Sub, graph.Mul, graph.Div:
		return &elementwiseKernel{op: n.Opcode()}, nil
	case graph.MatMul:
		return &matmulKernel{}, nil
	default:
		return nil, fmt.Errorf("kernel: Dummy has no kernel for opcode %s", n.Opcode())
	}
}

// floatsOf views a Tensor's backing storage as a float32 slice. The
// Dummy library only supports DTypeF32; other dtypes are out of scope
// for this reference implementation.
func floatsOf(t *tensor.Tensor) ([]float32, error) {
	if t.DType() != tensor.DTypeF32 {
		return nil, fmt.Errorf("kernel: Dummy only supports F32, got %s", t.DType())
	}
	raw := t.Storage().Ptr().Bytes
	if raw == nil {
		return nil, fmt.Errorf("kernel: tensor has no backing storage")
	}
	n := t.Numel()
	byteOff := t.Offset() * t.DType().Size()
	if byteOff+n*t.DType().Size() > int64(len(raw)) {
		return nil, fmt.Errorf("kernel: tensor view exceeds storage bounds")
	}
	//nolint:gosec // reinterpreting an aligned []byte region as []float32
	return unsafe.Slice((*float32)(unsafe.Pointer(&raw[byteOff])), n), nil
}

type elementwiseKernel struct {
	op graph.Opcode
}

func (*elementwiseKernel) Init() error { return nil }

// DynamicShape is always true: elementwise output shape tracks whatever
// shape its two inputs carry at launch time, which callers may vary
// between runs of the same graph.
func (*elementwiseKernel) DynamicShape() bool { return true }

func (*elementwiseKernel) InferShape(inputs []*tensor.Tensor, output *tensor.Tensor) error {
	if len(inputs) != 2 {
		return fmt.Errorf("kernel: elementwise op needs 2 inputs, got %d", len(inputs))
	}
	a, b := inputs[0], inputs[1]
	if len(a.Shape()) != len(b.Shape()) {
		return fmt.Errorf("kernel: elementwise shape mismatch %v vs %v", a.Shape(), b.Shape())
	}
	for i := range a.Shape() {
		if a.Shape()[i] != b.Shape()[i] {
			return fmt.Errorf("kernel: elementwise shape mismatch %v vs %v", a.Shape(), b.Shape())
		}
	}
	output.SetShape(a.Shape())
	return nil
}

func (*elementwiseKernel) Resize(output *tensor.Tensor) error {
	return output.ResizeStorage()
}

func (*elementwiseKernel) CalcWorkspace() (int64, error) { return 0, nil }

func (k *elementwiseKernel) Launch(inputs []*tensor.Tensor, workspace []byte, output *tensor.Tensor) error {
	a, err := floatsOf(inputs[0])
	if err != nil {
		return err
	}
	b, err := floatsOf(inputs[1])
	if err != nil {
		return err
	}
	out, err := floatsOf(output)
	if err != nil {
		return err
	}
	if len(a) != len(b) || len(a) != len(out) {
		return fmt.Errorf("kernel: elementwise length mismatch a=%d b=%d out=%d", len(a), len(b), len(out))
	}
	switch k.op {
	case graph.Add:
		for i := range a {
			out[i] = a[i] + b[i]
		}
	case graph.Sub:
		for i := range a {
			out[i] = a[i] - b[i]
		}
	case graph.Mul:
		for i := range a {
			out[i] = a[i] * b[i]
		}
	case graph.Div:
		for i := range a {
			out[i] = a[i] / b[i]
		}
	default:
		return fmt.Errorf("kernel: elementwiseKernel does not handle opcode %s", k.op)
	}
	return nil
}

type matmulKernel struct{}

func (*matmulKernel) Init() error { return nil }

// DynamicShape is always true: matmul's output shape depends on the
// input tensors' runtime shapes, not just their rank.
func (*matmulKernel) DynamicShape() bool { return true }

func (*matmulKernel) InferShape(inputs []*tensor.Tensor, output *tensor.Tensor) error {
	if len(inputs) != 2 {
		return fmt.Errorf("kernel: matmul needs 2 inputs, got %d", len(inputs))
	}
	a, b := inputs[0], inputs[1]
	if len(a.Shape()) != 2 || len(b.Shape()) != 2 {
		return fmt.Errorf("kernel: matmul requires rank-2 tensors, got %v and %v", a.Shape(), b.Shape())
	}
	if a.Shape()[1] != b.Shape()[0] {
		return fmt.Errorf("kernel: matmul dimension mismatch %v x %v", a.Shape(), b.Shape())
	}
	output.SetShape([]int64{a.Shape()[0], b.Shape()[1]})
	return nil
}

func (*matmulKernel) Resize(output *tensor.Tensor) error {
	return output.ResizeStorage()
}

func (*matmulKernel) CalcWorkspace() (int64, error) { return 0, nil }

func (*matmulKernel) Launch(inputs []*tensor.Tensor, workspace []byte, output *tensor.Tensor) error {
	a, err := floatsOf(inputs[0])
	if err != nil {
		return err
	}
	b, err := floatsOf(inputs[1])
	if err != nil {
		return err
	}
	out, err := floatsOf(output)
	if err != nil {
		return err
	}
	aRows, aCols := int(inputs[0].Shape()[0]), int(inputs[0].Shape()[1])
	bRows, bCols := int(inputs[1].Shape()[0]), int(inputs[1].Shape()[1])
	if aCols != bRows {
		return fmt.Errorf("kernel: matmul dimension mismatch at launch")
	}
	for i := 0; i < aRows; i++ {
		for j := 0; j < bCols; j++ {
			var sum float32
			for k := 0; k < aCols; k++ {
				sum += a[i*aCols+k] * b[k*bCols+j]
			}
			out[i*bCols+j] = sum
		}
	}
	return nil
}
