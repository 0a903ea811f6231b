// Package kernel defines the KernelLib/Kernel interface the executor
// dispatches non-dummy opcodes through, a process-wide library registry,
// and a built-in Dummy library (spec.md §4.10).
package kernel

import (
	"fmt"
	"sync"

	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/tensor"
)

// Kernel is implemented once per (opcode, device) pair by a KernelLib.
type Kernel interface {
	// Init prepares the kernel for its node; called once per non-dummy
	// node by buildexec.Build (spec.md §4.3).
	Init() error
	// DynamicShape reports whether the output's shape must be
	// recomputed from the inputs on every launch (spec.md §4.8 step 1).
	// A kernel whose output shape is fixed at Init time returns false;
	// the executor then only calls Resize, and only for ops the opcode
	// catalog declares "force-resize".
	DynamicShape() bool
	// InferShape computes the output tensor's shape from its inputs.
	InferShape(inputs []*tensor.Tensor, output *tensor.Tensor) error
	// Resize recomputes the output's strides/byte size after a shape
	// change; always called for "force-resize" ops even when the shape
	// did not change this launch.
	Resize(output *tensor.Tensor) error
	// CalcWorkspace reports the scratch byte size this kernel needs for
	// its next Launch. Zero means no workspace allocation is required.
	CalcWorkspace() (int64, error)
	// Launch executes the kernel over inputs/workspace, writing into
	// output.
	Launch(inputs []*tensor.Tensor, workspace []byte, output *tensor.Tensor) error
}

// KernelLib is a named source of Kernel instances for one device/backend.
type KernelLib interface {
	Name() string
	// CreateKernel returns the Kernel implementing n's opcode, or an
	// error if this library has no kernel for it.
	CreateKernel(n *graph.Node) (Kernel, error)
}

var registry = struct {
	mu   sync.RWMutex
	libs map[string]KernelLib
}{libs: map[string]KernelLib{}}

func init() {
	Register(NewDummyLibrary())
}

// Register installs a KernelLib under its own Name(), replacing any
// existing registration of the same name.
func Register(lib KernelLib) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.libs[lib.Name()] = lib
}

// Lookup returns the KernelLib registered under name.
func Lookup(name string) (KernelLib, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	lib, ok := registry.libs[name]
	if !ok {
		return nil, fmt.Errorf("kernel: no library registered for %q", name)
	}
	return lib, nil
}
