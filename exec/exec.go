// Package exec implements the executor: dispatches an ordered
// buildexec.OpRunner plan either serially or as a bounded-concurrency
// DAG, following each runner's precomputed free list to reclaim
// storage as soon as a tensor's last consumer has run (spec.md §4.8).
package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dartrt/dartrt/buildexec"
	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/internal/obslog"
	"github.com/dartrt/dartrt/metrics"
	"github.com/dartrt/dartrt/storage"
	"github.com/dartrt/dartrt/tensor"
	"github.com/dartrt/dartrt/value"
)

// Mode selects the executor's scheduling discipline.
type Mode int

const (
	// ModeSerial runs runners in the plan's own order, one at a time.
	ModeSerial Mode = iota
	// ModeDAGParallel runs runners as soon as every input has produced
	// its output, bounded by Executor's worker concurrency.
	ModeDAGParallel
)

// Executor runs a fixed buildexec plan against one device allocator.
// A single Executor instance is meant for one Run call; build a fresh
// one per graph execution.
type Executor struct {
	runners []*buildexec.OpRunner
	byNode  map[*graph.Node]*buildexec.OpRunner

	device     storage.Allocator
	deviceName string

	mode    Mode
	workers int

	logger  *zap.Logger
	metrics *metrics.Registry
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithMode selects serial or DAG-parallel scheduling (default serial).
func WithMode(mode Mode) Option {
	return func(e *Executor) { e.mode = mode }
}

// WithWorkers bounds DAG-parallel concurrency (default 1, meaning
// effectively serial even in ModeDAGParallel; values < 1 are clamped
// to 1).
func WithWorkers(n int) Option {
	return func(e *Executor) { e.workers = n }
}

// WithLogger installs a non-default logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics installs a metrics registry (nil disables collection).
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Executor) { e.metrics = m }
}

// New builds an Executor over runners, which must already be an
// optimized, last-consumer-analyzed plan (buildexec.Build's output).
func New(runners []*buildexec.OpRunner, device storage.Allocator, opts ...Option) *Executor {
	e := &Executor{
		runners:    runners,
		byNode:     make(map[*graph.Node]*buildexec.OpRunner, len(runners)),
		device:     device,
		deviceName: device.Name(),
		workers:    1,
	}
	for _, r := range runners {
		e.byNode[r.Node] = r
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	e.logger = obslog.NopIfNil(e.logger)
	return e
}

// Run executes the whole plan and returns the Return node's output
// value. A kernel failure aborts the run immediately; the executor drops
// no further references on abort, so storages whose releasing runner had
// not yet run keep their ref counts.
func (e *Executor) Run(ctx context.Context) (value.Value, error) {
	if len(e.runners) == 0 {
		return value.None, fmt.Errorf("exec: empty execution plan")
	}

	var err error
	switch e.mode {
	case ModeDAGParallel:
		err = e.runDAGParallel(ctx)
	default:
		err = e.runSerial()
	}
	if err != nil {
		return value.None, err
	}

	last := e.runners[len(e.runners)-1].Node
	if last.Opcode() != graph.Return {
		return value.None, fmt.Errorf("exec: plan does not end in a Return node")
	}
	return last.Output(), nil
}

func (e *Executor) runSerial() error {
	for _, r := range e.runners {
		if err := e.execNode(r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runDAGParallel(ctx context.Context) error {
	var mu sync.Mutex
	waiting := make(map[*graph.Node]int, len(e.runners))
	next := make(map[*graph.Node][]*graph.Node, len(e.runners))

	for _, r := range e.runners {
		waiting[r.Node] = len(r.Node.Inputs())
	}
	for _, r := range e.runners {
		for _, in := range r.Node.Inputs() {
			next[in] = append(next[in], r.Node)
		}
	}

	sem := semaphore.NewWeighted(int64(e.workers))
	g, gctx := errgroup.WithContext(ctx)

	var schedule func(n *graph.Node)
	schedule = func(n *graph.Node) {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			if err := e.execNode(e.byNode[n]); err != nil {
				return err
			}

			mu.Lock()
			var freed []*graph.Node
			for _, user := range next[n] {
				waiting[user]--
				if waiting[user] == 0 {
					freed = append(freed, user)
				}
			}
			mu.Unlock()

			for _, user := range freed {
				schedule(user)
			}
			return nil
		})
	}

	for _, r := range e.runners {
		if waiting[r.Node] == 0 {
			schedule(r.Node)
		}
	}

	return g.Wait()
}

// execNode dispatches one runner per the opcode table in spec.md §4.8,
// then releases every storage the runner's last-consumer analysis
// cleared for reuse.
func (e *Executor) execNode(r *buildexec.OpRunner) error {
	n := r.Node
	start := time.Now()

	var err error
	switch {
	case n.Opcode() == graph.End:
		// Leaf: output was set at graph construction time.
	case isAliasOpcode(n.Opcode()):
		err = e.dispatchAlias(n)
	case n.Opcode() == graph.MakeTuple:
		err = e.dispatchMakeTuple(n)
	case n.Opcode() == graph.TupleGetItem:
		err = e.dispatchTupleGetItem(n)
	case n.Opcode() == graph.Reshape, n.Opcode() == graph.ExpandDims:
		err = e.dispatchShapeAlias(n)
	default:
		err = e.launchKernel(r)
	}
	if err != nil {
		e.logger.Error("exec: node failed",
			zap.Int("node", n.ID()),
			zap.String("op", n.Opcode().String()),
			zap.Error(err),
		)
		return fmt.Errorf("exec: node %d (%s): %w", n.ID(), n.Opcode(), err)
	}

	if r.Kernel != nil {
		e.metrics.ObserveLaunch(time.Since(start).Seconds())
	}

	for _, owner := range r.FreeAfter {
		if st := buildexec.StorageOf(owner.Output()); st != nil {
			st.ReleaseRef()
		}
	}
	return nil
}

func isAliasOpcode(op graph.Opcode) bool {
	switch op {
	case graph.Return, graph.Depend, graph.Load, graph.UpdateState:
		return true
	default:
		return false
	}
}

func (e *Executor) dispatchAlias(n *graph.Node) error {
	if len(n.Inputs()) == 0 {
		return fmt.Errorf("%s node has no input to alias", n.Opcode())
	}
	n.SetOutput(n.Inputs()[0].Output())
	return nil
}

func (e *Executor) dispatchMakeTuple(n *graph.Node) error {
	vs := make([]value.Value, len(n.Inputs()))
	for i, in := range n.Inputs() {
		vs[i] = in.Output()
	}
	n.SetOutput(value.NewTuple(vs))
	return nil
}

// dispatchTupleGetItem expects inputs()[0] to be the tuple and
// inputs()[1] to be a literal End node carrying the Int index, the
// convention the graph builder uses for encoding op parameters that
// are not themselves tensors.
func (e *Executor) dispatchTupleGetItem(n *graph.Node) error {
	if len(n.Inputs()) != 2 {
		return fmt.Errorf("TupleGetItem requires exactly 2 inputs, got %d", len(n.Inputs()))
	}
	tuple := n.Inputs()[0].Output().ToTuple()
	idx := int(n.Inputs()[1].Output().ToInt())
	if idx < 0 || idx >= len(tuple) {
		return fmt.Errorf("TupleGetItem index %d out of range [0, %d)", idx, len(tuple))
	}
	n.SetOutput(tuple[idx])
	return nil
}

// dispatchShapeAlias handles Reshape/ExpandDims: the output tensor
// shares the input's storage under a new shape, per the same
// index-carrying-input convention as dispatchTupleGetItem. Inputs()[1]
// must be a literal End node carrying a Tuple of Int values.
func (e *Executor) dispatchShapeAlias(n *graph.Node) error {
	if len(n.Inputs()) != 2 {
		return fmt.Errorf("%s requires exactly 2 inputs, got %d", n.Opcode(), len(n.Inputs()))
	}
	in := n.Inputs()[0].Output().ToTensor()
	shapeTuple := n.Inputs()[1].Output().ToTuple()

	shape := make([]int64, len(shapeTuple))
	for i, v := range shapeTuple {
		shape[i] = v.ToInt()
	}

	out := tensor.NewTensor(shape, in.DType(), in.Format(), in.Storage())
	if out.ByteSize() > in.Storage().SizeBytes() {
		return fmt.Errorf("%s: target shape %v exceeds backing storage size", n.Opcode(), shape)
	}
	n.SetOutput(value.NewTensor(out))
	return nil
}

func (e *Executor) launchKernel(r *buildexec.OpRunner) error {
	n := r.Node
	k := r.Kernel
	if k == nil {
		return fmt.Errorf("no kernel resolved for opcode %s", n.Opcode())
	}

	inputs := make([]*tensor.Tensor, len(n.Inputs()))
	for i, in := range n.Inputs() {
		v := in.Output()
		if !v.IsTensor() {
			return fmt.Errorf("input %d is not a tensor value (kind %s)", i, v.Kind())
		}
		inputs[i] = v.ToTensor()
	}
	if len(inputs) == 0 {
		return fmt.Errorf("kernel op with no inputs")
	}

	outStorage := storage.NewOwned(0, e.deviceName, e.device)
	output := tensor.NewTensor(nil, inputs[0].DType(), inputs[0].Format(), outStorage)

	switch {
	case k.DynamicShape():
		if err := k.InferShape(inputs, output); err != nil {
			return fmt.Errorf("infer_shape: %w", err)
		}
		if err := k.Resize(output); err != nil {
			return fmt.Errorf("resize: %w", err)
		}
	case n.Opcode().IsForceResize():
		if err := k.Resize(output); err != nil {
			return fmt.Errorf("resize: %w", err)
		}
	}

	wsSize, err := k.CalcWorkspace()
	if err != nil {
		return fmt.Errorf("calc_workspace: %w", err)
	}
	var workspace []byte
	if wsSize > 0 {
		wsStorage := storage.NewOwned(wsSize, e.deviceName, e.device)
		if err := wsStorage.AllocateMemory(); err != nil {
			return fmt.Errorf("allocate workspace: %w", err)
		}
		workspace = wsStorage.Ptr().Bytes
		defer wsStorage.ReleaseRef()
	}

	if err := output.ResizeStorage(); err != nil {
		return fmt.Errorf("allocate output storage: %w", err)
	}
	if err := k.Launch(inputs, workspace, output); err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	n.SetOutput(value.NewTensor(output))
	return nil
}
