// Package buildexec turns an optimized graph.Graph node sequence into an
// ordered execution plan: one OpRunner per node, with a last-consumer
// analysis recording which upstream nodes become safe to free once this
// runner has run (spec.md §4.7).
package buildexec

import (
	"fmt"

	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/kernel"
	"github.com/dartrt/dartrt/storage"
	"github.com/dartrt/dartrt/value"
)

// OpRunner pairs one graph node with its resolved kernel (nil for dummy
// opcodes, which the executor handles by aliasing rather than a launch)
// and the producer nodes whose run-time output storage becomes eligible
// for release once this node has executed.
type OpRunner struct {
	Node   *graph.Node
	Kernel kernel.Kernel

	// FreeAfter names producer nodes, not storages: an op node's
	// Output() is value.None until it actually runs (graph.AddOpNode
	// leaves it unset), so a real Storage handle does not exist for an
	// intermediate activation at build time. The analysis below keys on
	// node identity instead, and the executor resolves each entry's
	// Storage from the producer's Output() after that producer has run.
	FreeAfter []*graph.Node
}

// Build resolves one OpRunner per node in nodes, which must be in
// construction/topological order and end with a Return node.
//
// FreeAfter is computed by scanning nodes in reverse: the first time
// (walking backward) a storage owner is encountered as an input, that
// is its last use in forward order, so the owner is recorded on the
// current node's FreeAfter list. The node(s) owning the storage(s)
// reachable through the Return node's own input are pre-seeded as kept
// and never scheduled for freeing, since the caller owns them past the
// end of this execution.
//
// Dummy nodes (Reshape, ExpandDims, MakeTuple, TupleGetItem, Return,
// ...) never appear as a FreeAfter entry and are skipped when scanning
// for owners to free: they forward or repackage a value rather than
// taking independent ownership of storage, so crediting one as a
// tensor's last consumer would free storage a later real consumer, or
// the Return node itself, still needs. resolveOwners follows these
// passthrough chains down to the real producer — a leaf End node or a
// node with its own kernel launch — that actually holds the storage.
func Build(nodes []*graph.Node, lib kernel.KernelLib) ([]*OpRunner, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("buildexec: empty node list")
	}
	returnNode := nodes[len(nodes)-1]
	if returnNode.Opcode() != graph.Return {
		return nil, fmt.Errorf("buildexec: last node must be Return, got %s", returnNode.Opcode())
	}
	if len(returnNode.Inputs()) == 0 {
		return nil, fmt.Errorf("buildexec: Return node has no input")
	}

	kept := make(map[*graph.Node]bool)
	for _, owner := range resolveOwners(returnNode.Inputs()[0]) {
		kept[owner] = true
	}

	seen := make(map[*graph.Node]bool)
	runners := make([]*OpRunner, len(nodes))

	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		runner := &OpRunner{Node: n}

		if !n.Opcode().IsDummy() {
			k, err := lib.CreateKernel(n)
			if err != nil {
				return nil, fmt.Errorf("buildexec: node %d (%s): %w", n.ID(), n.Opcode(), err)
			}
			if err := k.Init(); err != nil {
				return nil, fmt.Errorf("buildexec: node %d (%s): kernel init: %w", n.ID(), n.Opcode(), err)
			}
			runner.Kernel = k

			for _, in := range n.Inputs() {
				for _, owner := range resolveOwners(in) {
					if kept[owner] || seen[owner] {
						continue
					}
					seen[owner] = true
					runner.FreeAfter = append(runner.FreeAfter, owner)
				}
			}
		}

		runners[i] = runner
	}

	return runners, nil
}

// resolveOwners returns the node(s) whose run-time Output() tensor
// backs n's value once produced: n itself for a leaf or a real kernel
// node, or the upstream node(s) it aliases for a dummy passthrough op.
// A MakeTuple reached directly, or a TupleGetItem whose index cannot be
// resolved statically (its index input is itself computed rather than
// a literal), returns every node that could contribute to the result
// rather than guessing — over-approximating here can only leak a
// storage, never free one too early.
func resolveOwners(n *graph.Node) []*graph.Node {
	switch n.Opcode() {
	case graph.Reshape, graph.ExpandDims, graph.Return, graph.Depend, graph.Load, graph.UpdateState:
		if len(n.Inputs()) == 0 {
			return nil
		}
		return resolveOwners(n.Inputs()[0])
	case graph.TupleGetItem:
		if len(n.Inputs()) != 2 {
			return []*graph.Node{n}
		}
		tupleSrc, idxNode := n.Inputs()[0], n.Inputs()[1]
		if tupleSrc.Opcode() == graph.MakeTuple && idxNode.Opcode() == graph.End {
			if v := idxNode.Output(); v.IsInt() {
				idx := int(v.ToInt())
				if idx >= 0 && idx < len(tupleSrc.Inputs()) {
					return resolveOwners(tupleSrc.Inputs()[idx])
				}
			}
		}
		return resolveOwners(tupleSrc)
	case graph.MakeTuple:
		var owners []*graph.Node
		for _, in := range n.Inputs() {
			owners = append(owners, resolveOwners(in)...)
		}
		return owners
	default:
		return []*graph.Node{n}
	}
}

// StorageOf extracts a tensor value's backing Storage, or nil if v does
// not carry one. Exported so the executor can resolve a FreeAfter
// entry's Storage from its producer node's run-time Output(), which is
// only populated after that node has actually executed.
func StorageOf(v value.Value) *storage.Storage {
	if !v.IsTensor() {
		return nil
	}
	t := v.ToTensor()
	if t == nil {
		return nil
	}
	return t.Storage()
}
