package graph

import (
	"sync/atomic"

	"github.com/dartrt/dartrt/value"
)

var detachedIDCounter int64

// Node is a record with an opcode, an ordered set of input nodes (shared
// handles) and an output Value (shared handle). Leaf nodes (opcode End)
// carry a pre-populated output; non-leaf nodes get their output Tensor
// shape/dtype-inferred by the kernel before each launch (spec.md §3).
type Node struct {
	id     int
	op     Opcode
	inputs []*Node
	output value.Value

	// name is an optional debug label; unset for most op nodes.
	name string
}

// ID returns the node's position-independent identity, assigned by the
// graph builder in construction order.
func (n *Node) ID() int { return n.id }

// Opcode returns the node's operator.
func (n *Node) Opcode() Opcode { return n.op }

// Inputs returns the node's ordered input nodes.
func (n *Node) Inputs() []*Node { return n.inputs }

// Output returns the node's current output Value.
func (n *Node) Output() value.Value { return n.output }

// SetOutput replaces the node's output Value, called by the executor
// after shape inference and kernel launch.
func (n *Node) SetOutput(v value.Value) { n.output = v }

// Name returns the node's debug label, if any.
func (n *Node) Name() string { return n.name }

// NewDetachedNode builds a Node not yet attached to any Graph's node
// sequence, for passes that synthesize a replacement node (spec.md
// §4.6). The caller is responsible for splicing it into a Graph/
// OrderedNodes. Its id is a fresh negative number from a process-wide
// counter, so it never collides with the non-negative ids a Graph
// assigns or with another detached node.
func NewDetachedNode(op Opcode, inputs []*Node, name string) *Node {
	id := -1 - int(atomic.AddInt64(&detachedIDCounter, 1))
	return &Node{id: id, op: op, inputs: inputs, name: name}
}
