package graph

import (
	"fmt"

	"github.com/dartrt/dartrt/value"
)

// Graph is an ordered sequence of Node handles in dependency order: each
// node's inputs appear earlier in the sequence or are parameters. The
// last node must have opcode Return (spec.md §3).
//
// Graph construction is a thin façade (spec.md §4.3); the real work of
// optimizing, building kernels and running lives in the pass, kernel and
// exec packages, each taking a *Graph rather than Graph importing them
// back — this keeps graph a leaf package in the dependency order.
type Graph struct {
	name   string
	nodes  []*Node
	params []*Node
	nextID int
	sealed bool
}

// Begin starts a fresh graph under the given name.
func Begin(name string) *Graph {
	return &Graph{name: name}
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Nodes returns the graph's nodes in construction order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Parameters returns the subset of nodes registered as parameters.
func (g *Graph) Parameters() []*Node { return g.params }

func (g *Graph) newNode(op Opcode, inputs []*Node) *Node {
	n := &Node{id: g.nextID, op: op, inputs: inputs}
	g.nextID++
	return n
}

// AddParameter registers an existing leaf node (opcode End) as a
// parameter and appends it to the node sequence.
func (g *Graph) AddParameter(n *Node) error {
	if g.sealed {
		return fmt.Errorf("graph: cannot add parameter after Return has been appended")
	}
	if n.Opcode() != End {
		return fmt.Errorf("graph: parameter node must have opcode End, got %s", n.Opcode())
	}
	g.nodes = append(g.nodes, n)
	g.params = append(g.params, n)
	return nil
}

// AddValueNode creates a leaf node with opcode End and the given value,
// appends it to the graph and returns it.
func (g *Graph) AddValueNode(v value.Value) (*Node, error) {
	if g.sealed {
		return nil, fmt.Errorf("graph: cannot add a value node after Return has been appended")
	}
	n := g.newNode(End, nil)
	n.output = v
	g.nodes = append(g.nodes, n)
	return n, nil
}

// AddOpNode appends a non-leaf node for op over inputs. Its output is an
// empty Tensor-less placeholder (value.None) until shape inference runs.
func (g *Graph) AddOpNode(op Opcode, inputs []*Node) (*Node, error) {
	if g.sealed {
		return nil, fmt.Errorf("graph: cannot add an op node after Return has been appended")
	}
	if op == End || op == Return {
		return nil, fmt.Errorf("graph: %s is not a valid opcode for AddOpNode", op)
	}
	n := g.newNode(op, inputs)
	g.nodes = append(g.nodes, n)
	return n, nil
}

// AddReturn appends the Graph's terminal Return node, whose sole input is
// the most recently appended node. Seals the graph against further
// construction.
func (g *Graph) AddReturn() (*Node, error) {
	if g.sealed {
		return nil, fmt.Errorf("graph: Return has already been appended")
	}
	if len(g.nodes) == 0 {
		return nil, fmt.Errorf("graph: cannot add Return to an empty graph")
	}
	last := g.nodes[len(g.nodes)-1]
	n := g.newNode(Return, []*Node{last})
	g.nodes = append(g.nodes, n)
	g.sealed = true
	return n, nil
}

// ReturnNode returns the graph's terminal node, or nil if AddReturn has
// not been called yet.
func (g *Graph) ReturnNode() *Node {
	if !g.sealed || len(g.nodes) == 0 {
		return nil
	}
	last := g.nodes[len(g.nodes)-1]
	if last.Opcode() != Return {
		return nil
	}
	return last
}

// Validate checks the dependency-order and Return-terminal invariants
// from spec.md §3.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph: empty graph")
	}
	if g.nodes[len(g.nodes)-1].Opcode() != Return {
		return fmt.Errorf("graph: last node must have opcode Return, got %s", g.nodes[len(g.nodes)-1].Opcode())
	}
	seen := make(map[int]bool, len(g.nodes))
	for _, n := range g.nodes {
		for _, in := range n.Inputs() {
			if !seen[in.ID()] {
				return fmt.Errorf("graph: node %d (%s) uses input %d before it is defined", n.ID(), n.Opcode(), in.ID())
			}
		}
		seen[n.ID()] = true
	}
	return nil
}
