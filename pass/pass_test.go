package pass

import (
	"testing"

	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/value"
)

// addToMulPass rewrites every Add node into a Mul node over the same
// inputs, to exercise the replace-and-repoint plumbing without needing
// a real kernel.
type addToMulPass struct{}

func (addToMulPass) Match(n *graph.Node) bool { return n.Opcode() == graph.Add }

func (addToMulPass) Replacement(n *graph.Node) *graph.Node {
	return graph.NewDetachedNode(graph.Mul, n.Inputs(), "")
}

func buildAddGraph(t *testing.T) (*graph.Graph, *graph.Node, *graph.Node) {
	t.Helper()
	g := graph.Begin("t")
	p0, err := g.AddValueNode(value.NewInt(1))
	if err != nil {
		t.Fatalf("AddValueNode p0: %v", err)
	}
	p1, err := g.AddValueNode(value.NewInt(2))
	if err != nil {
		t.Fatalf("AddValueNode p1: %v", err)
	}
	add, err := g.AddOpNode(graph.Add, []*graph.Node{p0, p1})
	if err != nil {
		t.Fatalf("AddOpNode: %v", err)
	}
	ret, err := g.AddReturn()
	if err != nil {
		t.Fatalf("AddReturn: %v", err)
	}
	return g, add, ret
}

func TestOrderedNodesContainsAndRemove(t *testing.T) {
	g, add, _ := buildAddGraph(t)

	on := BuildOrderedNodes(g)
	if !on.Contains(add) {
		t.Fatalf("expected add node present")
	}
	on.Remove(add)
	if on.Contains(add) {
		t.Fatalf("expected add node removed")
	}
}

func TestBuildUserDefTracksConsumers(t *testing.T) {
	g := graph.Begin("t")
	p0, _ := g.AddValueNode(value.NewInt(1))
	p1, _ := g.AddValueNode(value.NewInt(2))
	add, _ := g.AddOpNode(graph.Add, []*graph.Node{p0, p1})
	if _, err := g.AddReturn(); err != nil {
		t.Fatalf("AddReturn: %v", err)
	}

	ud := BuildUserDef(g.Nodes())
	uses := ud[p0]
	if len(uses) != 1 || uses[0].Owner != add || uses[0].Index != 0 {
		t.Fatalf("unexpected uses for p0: %#v", uses)
	}
}

func TestManagerRunRewritesMatchedNodeAndRepointsConsumers(t *testing.T) {
	Register("add-to-mul", func() NodePass { return addToMulPass{} })

	g, _, ret := buildAddGraph(t)

	mgr, err := NewManager("add-to-mul")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mgr.Run(g); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ret.Inputs()) != 1 || ret.Inputs()[0].Opcode() != graph.Mul {
		t.Fatalf("expected return's input rewritten to Mul, got %#v", ret.Inputs())
	}
}

func TestNewManagerRejectsUnregisteredPass(t *testing.T) {
	if _, err := NewManager("does-not-exist"); err == nil {
		t.Fatalf("expected error for unregistered pass")
	}
}
