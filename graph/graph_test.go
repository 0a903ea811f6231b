package graph

import (
	"testing"

	"github.com/dartrt/dartrt/value"
)

func TestBuildSimpleGraphAndReturn(t *testing.T) {
	g := Begin("single_add")

	p0, err := g.AddValueNode(value.NewInt(1))
	if err != nil {
		t.Fatalf("AddValueNode: %v", err)
	}
	if err := g.AddParameter(p0); err != nil {
		t.Fatalf("AddParameter: %v", err)
	}

	p1, err := g.AddValueNode(value.NewInt(2))
	if err != nil {
		t.Fatalf("AddValueNode: %v", err)
	}
	if err := g.AddParameter(p1); err != nil {
		t.Fatalf("AddParameter: %v", err)
	}

	addNode, err := g.AddOpNode(Add, []*Node{p0, p1})
	if err != nil {
		t.Fatalf("AddOpNode: %v", err)
	}

	ret, err := g.AddReturn()
	if err != nil {
		t.Fatalf("AddReturn: %v", err)
	}
	if ret.Opcode() != Return {
		t.Fatalf("ret.Opcode() = %s, want Return", ret.Opcode())
	}
	if len(ret.Inputs()) != 1 || ret.Inputs()[0] != addNode {
		t.Fatalf("ret.Inputs() = %v, want [addNode]", ret.Inputs())
	}

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(g.Parameters()) != 2 {
		t.Fatalf("len(Parameters()) = %d, want 2", len(g.Parameters()))
	}
}

func TestAddParameterRejectsNonEndOpcode(t *testing.T) {
	g := Begin("bad")
	p0, _ := g.AddValueNode(value.NewInt(1))
	opNode, _ := g.AddOpNode(Add, []*Node{p0})

	if err := g.AddParameter(opNode); err == nil {
		t.Fatal("AddParameter with non-End opcode: want error, got nil")
	}
}

func TestSealedGraphRejectsFurtherConstruction(t *testing.T) {
	g := Begin("sealed")
	p0, _ := g.AddValueNode(value.NewInt(1))
	g.AddParameter(p0)
	if _, err := g.AddReturn(); err != nil {
		t.Fatalf("AddReturn: %v", err)
	}

	if _, err := g.AddValueNode(value.NewInt(2)); err == nil {
		t.Fatal("AddValueNode after Return: want error, got nil")
	}
	if _, err := g.AddOpNode(Add, nil); err == nil {
		t.Fatal("AddOpNode after Return: want error, got nil")
	}
	if _, err := g.AddReturn(); err == nil {
		t.Fatal("second AddReturn: want error, got nil")
	}
}

func TestAddReturnOnEmptyGraphFails(t *testing.T) {
	g := Begin("empty")
	if _, err := g.AddReturn(); err == nil {
		t.Fatal("AddReturn on empty graph: want error, got nil")
	}
}

func TestOpcodeIsDummy(t *testing.T) {
	dummies := []Opcode{End, Return, Depend, Load, UpdateState, MakeTuple, TupleGetItem, Reshape, ExpandDims}
	for _, op := range dummies {
		if !op.IsDummy() {
			t.Errorf("%s.IsDummy() = false, want true", op)
		}
	}
	nonDummies := []Opcode{Add, Sub, Mul, Div, MatMul, FlashAttention}
	for _, op := range nonDummies {
		if op.IsDummy() {
			t.Errorf("%s.IsDummy() = true, want false", op)
		}
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	g := Begin("roundtrip")
	p0, _ := g.AddValueNode(value.NewInt(7))
	g.AddParameter(p0)
	g.AddOpNode(Add, []*Node{p0})
	g.AddReturn()

	data, err := g.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Name() != g.Name() {
		t.Fatalf("Name() = %q, want %q", got.Name(), g.Name())
	}
	if len(got.Nodes()) != len(g.Nodes()) {
		t.Fatalf("len(Nodes()) = %d, want %d", len(got.Nodes()), len(g.Nodes()))
	}
	if len(got.Parameters()) != 1 {
		t.Fatalf("len(Parameters()) = %d, want 1", len(got.Parameters()))
	}
	if got.Parameters()[0].Output().ToInt() != 7 {
		t.Fatalf("Parameters()[0].Output().ToInt() = %d, want 7", got.Parameters()[0].Output().ToInt())
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate() on round-tripped graph: %v", err)
	}
}
