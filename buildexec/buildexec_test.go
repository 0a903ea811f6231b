package buildexec

import (
	"testing"

	"github.com/dartrt/dartrt/device"
	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/kernel"
	"github.com/dartrt/dartrt/storage"
	"github.com/dartrt/dartrt/tensor"
	"github.com/dartrt/dartrt/value"
)

func newScalarTensorValue(t *testing.T) (value.Value, *storage.Storage) {
	t.Helper()
	cpu, err := device.Lookup("CPU")
	if err != nil {
		t.Fatalf("device.Lookup: %v", err)
	}
	st := storage.NewOwned(4, "CPU", cpu)
	if err := st.AllocateMemory(); err != nil {
		t.Fatalf("AllocateMemory: %v", err)
	}
	tn := tensor.NewTensor([]int64{1}, tensor.DTypeF32, tensor.FormatDefault, st)
	return value.NewTensor(tn), st
}

func TestBuildProducesOneRunnerPerNode(t *testing.T) {
	g := graph.Begin("t")
	v0, _ := newScalarTensorValue(t)
	v1, _ := newScalarTensorValue(t)
	p0, _ := g.AddValueNode(v0)
	p1, _ := g.AddValueNode(v1)
	_, err := g.AddOpNode(graph.Add, []*graph.Node{p0, p1})
	if err != nil {
		t.Fatalf("AddOpNode: %v", err)
	}
	if _, err := g.AddReturn(); err != nil {
		t.Fatalf("AddReturn: %v", err)
	}

	lib, err := kernel.Lookup("Dummy")
	if err != nil {
		t.Fatalf("kernel.Lookup: %v", err)
	}

	runners, err := Build(g.Nodes(), lib)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(runners) != len(g.Nodes()) {
		t.Fatalf("len(runners) = %d, want %d", len(runners), len(g.Nodes()))
	}

	addRunner := runners[2]
	if addRunner.Kernel == nil {
		t.Fatalf("expected Add node to resolve a kernel")
	}
	if len(addRunner.FreeAfter) != 2 {
		t.Fatalf("FreeAfter = %d entries, want 2", len(addRunner.FreeAfter))
	}
	found := false
	for _, owner := range addRunner.FreeAfter {
		if owner == p0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected p0 scheduled for free at the add node")
	}
}

func TestBuildKeepsStorageReachableFromReturn(t *testing.T) {
	g := graph.Begin("t")
	v0, _ := newScalarTensorValue(t)
	p0, _ := g.AddValueNode(v0)
	if _, err := g.AddReturn(); err != nil {
		t.Fatalf("AddReturn: %v", err)
	}

	lib, err := kernel.Lookup("Dummy")
	if err != nil {
		t.Fatalf("kernel.Lookup: %v", err)
	}
	runners, err := Build(g.Nodes(), lib)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, r := range runners {
		for _, owner := range r.FreeAfter {
			if owner == p0 {
				t.Fatalf("p0 must not be freed: it is the graph's return value")
			}
		}
	}
}

func TestBuildRejectsGraphNotEndingInReturn(t *testing.T) {
	g := graph.Begin("t")
	v0, _ := newScalarTensorValue(t)
	if _, err := g.AddValueNode(v0); err != nil {
		t.Fatalf("AddValueNode: %v", err)
	}

	lib, _ := kernel.Lookup("Dummy")
	if _, err := Build(g.Nodes(), lib); err == nil {
		t.Fatalf("expected error for graph not ending in Return")
	}
}
