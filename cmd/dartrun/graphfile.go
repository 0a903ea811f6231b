package main

import (
	"encoding/json"
	"fmt"
	"os"
	"unsafe"

	"github.com/dartrt/dartrt/device"
	"github.com/dartrt/dartrt/graph"
	"github.com/dartrt/dartrt/storage"
	"github.com/dartrt/dartrt/tensor"
	"github.com/dartrt/dartrt/value"
)

// nodeFile is the on-disk JSON shape for one graph node. Leaf nodes
// (opcode "End") carry a Value; op nodes carry Op and the indices of
// their inputs into the file's own node list.
type nodeFile struct {
	Op     string    `json:"op"`
	Inputs []int     `json:"inputs,omitempty"`
	Value  *valueFile `json:"value,omitempty"`
}

type valueFile struct {
	Kind  string    `json:"kind"`
	Data  []float32 `json:"data,omitempty"`
	Shape []int64   `json:"shape,omitempty"`
	Int   *int64    `json:"int,omitempty"`
}

type graphFile struct {
	Name  string     `json:"name"`
	Nodes []nodeFile `json:"nodes"`
}

// loadGraphFile reads a JSON graph description from path and builds a
// *graph.Graph. A Return node is appended automatically over the last
// node in the file.
func loadGraphFile(path string) (*graph.Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dartrun: read %s: %w", path, err)
	}
	var gf graphFile
	if err := json.Unmarshal(raw, &gf); err != nil {
		return nil, fmt.Errorf("dartrun: parse %s: %w", path, err)
	}
	if len(gf.Nodes) == 0 {
		return nil, fmt.Errorf("dartrun: %s declares no nodes", path)
	}

	cpu, err := device.Lookup("CPU")
	if err != nil {
		return nil, fmt.Errorf("dartrun: %w", err)
	}

	g := graph.Begin(gf.Name)
	built := make([]*graph.Node, len(gf.Nodes))

	for i, nf := range gf.Nodes {
		op, ok := graph.ParseOpcode(nf.Op)
		if !ok {
			return nil, fmt.Errorf("dartrun: node %d: unknown opcode %q", i, nf.Op)
		}
		if op == graph.End {
			v, err := buildValue(nf.Value, cpu)
			if err != nil {
				return nil, fmt.Errorf("dartrun: node %d: %w", i, err)
			}
			n, err := g.AddValueNode(v)
			if err != nil {
				return nil, fmt.Errorf("dartrun: node %d: %w", i, err)
			}
			built[i] = n
			continue
		}

		inputs := make([]*graph.Node, len(nf.Inputs))
		for j, idx := range nf.Inputs {
			if idx < 0 || idx >= i {
				return nil, fmt.Errorf("dartrun: node %d: input index %d out of range", i, idx)
			}
			inputs[j] = built[idx]
		}
		n, err := g.AddOpNode(op, inputs)
		if err != nil {
			return nil, fmt.Errorf("dartrun: node %d: %w", i, err)
		}
		built[i] = n
	}

	if _, err := g.AddReturn(); err != nil {
		return nil, fmt.Errorf("dartrun: %w", err)
	}
	return g, nil
}

func buildValue(vf *valueFile, cpu storage.Allocator) (value.Value, error) {
	if vf == nil {
		return value.None, fmt.Errorf("End node requires a value")
	}
	switch vf.Kind {
	case "float", "tensor":
		shape := vf.Shape
		if len(shape) == 0 {
			shape = []int64{int64(len(vf.Data))}
		}
		st := storage.NewOwned(int64(len(vf.Data))*4, "CPU", cpu)
		if err := st.AllocateMemory(); err != nil {
			return value.None, fmt.Errorf("allocate tensor storage: %w", err)
		}
		raw := st.Ptr().Bytes
		if len(vf.Data) > 0 {
			view := unsafe.Slice((*float32)(unsafe.Pointer(&raw[0])), len(vf.Data))
			copy(view, vf.Data)
		}
		t := tensor.NewTensor(shape, tensor.DTypeF32, tensor.FormatDefault, st)
		return value.NewTensor(t), nil
	case "int":
		if vf.Int == nil {
			return value.None, fmt.Errorf("kind \"int\" requires an int field")
		}
		return value.NewInt(*vf.Int), nil
	default:
		return value.None, fmt.Errorf("unsupported value kind %q", vf.Kind)
	}
}
