package graph

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/dartrt/dartrt/value"
)

// wireNode is the gob-encodable projection of Node: inputs are recorded
// as indices into the wire graph's node list rather than pointers, since
// gob cannot round-trip the shared-handle pointer graph directly. This
// adapts the teacher's binary graph format (originally over Sublation's
// Thesis/Antithesis/Synthesis nodes) to the opcode/input/output shape
// used here.
type wireNode struct {
	ID     int
	Op     Opcode
	Inputs []int
	Name   string

	HasOutput bool
	OutputInt int64
	OutputStr string
	OutputF64 float64
	OutputB   bool
	OutputKind value.Kind
}

type wireGraph struct {
	Name    string
	Nodes   []wireNode
	ParamID []int
	Sealed  bool
}

// Marshal encodes the graph's topology and scalar-valued leaf outputs to
// a portable byte format. Tensor-valued outputs are not serialized —
// only End/Return/scalar leaves round-trip; Tensor storage is device
// memory and out of scope for this format, matching spec.md's silence on
// persistence (graph save/load is ambient tooling, not part of the
// operator catalog).
func (g *Graph) Marshal() ([]byte, error) {
	idx := make(map[int]int, len(g.nodes))
	for i, n := range g.nodes {
		idx[n.id] = i
	}

	wg := wireGraph{Name: g.name, Sealed: g.sealed}
	for _, n := range g.nodes {
		wn := wireNode{ID: n.id, Op: n.op, Name: n.name}
		for _, in := range n.inputs {
			wn.Inputs = append(wn.Inputs, idx[in.id])
		}
		switch n.output.Kind() {
		case value.KindInt:
			wn.HasOutput, wn.OutputKind, wn.OutputInt = true, value.KindInt, n.output.ToInt()
		case value.KindFloat:
			wn.HasOutput, wn.OutputKind, wn.OutputF64 = true, value.KindFloat, n.output.ToFloat()
		case value.KindBool:
			wn.HasOutput, wn.OutputKind, wn.OutputB = true, value.KindBool, n.output.ToBool()
		case value.KindString:
			wn.HasOutput, wn.OutputKind, wn.OutputStr = true, value.KindString, n.output.ToString()
		case value.KindNone:
			wn.HasOutput, wn.OutputKind = true, value.KindNone
		}
		wg.Nodes = append(wg.Nodes, wn)
	}
	for _, p := range g.params {
		wg.ParamID = append(wg.ParamID, idx[p.id])
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wg); err != nil {
		return nil, fmt.Errorf("graph: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a byte format produced by Marshal into a fresh Graph.
func Unmarshal(data []byte) (*Graph, error) {
	var wg wireGraph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wg); err != nil {
		return nil, fmt.Errorf("graph: unmarshal: %w", err)
	}

	g := &Graph{name: wg.Name, sealed: wg.Sealed}
	nodes := make([]*Node, len(wg.Nodes))
	for i, wn := range wg.Nodes {
		nodes[i] = &Node{id: wn.ID, op: wn.Op, name: wn.Name}
		if wn.ID >= g.nextID {
			g.nextID = wn.ID + 1
		}
	}
	for i, wn := range wg.Nodes {
		for _, inIdx := range wn.Inputs {
			nodes[i].inputs = append(nodes[i].inputs, nodes[inIdx])
		}
		if wn.HasOutput {
			switch wn.OutputKind {
			case value.KindInt:
				nodes[i].output = value.NewInt(wn.OutputInt)
			case value.KindFloat:
				nodes[i].output = value.NewFloat(wn.OutputF64)
			case value.KindBool:
				nodes[i].output = value.NewBool(wn.OutputB)
			case value.KindString:
				nodes[i].output = value.NewString(wn.OutputStr)
			default:
				nodes[i].output = value.None
			}
		}
	}
	g.nodes = nodes
	for _, idx := range wg.ParamID {
		g.params = append(g.params, nodes[idx])
	}
	return g, nil
}
