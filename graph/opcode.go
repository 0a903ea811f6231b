// Package graph implements the Node/Graph IR and its construction façade
// (spec.md §3, §4.3).
package graph

import "fmt"

// Opcode is the closed enum shared between the IR and the executor
// (spec.md §4.8 "Operator opcode catalog").
type Opcode int

const (
	// End marks value-carrying leaves (parameters, constants).
	End Opcode = iota
	// Return marks the sole terminal node of a Graph.
	Return

	Add
	Sub
	Mul
	Div
	MatMul
	Reshape
	ExpandDims
	MakeTuple
	TupleGetItem
	Depend
	Load
	UpdateState
	AllGather
	Copy
	WaitTensor
	Shape
	FlashAttention
	PagedAttention
)

var opcodeNames = map[Opcode]string{
	End:            "End",
	Return:         "Return",
	Add:            "Add",
	Sub:            "Sub",
	Mul:            "Mul",
	Div:            "Div",
	MatMul:         "MatMul",
	Reshape:        "Reshape",
	ExpandDims:     "ExpandDims",
	MakeTuple:      "MakeTuple",
	TupleGetItem:   "TupleGetItem",
	Depend:         "Depend",
	Load:           "Load",
	UpdateState:    "UpdateState",
	AllGather:      "AllGather",
	Copy:           "Copy",
	WaitTensor:     "WaitTensor",
	Shape:          "Shape",
	FlashAttention: "FlashAttention",
	PagedAttention: "PagedAttention",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

// ParseOpcode is the inverse of Opcode.String, for loaders that read
// graph descriptions off the wire or from disk.
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// IsDummy reports whether op is handled by pure aliasing/bookkeeping
// rather than a kernel launch (spec.md §4.8's dummy-op set).
func (op Opcode) IsDummy() bool {
	switch op {
	case End, Return, Depend, Load, UpdateState, MakeTuple, TupleGetItem, Reshape, ExpandDims:
		return true
	default:
		return false
	}
}

// IsForceResize reports whether op must still call kernel.Resize even
// when its kernel reports a static (non-dynamic) output shape, because
// its workspace sizing depends on runtime state beyond the input shapes
// (spec.md §4.8 step 2, "e.g., attention variants").
func (op Opcode) IsForceResize() bool {
	switch op {
	case FlashAttention, PagedAttention:
		return true
	default:
		return false
	}
}
