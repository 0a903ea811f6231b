package value

import (
	"fmt"

	"github.com/dartrt/dartrt/tensor"
)

// Kind identifies which variant a Value currently holds.
type Kind int

const (
	KindNone Kind = iota
	KindTensor
	KindInt
	KindFloat
	KindBool
	KindString
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindTensor:
		return "Tensor"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindTuple:
		return "Tuple"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is the tagged-union type carried by graph nodes (spec.md §3). The
// tag never changes after construction: a Value is always built through
// one of the New* constructors and its Kind is fixed for its lifetime.
// Accessors panic if the tag mismatches, per the spec's chosen
// error-vs-panic policy for programmer errors.
type Value struct {
	kind   Kind
	tensor *tensor.Tensor
	i      int64
	f      float64
	b      bool
	s      string
	tuple  []Value
}

// None is the value carried by nodes with no result yet.
var None = Value{kind: KindNone}

func NewTensor(t *tensor.Tensor) Value { return Value{kind: KindTensor, tensor: t} }
func NewInt(i int64) Value             { return Value{kind: KindInt, i: i} }
func NewFloat(f float64) Value         { return Value{kind: KindFloat, f: f} }
func NewBool(b bool) Value             { return Value{kind: KindBool, b: b} }
func NewString(s string) Value         { return Value{kind: KindString, s: s} }
func NewTuple(vs []Value) Value        { return Value{kind: KindTuple, tuple: append([]Value(nil), vs...)} }

// Kind returns the variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNone() bool   { return v.kind == KindNone }
func (v Value) IsTensor() bool { return v.kind == KindTensor }
func (v Value) IsInt() bool    { return v.kind == KindInt }
func (v Value) IsFloat() bool  { return v.kind == KindFloat }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsTuple() bool  { return v.kind == KindTuple }

// ToTensor extracts the Tensor handle. Panics if Kind() != KindTensor.
func (v Value) ToTensor() *tensor.Tensor {
	v.mustBe(KindTensor)
	return v.tensor
}

// ToInt extracts the int64. Panics if Kind() != KindInt.
func (v Value) ToInt() int64 {
	v.mustBe(KindInt)
	return v.i
}

// ToFloat extracts the float64. Panics if Kind() != KindFloat.
func (v Value) ToFloat() float64 {
	v.mustBe(KindFloat)
	return v.f
}

// ToBool extracts the bool. Panics if Kind() != KindBool.
func (v Value) ToBool() bool {
	v.mustBe(KindBool)
	return v.b
}

// ToString extracts the string. Panics if Kind() != KindString.
func (v Value) ToString() string {
	v.mustBe(KindString)
	return v.s
}

// ToTuple extracts the element slice. Panics if Kind() != KindTuple.
func (v Value) ToTuple() []Value {
	v.mustBe(KindTuple)
	return v.tuple
}

func (v Value) mustBe(want Kind) {
	if v.kind != want {
		panic(fmt.Sprintf("value: tag mismatch: have %s, want %s", v.kind, want))
	}
}

// Equal reports nominal equality: same Kind and same underlying payload.
// Tensor equality is handle identity (shared, ref-counted); Tuple
// equality recurses element-wise.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindTensor:
		return v.tensor == other.tensor
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	case KindTuple:
		if len(v.tuple) != len(other.tuple) {
			return false
		}
		for i := range v.tuple {
			if !v.tuple[i].Equal(other.tuple[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a display form, used in logging and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindTensor:
		return fmt.Sprintf("Tensor(shape=%v, dtype=%s)", v.tensor.Shape(), v.tensor.DType())
	case KindInt:
		return fmt.Sprintf("Int(%d)", v.i)
	case KindFloat:
		return fmt.Sprintf("Float(%g)", v.f)
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.b)
	case KindString:
		return fmt.Sprintf("String(%q)", v.s)
	case KindTuple:
		return fmt.Sprintf("Tuple(len=%d)", len(v.tuple))
	default:
		return "Value(invalid)"
	}
}
