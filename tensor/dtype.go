// Package tensor implements the Tensor handle: shape, strides, dtype,
// memory format and an offset into a ref-counted Storage (spec.md §4.1).
package tensor

import "fmt"

// DType enumerates the scalar element types a Tensor's Storage may hold.
type DType int

const (
	DTypeUnknown DType = iota
	DTypeF32
	DTypeF64
	DTypeI8
	DTypeI16
	DTypeI32
	DTypeI64
	DTypeU8
	DTypeBool
)

// Size returns the element size in bytes. DTypeUnknown has no defined size.
func (d DType) Size() int64 {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF64:
		return 8
	case DTypeI8, DTypeU8, DTypeBool:
		return 1
	case DTypeI16:
		return 2
	case DTypeI32:
		return 4
	case DTypeI64:
		return 8
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case DTypeUnknown:
		return "Unknown"
	case DTypeF32:
		return "F32"
	case DTypeF64:
		return "F64"
	case DTypeI8:
		return "I8"
	case DTypeI16:
		return "I16"
	case DTypeI32:
		return "I32"
	case DTypeI64:
		return "I64"
	case DTypeU8:
		return "U8"
	case DTypeBool:
		return "Bool"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// Format enumerates the device memory layouts a Tensor may be stored in.
type Format int

const (
	FormatDefault Format = iota
	FormatND
	FormatFractalNZ
	FormatNC1HWC0
	FormatFractalZ
)

func (f Format) String() string {
	switch f {
	case FormatDefault:
		return "DEFAULT_FORMAT"
	case FormatND:
		return "ND"
	case FormatFractalNZ:
		return "FRACTAL_NZ"
	case FormatNC1HWC0:
		return "NC1HWC0"
	case FormatFractalZ:
		return "FRACTAL_Z"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}
