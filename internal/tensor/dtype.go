// Package tensor provides the tensor handles consumed by the Flint operator
// core: shapes, data types, memory layouts and raw buffers. It deliberately
// carries no tensor algebra; computation belongs to the engine's compiled
// primitives.
package tensor

import "github.com/x448/float16"

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
	Float16
	Int32
	Uint8
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Float16:
		return 2
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Float16FromFloat32 converts a float32 to the IEEE 754 half-precision
// representation stored in Float16 tensors.
func Float16FromFloat32(v float32) float16.Float16 {
	return float16.Fromfloat32(v)
}
