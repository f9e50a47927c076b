// Copyright 2026 Flint ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/flint-ml/flint/internal/tensor"
)

// RawTensor is the low-level tensor handle.
//
// RawTensor provides:
//   - Shape, type and layout information via Shape(), DType(), Layout()
//   - Type-safe data access via AsFloat32(), AsInt32(), etc.
//   - Views via Narrow() and materialization via ReorderDefault()
//   - Reference counting for buffer sharing between views
type RawTensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// DataType represents runtime type information for tensors.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Float16 = tensor.Float16
	Int32   = tensor.Int32
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// Layout identifies the memory format of a tensor's backing buffer.
type Layout = tensor.Layout

// Supported layouts.
const (
	NCHW    = tensor.NCHW
	NCHW8c  = tensor.NCHW8c
	Strided = tensor.Strided
)

// NewRaw creates a new dense NCHW tensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromFloat32 creates a dense NCHW Float32 tensor initialized from data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}
