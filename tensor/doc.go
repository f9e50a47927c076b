// Copyright 2026 Flint ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor handles the Flint operator layer works
// with: shapes, data types, memory layouts and raw buffers.
//
// # Overview
//
// Flint tensors are deliberately thin. They carry no arithmetic; all
// computation happens inside compiled engine primitives. What this package
// gives you:
//   - Shape and runtime type information (Shape, DataType)
//   - Memory layouts: dense NCHW, the engine's blocked nChw8c, strided views
//   - Reference-counted buffers shared between views
//   - Reordering between layouts (the copies the engine needs before binding)
//
// # Basic Usage
//
//	import "github.com/flint-ml/flint/tensor"
//
//	func main() {
//	    x, _ := tensor.NewRaw(tensor.Shape{1, 3, 32, 32}, tensor.Float32)
//	    data := x.AsFloat32() // fill in place
//	    _ = data
//	}
//
// # Supported Data Types
//
//   - float32, float64, float16 (floating-point)
//   - int32 (workspace indices)
//   - uint8, bool (masks and auxiliary data)
package tensor
