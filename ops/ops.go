// Copyright 2026 Flint ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops exposes Flint's operator execution layer. Operators are
// dispatched through a per-worker Context that owns the engine stream and
// the signature-keyed caches of compiled execution plans.
//
// # Basic Usage
//
//	import (
//	    "github.com/flint-ml/flint/ops"
//	    "github.com/flint-ml/flint/tensor"
//	)
//
//	func main() {
//	    ctx := ops.NewContext(false)
//	    param := &ops.PoolingParam{
//	        Kernel:   []int{2, 2},
//	        Stride:   []int{2, 2},
//	        PoolType: ops.MaxPool,
//	    }
//	    in, _ := tensor.NewRaw(tensor.Shape{1, 3, 4, 4}, tensor.Float32)
//	    out, _ := tensor.NewRaw(tensor.Shape{1, 3, 2, 2}, tensor.Float32)
//	    ops.PoolingForward(ctx, param, in, ops.ReqWrite, out, nil)
//	}
//
// Misconfigured operators (bad geometry, unsupported algorithms, missing
// required workspace) indicate a malformed model definition; they panic
// rather than returning an error.
package ops

import (
	"github.com/flint-ml/flint/internal/ops"
	"github.com/flint-ml/flint/tensor"
)

// Context is the per-worker operator execution context. It owns the plan
// caches; never share one across goroutines.
type Context = ops.Context

// PoolingParam carries the configuration of one pooling operator.
type PoolingParam = ops.PoolingParam

// PoolType selects the pooling reduction of a pooling operator.
type PoolType = ops.PoolType

// Supported pool types.
const (
	MaxPool = ops.MaxPool
	AvgPool = ops.AvgPool
)

// Convention selects how output extents are derived from input extents.
type Convention = ops.Convention

// Supported conventions.
const (
	ConventionValid = ops.ConventionValid
	ConventionFull  = ops.ConventionFull
)

// ReqType is the write-request mode for an operator output.
type ReqType = ops.ReqType

// Write-request modes.
const (
	ReqNull    = ops.ReqNull
	ReqWrite   = ops.ReqWrite
	ReqInplace = ops.ReqInplace
	ReqAdd     = ops.ReqAdd
)

// NewContext creates a worker-local operator context against the process
// engine.
func NewContext(isTrain bool) *Context {
	return ops.NewContext(isTrain)
}

// PoolingForward runs a forward 2-D pooling operator. workspace must carry
// the argmax workspace when the plan requires one (training-mode max
// pooling).
func PoolingForward(ctx *Context, param *PoolingParam, inData *tensor.RawTensor, req ReqType, outData, workspace *tensor.RawTensor) {
	ops.PoolingForward(ctx, param, inData, req, outData, workspace)
}

// PoolingBackward runs the backward pass of a 2-D pooling operator.
// A ReqNull request is a pure no-op.
func PoolingBackward(ctx *Context, param *PoolingParam, outGrad, inData, workspace *tensor.RawTensor, req ReqType, inGrad *tensor.RawTensor) {
	ops.PoolingBackward(ctx, param, outGrad, inData, workspace, req, inGrad)
}
