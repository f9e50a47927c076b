package ops

import (
	"github.com/gomlx/exceptions"

	"github.com/flint-ml/flint/internal/engine"
	"github.com/flint-ml/flint/internal/tensor"
)

// PoolingForward runs a forward 2-D pooling operator over inData, writing
// into outData per req. workspace must carry the argmax workspace when the
// plan requires one (training-mode max pooling); its absence is fatal.
//
// Inputs in a non-materialized (view) form are first reordered into the
// default layout; the copy happens once, plans built afterwards see the
// materialized descriptor.
func PoolingForward(ctx *Context, param *PoolingParam, inData *tensor.RawTensor, req ReqType, outData, workspace *tensor.RawTensor) {
	inBuf := inData
	if inData.IsView() {
		inBuf = inData.ReorderDefault()
	}

	fwd := ctx.getPoolingFwd(param, inBuf, outData)
	fwd.execute(ctx, inBuf, req, outData, workspace)
}

// PoolingBackward runs the backward pass of a 2-D pooling operator: routes
// outGrad through the pooling window geometry into inGrad per req.
//
// A ReqNull request is a declared don't-care and returns without any plan
// lookup, construction, or buffer mutation. A required-but-missing workspace
// is passed through silently: the gradient routing is then unavailable and
// the engine zero-fills the input gradient.
func PoolingBackward(ctx *Context, param *PoolingParam, outGrad, inData, workspace *tensor.RawTensor, req ReqType, inGrad *tensor.RawTensor) {
	if req == ReqNull {
		return
	}

	// The engine requires layout consistency between the passes: when the
	// forward input was not in the engine's native layout but the incoming
	// gradient is, the gradient is reordered to the default layout first.
	diffDst := outGrad
	if !inData.IsNative() && outGrad.IsNative() {
		diffDst = outGrad.ReorderDefault()
	}
	if diffDst.IsView() {
		diffDst = diffDst.ReorderDefault()
	}

	bwd := ctx.getPoolingBwd(param, inData, inGrad, outGrad, diffDst)

	diffDstMem, err := engine.MemoryOf(diffDst)
	if err != nil {
		exceptions.Panicf("pooling: binding gradient: %+v", err)
	}
	out := requestOutput(inGrad, bwd.prim.DiffSrcDesc(), req)

	args := engine.Args{
		engine.ArgDiffDst: diffDstMem,
		engine.ArgDiffSrc: out.mem,
	}
	if bwd.withWorkspace && workspace != nil {
		wsMem, err := engine.MemoryOf(workspace)
		if err != nil {
			exceptions.Panicf("pooling: binding workspace: %+v", err)
		}
		args[engine.ArgWorkspace] = wsMem
	}

	ctx.stream.RegisterPrimArgs(bwd.prim, args)
	if err := ctx.stream.Submit(); err != nil {
		exceptions.Panicf("pooling: %+v", err)
	}
	commitOutput(out)
}
