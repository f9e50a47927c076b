package ops

import (
	"github.com/gomlx/exceptions"

	"github.com/flint-ml/flint/internal/engine"
	"github.com/flint-ml/flint/internal/tensor"
)

// poolingBwd is a cached backward execution plan.
type poolingBwd struct {
	prim          *engine.PoolingBackward
	withWorkspace bool
}

// getPoolingBwd returns the cached backward plan for this invocation
// signature. The signature is keyed on the caller's tensors; diffDst is the
// (possibly reordered) gradient actually used to derive descriptors.
//
// On a miss the corresponding forward primitive is built first: the engine
// only constructs backward plans against their forward descriptor.
func (c *Context) getPoolingBwd(param *PoolingParam, inData, inGrad, outGrad, diffDst *tensor.RawTensor) *poolingBwd {
	sig := newSignature("pooling_bwd")
	sig.addParam(param)
	sig.addTensor(inData)
	sig.addTensor(inGrad)
	sig.addTensor(outGrad)
	key := sig.key()

	if bwd, ok := c.poolingBwds[key]; ok {
		return bwd
	}

	dataDesc, err := engine.DescOf(inData)
	if err != nil {
		exceptions.Panicf("pooling: describing input: %+v", err)
	}
	diffDesc, err := engine.DescOf(diffDst)
	if err != nil {
		exceptions.Panicf("pooling: describing gradient: %+v", err)
	}
	dstDesc := engine.MemDesc{
		Dims:   diffDesc.Dims,
		DType:  dataDesc.DType,
		Layout: engine.LayoutAny,
	}
	fwdPrim := buildPoolingFwdPrim(param, true, dataDesc, dstDesc)

	// The input-gradient descriptor comes from the tensor itself so the
	// primitive writes in its physical order.
	diffSrcDesc, err := engine.DescOf(inGrad)
	if err != nil {
		exceptions.Panicf("pooling: describing input gradient: %+v", err)
	}

	g := resolvePoolingGeometry(param, dataDesc.Dims[2], dataDesc.Dims[3])
	prim, err := engine.Get().NewPoolingBackward(engine.PoolingBackwardDesc{
		Alg:     poolingAlgorithm(param),
		DiffSrc: diffSrcDesc,
		DiffDst: diffDesc,
		Strides: g.strides(),
		Kernel:  g.kernel(),
		PadL:    g.padL(),
		PadR:    g.padR(),
	}, fwdPrim)
	if err != nil {
		exceptions.Panicf("pooling: building backward primitive: %+v", err)
	}

	bwd := &poolingBwd{
		prim:          prim,
		withWorkspace: requiresWorkspace(param),
	}
	c.poolingBwds[key] = bwd
	return bwd
}
