package ops

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/flint-ml/flint/internal/engine"
	"github.com/flint-ml/flint/internal/tensor"
)

// poolingFwd is a cached forward execution plan: the compiled primitive plus
// the flags that shaped it. Plans are owned by their cache entry; executions
// borrow the primitive by reference.
type poolingFwd struct {
	prim          *engine.PoolingForward
	withWorkspace bool
	isTrain       bool
}

// buildPoolingFwdPrim resolves geometry and compiles the forward primitive.
// Also serves as the hint builder for backward plans, which the engine
// requires to be constructed against their forward descriptor.
func buildPoolingFwdPrim(param *PoolingParam, isTrain bool, srcDesc, dstDesc engine.MemDesc) *engine.PoolingForward {
	g := resolvePoolingGeometry(param, srcDesc.Dims[2], srcDesc.Dims[3])
	alg := poolingAlgorithm(param)

	// Average pooling has no state distinguishing training from inference,
	// so its plans are always built in inference mode.
	prop := engine.ForwardInference
	if isTrain && alg == engine.PoolingMax {
		prop = engine.ForwardTraining
	}
	if isTrain && prop == engine.ForwardInference {
		klog.Infof("pooling: training requested but %s pooling builds an inference-mode plan", alg)
	}

	prim, err := engine.Get().NewPoolingForward(engine.PoolingForwardDesc{
		Prop:    prop,
		Alg:     alg,
		Src:     srcDesc,
		Dst:     dstDesc,
		Strides: g.strides(),
		Kernel:  g.kernel(),
		PadL:    g.padL(),
		PadR:    g.padR(),
	})
	if err != nil {
		exceptions.Panicf("pooling: building forward primitive: %+v", err)
	}
	return prim
}

// getPoolingFwd returns the cached forward plan for this invocation
// signature, building and inserting it on first use.
func (c *Context) getPoolingFwd(param *PoolingParam, data, output *tensor.RawTensor) *poolingFwd {
	withWorkspace := c.IsTrain && requiresWorkspace(param)

	sig := newSignature("pooling_fwd")
	sig.addParam(param)
	sig.addBool(c.IsTrain)
	sig.addBool(withWorkspace)
	sig.addTensor(data)
	sig.addTensor(output)
	key := sig.key()

	if fwd, ok := c.poolingFwds[key]; ok {
		return fwd
	}

	srcDesc, err := engine.DescOf(data)
	if err != nil {
		exceptions.Panicf("pooling: describing input: %+v", err)
	}
	// The destination descriptor comes from the output tensor itself, so a
	// blocked-layout output compiles a blocked plan and the primitive writes
	// in the buffer's physical order.
	dstDesc, err := engine.DescOf(output)
	if err != nil {
		exceptions.Panicf("pooling: describing output: %+v", err)
	}

	fwd := &poolingFwd{
		prim:          buildPoolingFwdPrim(param, c.IsTrain, srcDesc, dstDesc),
		withWorkspace: withWorkspace,
		isTrain:       c.IsTrain,
	}
	c.poolingFwds[key] = fwd
	return fwd
}

// execute binds tensors to the plan and submits it on the worker's stream.
// The stream is drained before returning; the request mode is honored by the
// commit step.
func (f *poolingFwd) execute(c *Context, inData *tensor.RawTensor, req ReqType, outData, workspace *tensor.RawTensor) {
	if req == ReqNull {
		return
	}

	srcMem, err := engine.MemoryOf(inData)
	if err != nil {
		exceptions.Panicf("pooling: binding input: %+v", err)
	}
	out := requestOutput(outData, f.prim.DstDesc(), req)

	args := engine.Args{
		engine.ArgSrc: srcMem,
		engine.ArgDst: out.mem,
	}
	if f.withWorkspace {
		if workspace == nil {
			exceptions.Panicf("pooling: incorrect workspace input: required but not supplied")
		}
		wsMem, err := engine.MemoryOf(workspace)
		if err != nil {
			exceptions.Panicf("pooling: binding workspace: %+v", err)
		}
		args[engine.ArgWorkspace] = wsMem
	}

	c.stream.RegisterPrimArgs(f.prim, args)
	if err := c.stream.Submit(); err != nil {
		exceptions.Panicf("pooling: %+v", err)
	}
	commitOutput(out)
}
