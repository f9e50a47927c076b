package ops

import (
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/x448/float16"

	"github.com/flint-ml/flint/internal/engine"
	"github.com/flint-ml/flint/internal/tensor"
)

// outputRequest is the write-mode-aware binding of an operator output.
// ReqWrite and ReqInplace bind the output buffer directly; ReqAdd binds
// engine scratch that commitOutput later accumulates into the real output.
type outputRequest struct {
	req    ReqType
	target *tensor.RawTensor
	mem    *engine.Memory
	temp   *engine.Memory
}

func requestOutput(t *tensor.RawTensor, desc engine.MemDesc, req ReqType) outputRequest {
	out := outputRequest{req: req, target: t}
	switch req {
	case ReqWrite, ReqInplace:
		mem, err := engine.MemoryOf(t)
		if err != nil {
			exceptions.Panicf("pooling: binding output: %+v", err)
		}
		out.mem = mem
	case ReqAdd:
		out.temp = engine.Get().NewScratch(desc)
		out.mem = out.temp
	case ReqNull:
		// Declared don't-care; nothing is bound and nothing is committed.
	default:
		exceptions.Panicf("pooling: unknown write-request mode %d", req)
	}
	return out
}

// commitOutput finalizes the write request after the stream has drained.
// Only ReqAdd has work left: accumulate the scratch result into the target.
func commitOutput(o outputRequest) {
	if o.req != ReqAdd {
		return
	}
	n := o.target.NumElements()
	switch o.target.DType() {
	case tensor.Float32:
		dst := o.target.AsFloat32()
		//nolint:gosec // unsafe.Slice for zero-copy scratch access, sized by NumElements
		src := unsafe.Slice((*float32)(unsafe.Pointer(&o.temp.Data[0])), n)
		for i := range dst {
			dst[i] += src[i]
		}
	case tensor.Float64:
		dst := o.target.AsFloat64()
		//nolint:gosec // unsafe.Slice for zero-copy scratch access, sized by NumElements
		src := unsafe.Slice((*float64)(unsafe.Pointer(&o.temp.Data[0])), n)
		for i := range dst {
			dst[i] += src[i]
		}
	case tensor.Float16:
		dst := o.target.AsFloat16()
		//nolint:gosec // unsafe.Slice for zero-copy scratch access, sized by NumElements
		src := unsafe.Slice((*float16.Float16)(unsafe.Pointer(&o.temp.Data[0])), n)
		for i := range dst {
			dst[i] = float16.Fromfloat32(dst[i].Float32() + src[i].Float32())
		}
	default:
		exceptions.Panicf("pooling: cannot accumulate into %s output", o.target.DType())
	}
}
