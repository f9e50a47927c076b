package engine

import (
	"math"
	"unsafe"

	"github.com/x448/float16"

	"github.com/flint-ml/flint/internal/parallel"
	"github.com/flint-ml/flint/internal/tensor"
)

// poolFloat constrains the element types pooling kernels compute in.
// Float16 tensors are widened to float32 before dispatch.
type poolFloat interface {
	~float32 | ~float64
}

// poolGeom is the fully resolved window geometry a kernel iterates.
type poolGeom struct {
	n, c   int // batch, channels
	h, w   int // source spatial extents
	oh, ow int // destination spatial extents
	kh, kw int
	sh, sw int
	pt, pl int // leading pads (top, left)

	srcLayout, dstLayout LayoutTag
}

func poolingGeomOf(src, dst MemDesc, strides, kernel, padL [2]int) poolGeom {
	return poolGeom{
		n: src.Dims[0], c: src.Dims[1],
		h: src.Dims[2], w: src.Dims[3],
		oh: dst.Dims[2], ow: dst.Dims[3],
		kh: kernel[0], kw: kernel[1],
		sh: strides[0], sw: strides[1],
		pt: padL[0], pl: padL[1],
		srcLayout: src.Layout,
		dstLayout: dst.Layout,
	}
}

// planeBase locates the (n, c) plane inside a buffer. Within a plane the
// element at (h, w) lives at base + (h*W + w) * step.
func planeBase(layout LayoutTag, n, c, channels, height, width int) (base, step int) {
	if layout == LayoutBlocked8c {
		blocks := channels / 8
		return ((n*blocks+c/8)*height*width)*8 + c%8, 8
	}
	return (n*channels + c) * height * width, 1
}

func runPoolingForward(e *Engine, alg Algorithm, src, dst *Memory, ws []int32, g poolGeom) {
	switch src.Desc.DType {
	case tensor.Float64:
		poolForward(e, alg,
			bytesAsFloat64(src.Data, src.Desc.NumElements()),
			bytesAsFloat64(dst.Data, dst.Desc.NumElements()),
			ws, g)
	case tensor.Float16:
		s := f16ToF32(src.Data, src.Desc.NumElements())
		d := make([]float32, dst.Desc.NumElements())
		poolForward(e, alg, s, d, ws, g)
		f32ToF16(d, dst.Data)
	default:
		poolForward(e, alg,
			bytesAsFloat32(src.Data, src.Desc.NumElements()),
			bytesAsFloat32(dst.Data, dst.Desc.NumElements()),
			ws, g)
	}
}

func runPoolingBackward(e *Engine, alg Algorithm, withWorkspace bool, diffDst, diffSrc *Memory, ws []int32, g poolGeom) {
	switch diffDst.Desc.DType {
	case tensor.Float64:
		poolBackward(e, alg, withWorkspace,
			bytesAsFloat64(diffDst.Data, diffDst.Desc.NumElements()),
			bytesAsFloat64(diffSrc.Data, diffSrc.Desc.NumElements()),
			ws, g)
	case tensor.Float16:
		dd := f16ToF32(diffDst.Data, diffDst.Desc.NumElements())
		ds := make([]float32, diffSrc.Desc.NumElements())
		poolBackward(e, alg, withWorkspace, dd, ds, ws, g)
		f32ToF16(ds, diffSrc.Data)
	default:
		poolBackward(e, alg, withWorkspace,
			bytesAsFloat32(diffDst.Data, diffDst.Desc.NumElements()),
			bytesAsFloat32(diffSrc.Data, diffSrc.Desc.NumElements()),
			ws, g)
	}
}

func poolForward[T poolFloat](e *Engine, alg Algorithm, src, dst []T, ws []int32, g poolGeom) {
	switch alg {
	case PoolingMax:
		poolMaxForward(e, src, dst, ws, g)
	case PoolingAvgIncludePadding:
		poolAvgForward(e, src, dst, g, true)
	case PoolingAvgExcludePadding:
		poolAvgForward(e, src, dst, g, false)
	}
}

func poolBackward[T poolFloat](e *Engine, alg Algorithm, withWorkspace bool, diffDst, diffSrc []T, ws []int32, g poolGeom) {
	// Kernels own the full write: diff_src is zeroed before scattering so
	// request-mode accumulation can be layered on top by the caller.
	for i := range diffSrc {
		diffSrc[i] = 0
	}
	switch alg {
	case PoolingMax:
		if withWorkspace && ws == nil {
			return // no argmax routing available
		}
		poolMaxBackward(e, diffDst, diffSrc, ws, g)
	case PoolingAvgIncludePadding:
		poolAvgBackward(e, diffDst, diffSrc, g, true)
	case PoolingAvgExcludePadding:
		poolAvgBackward(e, diffDst, diffSrc, g, false)
	}
}

// poolMaxForward takes the maximum over each (possibly padded) window.
// Padded positions never contribute. When a workspace is bound, the in-plane
// linear index of each maximum is recorded for the backward pass.
func poolMaxForward[T poolFloat](e *Engine, src, dst []T, ws []int32, g poolGeom) {
	lowest := T(math.Inf(-1))
	parallel.ForPlanes(g.n, g.c, func(n, c int) {
		sb, ss := planeBase(g.srcLayout, n, c, g.c, g.h, g.w)
		db, ds := planeBase(g.dstLayout, n, c, g.c, g.oh, g.ow)
		wb := (n*g.c + c) * g.oh * g.ow

		for oh := 0; oh < g.oh; oh++ {
			hStart := oh*g.sh - g.pt
			for ow := 0; ow < g.ow; ow++ {
				wStart := ow*g.sw - g.pl

				best := lowest
				bestIdx := int32(-1)
				for kh := 0; kh < g.kh; kh++ {
					h := hStart + kh
					if h < 0 || h >= g.h {
						continue
					}
					row := h * g.w
					for kw := 0; kw < g.kw; kw++ {
						w := wStart + kw
						if w < 0 || w >= g.w {
							continue
						}
						if v := src[sb+(row+w)*ss]; v > best {
							best = v
							bestIdx = int32(row + w)
						}
					}
				}

				dst[db+(oh*g.ow+ow)*ds] = best
				if ws != nil {
					ws[wb+oh*g.ow+ow] = bestIdx
				}
			}
		}
	}, e.fanout)
}

// poolAvgForward averages each window. With includePad the divisor is the
// full kernel area (padded cells count as zeros); without it only in-bounds
// cells divide.
func poolAvgForward[T poolFloat](e *Engine, src, dst []T, g poolGeom, includePad bool) {
	parallel.ForPlanes(g.n, g.c, func(n, c int) {
		sb, ss := planeBase(g.srcLayout, n, c, g.c, g.h, g.w)
		db, ds := planeBase(g.dstLayout, n, c, g.c, g.oh, g.ow)

		for oh := 0; oh < g.oh; oh++ {
			hStart := oh*g.sh - g.pt
			for ow := 0; ow < g.ow; ow++ {
				wStart := ow*g.sw - g.pl

				var sum T
				count := 0
				for kh := 0; kh < g.kh; kh++ {
					h := hStart + kh
					if h < 0 || h >= g.h {
						continue
					}
					row := h * g.w
					for kw := 0; kw < g.kw; kw++ {
						w := wStart + kw
						if w < 0 || w >= g.w {
							continue
						}
						sum += src[sb+(row+w)*ss]
						count++
					}
				}

				div := count
				if includePad {
					div = g.kh * g.kw
				}
				var avg T
				if div > 0 {
					avg = sum / T(div)
				}
				dst[db+(oh*g.ow+ow)*ds] = avg
			}
		}
	}, e.fanout)
}

// poolMaxBackward routes each output gradient to the position that won the
// forward max, read from the workspace. Planes are disjoint, so the scatter
// parallelizes over them safely.
func poolMaxBackward[T poolFloat](e *Engine, diffDst, diffSrc []T, ws []int32, g poolGeom) {
	parallel.ForPlanes(g.n, g.c, func(n, c int) {
		sb, ss := planeBase(g.srcLayout, n, c, g.c, g.h, g.w)
		db, ds := planeBase(g.dstLayout, n, c, g.c, g.oh, g.ow)
		wb := (n*g.c + c) * g.oh * g.ow

		for o := 0; o < g.oh*g.ow; o++ {
			idx := ws[wb+o]
			if idx < 0 {
				continue
			}
			diffSrc[sb+int(idx)*ss] += diffDst[db+o*ds]
		}
	}, e.fanout)
}

// poolAvgBackward spreads each output gradient uniformly over its window's
// in-bounds cells, divided by the same divisor the forward pass used.
func poolAvgBackward[T poolFloat](e *Engine, diffDst, diffSrc []T, g poolGeom, includePad bool) {
	parallel.ForPlanes(g.n, g.c, func(n, c int) {
		sb, ss := planeBase(g.srcLayout, n, c, g.c, g.h, g.w)
		db, ds := planeBase(g.dstLayout, n, c, g.c, g.oh, g.ow)

		for oh := 0; oh < g.oh; oh++ {
			hStart := oh*g.sh - g.pt
			for ow := 0; ow < g.ow; ow++ {
				wStart := ow*g.sw - g.pl

				count := 0
				if !includePad {
					for kh := 0; kh < g.kh; kh++ {
						h := hStart + kh
						if h < 0 || h >= g.h {
							continue
						}
						for kw := 0; kw < g.kw; kw++ {
							if w := wStart + kw; w >= 0 && w < g.w {
								count++
							}
						}
					}
				} else {
					count = g.kh * g.kw
				}
				if count == 0 {
					continue
				}
				grad := diffDst[db+(oh*g.ow+ow)*ds] / T(count)

				for kh := 0; kh < g.kh; kh++ {
					h := hStart + kh
					if h < 0 || h >= g.h {
						continue
					}
					row := h * g.w
					for kw := 0; kw < g.kw; kw++ {
						w := wStart + kw
						if w < 0 || w >= g.w {
							continue
						}
						diffSrc[sb+(row+w)*ss] += grad
					}
				}
			}
		}
	}, e.fanout)
}

// Reinterpret helpers for bound buffers.

func bytesAsFloat32(b []byte, n int) []float32 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length checked at bind time
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

func bytesAsFloat64(b []byte, n int) []float64 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length checked at bind time
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), n)
}

func bytesAsInt32(b []byte, n int) []int32 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length checked at bind time
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), n)
}

func bytesAsUint16(b []byte, n int) []uint16 {
	//nolint:gosec // unsafe.Slice for zero-copy access, length checked at bind time
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), n)
}

// f16ToF32 widens a half-precision buffer into a fresh float32 slice.
func f16ToF32(b []byte, n int) []float32 {
	u := bytesAsUint16(b, n)
	out := make([]float32, n)
	for i, v := range u {
		out[i] = float16.Float16(v).Float32()
	}
	return out
}

// f32ToF16 narrows float32 results back into a half-precision buffer.
func f32ToF16(src []float32, b []byte) {
	u := bytesAsUint16(b, len(src))
	for i, v := range src {
		u[i] = uint16(float16.Fromfloat32(v))
	}
}
