package ops

import (
	"github.com/gomlx/exceptions"

	"github.com/flint-ml/flint/internal/engine"
)

// geometry is the fully resolved window geometry of one pooling invocation:
// effective kernel, strides, and the four edge pads. Recomputed per call,
// never stored.
type geometry struct {
	kernelH, kernelW  int
	strideH, strideW  int
	padTop, padBottom int
	padLeft, padRight int
}

func (g geometry) strides() [2]int { return [2]int{g.strideH, g.strideW} }
func (g geometry) kernel() [2]int  { return [2]int{g.kernelH, g.kernelW} }
func (g geometry) padL() [2]int    { return [2]int{g.padTop, g.padLeft} }
func (g geometry) padR() [2]int    { return [2]int{g.padBottom, g.padRight} }

// fullPoolingPad grows the trailing padding so the sliding window covers the
// padded extent with no leftover partial step: afterwards
// (x + padl + padr' - k) mod s == 0.
func fullPoolingPad(x, padl, padr, k, s int) int {
	if r := (x + padl + padr - k) % s; r != 0 {
		return padr + s - r
	}
	return padr
}

// resolvePoolingGeometry derives the effective geometry from operator
// parameters and the input's spatial extents. Misconfiguration is fatal.
func resolvePoolingGeometry(param *PoolingParam, inH, inW int) geometry {
	// Rank is checked even under GlobalPool, where the kernel extents are
	// about to be overridden.
	if len(param.Kernel) != 2 {
		exceptions.Panicf("pooling: only 2-D pooling is implemented, got %d-d kernel", len(param.Kernel))
	}

	var g geometry
	if param.GlobalPool {
		g.kernelH, g.kernelW = inH, inW
	} else {
		g.kernelH, g.kernelW = param.Kernel[0], param.Kernel[1]
	}
	if g.kernelH <= 0 || g.kernelW <= 0 {
		exceptions.Panicf("pooling: filter dimensions cannot be zero (%dx%d)", g.kernelH, g.kernelW)
	}

	g.strideH, g.strideW = param.stride(0), param.stride(1)
	g.padTop, g.padBottom = param.pad(0), param.pad(0)
	g.padLeft, g.padRight = param.pad(1), param.pad(1)

	if param.Convention == ConventionFull {
		g.padBottom = fullPoolingPad(inH, g.padTop, g.padBottom, g.kernelH, g.strideH)
		g.padRight = fullPoolingPad(inW, g.padLeft, g.padRight, g.kernelW, g.strideW)
	}

	if param.GlobalPool {
		// The single window spans the whole input.
		g.padTop, g.padBottom, g.padLeft, g.padRight = 0, 0, 0, 0
		g.strideH, g.strideW = 1, 1
	}

	if g.padTop != 0 || g.padLeft != 0 {
		if param.PoolType != AvgPool && param.PoolType != MaxPool {
			exceptions.Panicf("pooling: padding implemented only for average and max pooling")
		}
		if g.padLeft >= g.kernelW || g.padTop >= g.kernelH {
			exceptions.Panicf("pooling: padding (%d, %d) must be strictly less than kernel (%d, %d)",
				g.padTop, g.padLeft, g.kernelH, g.kernelW)
		}
	}

	return g
}

// poolingAlgorithm derives the engine algorithm from the pool type and the
// count-include-pad flag.
func poolingAlgorithm(param *PoolingParam) engine.Algorithm {
	switch param.PoolType {
	case MaxPool:
		return engine.PoolingMax
	case AvgPool:
		if param.CountIncludePad != nil && !*param.CountIncludePad {
			return engine.PoolingAvgExcludePadding
		}
		return engine.PoolingAvgIncludePadding
	default:
		exceptions.Panicf("pooling: unknown pooling method %d", param.PoolType)
		return engine.PoolingMax
	}
}
