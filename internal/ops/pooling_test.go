package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/engine"
	"github.com/flint-ml/flint/internal/tensor"
)

// seqTensor creates a Float32 NCHW tensor filled with 1..n.
func seqTensor(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float32)
	require.NoError(t, err)
	data := raw.AsFloat32()
	for i := range data {
		data[i] = float32(i + 1)
	}
	return raw
}

func newTensor(t *testing.T, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, dtype)
	require.NoError(t, err)
	return raw
}

func maxParam() *PoolingParam {
	return &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		PoolType: MaxPool,
	}
}

func TestPoolingForward_Max(t *testing.T) {
	ctx := NewContext(false)
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)

	PoolingForward(ctx, maxParam(), in, ReqWrite, out, nil)

	assert.Equal(t, []float32{6, 8, 14, 16}, out.AsFloat32())
}

func TestPoolingForward_AvgPadding(t *testing.T) {
	param := &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		Pad:      []int{1, 1},
		PoolType: AvgPool,
	}
	in := seqTensor(t, tensor.Shape{1, 1, 2, 2}) // [1 2; 3 4]
	// (2 + 1 + 1 - 2)/2 + 1 = 2 output positions per axis; every window
	// holds exactly one in-bounds cell.
	shape := tensor.Shape{1, 1, 2, 2}

	t.Run("include padding", func(t *testing.T) {
		ctx := NewContext(false)
		out := newTensor(t, shape, tensor.Float32)
		PoolingForward(ctx, param, in, ReqWrite, out, nil)
		assert.Equal(t, []float32{0.25, 0.5, 0.75, 1}, out.AsFloat32())
	})

	t.Run("exclude padding", func(t *testing.T) {
		ctx := NewContext(false)
		excl := &PoolingParam{
			Kernel:          param.Kernel,
			Stride:          param.Stride,
			Pad:             param.Pad,
			PoolType:        AvgPool,
			CountIncludePad: boolPtr(false),
		}
		out := newTensor(t, shape, tensor.Float32)
		PoolingForward(ctx, excl, in, ReqWrite, out, nil)
		assert.Equal(t, []float32{1, 2, 3, 4}, out.AsFloat32())
	})
}

func TestPoolingForward_GlobalPool(t *testing.T) {
	ctx := NewContext(false)
	param := &PoolingParam{
		// Kernel extents are overridden by the input's under GlobalPool,
		// but the field must still be rank 2.
		Kernel:     []int{1, 1},
		PoolType:   MaxPool,
		GlobalPool: true,
	}
	in := seqTensor(t, tensor.Shape{1, 2, 3, 3})
	out := newTensor(t, tensor.Shape{1, 2, 1, 1}, tensor.Float32)

	PoolingForward(ctx, param, in, ReqWrite, out, nil)

	assert.Equal(t, []float32{9, 18}, out.AsFloat32())
}

func TestPoolingForward_FullConvention(t *testing.T) {
	ctx := NewContext(false)
	param := &PoolingParam{
		Kernel:     []int{3, 3},
		Stride:     []int{2, 2},
		PoolType:   MaxPool,
		Convention: ConventionFull,
	}
	in := seqTensor(t, tensor.Shape{1, 1, 8, 8})
	// Full convention grows the trailing pads to 1: (8+1-3)/2+1 = 4.
	out := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32)

	PoolingForward(ctx, param, in, ReqWrite, out, nil)

	got := out.AsFloat32()
	// First window: rows 0..2, cols 0..2 -> max at (2,2).
	assert.Equal(t, float32(19), got[0])
	// Last column window runs past the edge; only cols 6..7 are in bounds.
	assert.Equal(t, float32(24), got[3])
	// Bottom-right window covers rows/cols 6..7.
	assert.Equal(t, float32(64), got[15])
}

func TestPoolingForward_PlanReuse(t *testing.T) {
	ctx := NewContext(false)
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)

	before := engine.Get().PrimitiveBuilds()
	PoolingForward(ctx, maxParam(), in, ReqWrite, out, nil)
	assert.Equal(t, before+1, engine.Get().PrimitiveBuilds(), "first call compiles the plan")

	// Structurally equal signature: fresh tensors, fresh parameter value.
	in2 := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out2 := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	PoolingForward(ctx, maxParam(), in2, ReqWrite, out2, nil)
	assert.Equal(t, before+1, engine.Get().PrimitiveBuilds(), "second call reuses the plan")

	fwds, _ := ctx.CachedPlans()
	assert.Equal(t, 1, fwds)
}

func TestPoolingForward_DistinctShapesDistinctPlans(t *testing.T) {
	ctx := NewContext(false)

	before := engine.Get().PrimitiveBuilds()
	in4 := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out4 := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	PoolingForward(ctx, maxParam(), in4, ReqWrite, out4, nil)

	in6 := seqTensor(t, tensor.Shape{1, 1, 6, 6})
	out6 := newTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float32)
	PoolingForward(ctx, maxParam(), in6, ReqWrite, out6, nil)

	assert.Equal(t, before+2, engine.Get().PrimitiveBuilds())
	fwds, _ := ctx.CachedPlans()
	assert.Equal(t, 2, fwds)
}

func TestPoolingForward_TrainingWorkspace(t *testing.T) {
	ctx := NewContext(true)
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)

	t.Run("missing workspace is fatal", func(t *testing.T) {
		require.Panics(t, func() {
			PoolingForward(ctx, maxParam(), in, ReqWrite, out, nil)
		})
	})

	t.Run("argmax recorded", func(t *testing.T) {
		ws := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Int32)
		PoolingForward(ctx, maxParam(), in, ReqWrite, out, ws)

		assert.Equal(t, []float32{6, 8, 14, 16}, out.AsFloat32())
		// In-plane linear indices of each window maximum.
		assert.Equal(t, []int32{5, 7, 13, 15}, ws.AsInt32())
	})
}

func TestPoolingBackward_MaxRoutesToArgmax(t *testing.T) {
	ctx := NewContext(true)
	param := maxParam()
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	ws := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Int32)
	PoolingForward(ctx, param, in, ReqWrite, out, ws)

	outGrad, err := tensor.FromFloat32([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)
	inGrad := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32)

	PoolingBackward(ctx, param, outGrad, in, ws, ReqWrite, inGrad)

	want := make([]float32, 16)
	want[5], want[7], want[13], want[15] = 1, 2, 3, 4
	assert.Equal(t, want, inGrad.AsFloat32())
}

func TestPoolingBackward_PlanReuse(t *testing.T) {
	ctx := NewContext(true)
	param := maxParam()
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	ws := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Int32)
	PoolingForward(ctx, param, in, ReqWrite, out, ws)

	outGrad := seqTensor(t, tensor.Shape{1, 1, 2, 2})
	inGrad := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32)

	before := engine.Get().PrimitiveBuilds()
	PoolingBackward(ctx, param, outGrad, in, ws, ReqWrite, inGrad)
	// A backward miss compiles the forward hint plus the backward plan.
	assert.Equal(t, before+2, engine.Get().PrimitiveBuilds())

	PoolingBackward(ctx, param, outGrad, in, ws, ReqWrite, inGrad)
	assert.Equal(t, before+2, engine.Get().PrimitiveBuilds(), "second call reuses the plan")

	_, bwds := ctx.CachedPlans()
	assert.Equal(t, 1, bwds)
}

func TestPoolingBackward_ReqNullIsPureNoOp(t *testing.T) {
	ctx := NewContext(true)
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	outGrad := seqTensor(t, tensor.Shape{1, 1, 2, 2})
	inGrad := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	sentinel := append([]float32(nil), inGrad.AsFloat32()...)

	before := engine.Get().PrimitiveBuilds()
	PoolingBackward(ctx, maxParam(), outGrad, in, nil, ReqNull, inGrad)

	assert.Equal(t, before, engine.Get().PrimitiveBuilds(), "no plan construction")
	fwds, bwds := ctx.CachedPlans()
	assert.Zero(t, fwds)
	assert.Zero(t, bwds, "no plan lookup or insertion")
	assert.Equal(t, sentinel, inGrad.AsFloat32(), "no buffer mutation")
}

func TestPoolingBackward_MissingWorkspaceZeroFills(t *testing.T) {
	ctx := NewContext(true)
	param := maxParam()
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	outGrad := seqTensor(t, tensor.Shape{1, 1, 2, 2})
	inGrad := seqTensor(t, tensor.Shape{1, 1, 4, 4}) // pre-filled, must be cleared

	// Max pooling requires the argmax workspace; passing none is accepted
	// and the routing degrades to a zeroed input gradient.
	PoolingBackward(ctx, param, outGrad, in, nil, ReqWrite, inGrad)

	assert.Equal(t, make([]float32, 16), inGrad.AsFloat32())
}

func TestPoolingBackward_Avg(t *testing.T) {
	ctx := NewContext(true)
	param := &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		PoolType: AvgPool,
	}
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	outGrad, err := tensor.FromFloat32([]float32{4, 4, 4, 4}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)
	inGrad := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float32)

	// Average pooling needs no workspace on the backward pass.
	PoolingBackward(ctx, param, outGrad, in, nil, ReqWrite, inGrad)

	want := make([]float32, 16)
	for i := range want {
		want[i] = 1 // every input cell sits in exactly one 2x2 window
	}
	assert.Equal(t, want, inGrad.AsFloat32())
}

func TestPoolingForward_ReqAdd(t *testing.T) {
	ctx := NewContext(false)
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)

	PoolingForward(ctx, maxParam(), in, ReqWrite, out, nil)
	PoolingForward(ctx, maxParam(), in, ReqAdd, out, nil)

	assert.Equal(t, []float32{12, 16, 28, 32}, out.AsFloat32())
}

func TestPoolingForward_ViewInputMaterialized(t *testing.T) {
	ctx := NewContext(false)
	base := seqTensor(t, tensor.Shape{1, 1, 6, 4})
	view, err := base.Narrow(2, 1, 4) // rows 1..4: a strided view
	require.NoError(t, err)
	require.True(t, view.IsView())

	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	PoolingForward(ctx, maxParam(), view, ReqWrite, out, nil)

	// Same result as pooling the materialized copy.
	want := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	PoolingForward(ctx, maxParam(), view.ReorderDefault(), ReqWrite, want, nil)
	assert.Equal(t, want.AsFloat32(), out.AsFloat32())
}

func TestPoolingForward_NativeOutput(t *testing.T) {
	in := seqTensor(t, tensor.Shape{1, 8, 4, 4})

	want := newTensor(t, tensor.Shape{1, 8, 2, 2}, tensor.Float32)
	PoolingForward(NewContext(false), maxParam(), in, ReqWrite, want, nil)

	// A blocked-layout output compiles a blocked plan; the result must read
	// back identically once reordered to the default layout.
	nativeOut, err := newTensor(t, tensor.Shape{1, 8, 2, 2}, tensor.Float32).ToNative()
	require.NoError(t, err)
	PoolingForward(NewContext(false), maxParam(), in, ReqWrite, nativeOut, nil)

	assert.Equal(t, want.AsFloat32(), nativeOut.ReorderDefault().AsFloat32())
}

func TestPoolingForward_MalformedOutput(t *testing.T) {
	ctx := NewContext(false)
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})

	out, err := tensor.NewRaw(tensor.Shape{1, 2, 2}, tensor.Float32)
	require.NoError(t, err)
	require.Panics(t, func() {
		PoolingForward(ctx, maxParam(), in, ReqWrite, out, nil)
	})
}

func TestPoolingBackward_MalformedInputGradient(t *testing.T) {
	ctx := NewContext(true)
	param := &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		PoolType: AvgPool,
	}
	in := seqTensor(t, tensor.Shape{1, 1, 4, 4})
	outGrad := seqTensor(t, tensor.Shape{1, 1, 2, 2})

	inGrad, err := tensor.NewRaw(tensor.Shape{16}, tensor.Float32)
	require.NoError(t, err)
	require.Panics(t, func() {
		PoolingBackward(ctx, param, outGrad, in, nil, ReqWrite, inGrad)
	})
}

func TestPoolingBackward_NativeGradientReordered(t *testing.T) {
	ctx := NewContext(true)
	param := &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		PoolType: AvgPool,
	}
	in := seqTensor(t, tensor.Shape{1, 8, 4, 4})

	outGradPlain := seqTensor(t, tensor.Shape{1, 8, 2, 2})
	outGradNative, err := outGradPlain.ToNative()
	require.NoError(t, err)
	require.True(t, outGradNative.IsNative())

	// Forward input is in default layout while the gradient arrives in the
	// engine's blocked layout: the executor reorders it before binding.
	gotGrad := newTensor(t, tensor.Shape{1, 8, 4, 4}, tensor.Float32)
	PoolingBackward(ctx, param, outGradNative, in, nil, ReqWrite, gotGrad)

	wantGrad := newTensor(t, tensor.Shape{1, 8, 4, 4}, tensor.Float32)
	PoolingBackward(NewContext(true), param, outGradPlain, in, nil, ReqWrite, wantGrad)

	assert.Equal(t, wantGrad.AsFloat32(), gotGrad.AsFloat32())
}

func TestPoolingForward_Float16(t *testing.T) {
	ctx := NewContext(false)
	in := newTensor(t, tensor.Shape{1, 1, 4, 4}, tensor.Float16)
	half := in.AsFloat16()
	for i := range half {
		half[i] = tensor.Float16FromFloat32(float32(i + 1))
	}
	out := newTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float16)

	PoolingForward(ctx, maxParam(), in, ReqWrite, out, nil)

	got := out.AsFloat16()
	want := []float32{6, 8, 14, 16}
	for i, w := range want {
		assert.Equal(t, w, got[i].Float32())
	}
}
