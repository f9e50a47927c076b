package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flint-ml/flint/internal/tensor"
)

func TestSignature_StructuralEquality(t *testing.T) {
	param := &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		PoolType: MaxPool,
	}
	in, err := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32)
	require.NoError(t, err)
	out, err := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	require.NoError(t, err)

	build := func(p *PoolingParam, data, output *tensor.RawTensor) string {
		sig := newSignature("pooling_fwd")
		sig.addParam(p)
		sig.addBool(false)
		sig.addBool(false)
		sig.addTensor(data)
		sig.addTensor(output)
		return sig.key()
	}

	// Equality is structural: a fresh but identical parameter value and
	// fresh tensors of the same shape/dtype/layout produce the same key.
	paramCopy := &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		PoolType: MaxPool,
	}
	in2, err := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32)
	require.NoError(t, err)
	out2, err := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, build(param, in, out), build(paramCopy, in2, out2))
}

func TestSignature_OutputShapeDistinguishes(t *testing.T) {
	param := &PoolingParam{
		Kernel:   []int{2, 2},
		Stride:   []int{2, 2},
		PoolType: MaxPool,
	}
	in, err := tensor.NewRaw(tensor.Shape{1, 1, 5, 5}, tensor.Float32)
	require.NoError(t, err)
	outValid, err := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	require.NoError(t, err)
	outFull, err := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32)
	require.NoError(t, err)

	build := func(output *tensor.RawTensor) string {
		sig := newSignature("pooling_fwd")
		sig.addParam(param)
		sig.addBool(false)
		sig.addBool(false)
		sig.addTensor(in)
		sig.addTensor(output)
		return sig.key()
	}

	// All else equal, a differing output shape must produce a distinct key.
	assert.NotEqual(t, build(outValid), build(outFull))
}

func TestSignature_DistinguishesFlags(t *testing.T) {
	in, err := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32)
	require.NoError(t, err)

	base := func(cip *bool, isTrain bool) string {
		sig := newSignature("pooling_fwd")
		sig.addParam(&PoolingParam{
			Kernel:          []int{2, 2},
			PoolType:        AvgPool,
			CountIncludePad: cip,
		})
		sig.addBool(isTrain)
		sig.addTensor(in)
		return sig.key()
	}

	assert.NotEqual(t, base(nil, false), base(boolPtr(false), false))
	assert.NotEqual(t, base(nil, false), base(nil, true))
	// nil and explicit true both mean include, but remain distinct keys:
	// they are distinct parameter values even though they build equal plans.
	assert.NotEqual(t, base(nil, false), base(boolPtr(true), false))
}
