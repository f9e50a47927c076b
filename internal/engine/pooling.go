package engine

import (
	"github.com/pkg/errors"

	"github.com/flint-ml/flint/internal/tensor"
)

// Algorithm selects the pooling reduction.
type Algorithm int

// Supported pooling algorithms.
const (
	PoolingMax Algorithm = iota
	PoolingAvgIncludePadding
	PoolingAvgExcludePadding
)

// String returns a human-readable algorithm name.
func (a Algorithm) String() string {
	switch a {
	case PoolingMax:
		return "max"
	case PoolingAvgIncludePadding:
		return "avg_include_padding"
	case PoolingAvgExcludePadding:
		return "avg_exclude_padding"
	default:
		return "unknown"
	}
}

// PropKind selects forward propagation semantics. Training-mode max pooling
// additionally produces an argmax workspace for the backward pass.
type PropKind int

// Propagation kinds.
const (
	ForwardInference PropKind = iota
	ForwardTraining
)

// String returns a human-readable propagation kind.
func (p PropKind) String() string {
	switch p {
	case ForwardInference:
		return "forward_inference"
	case ForwardTraining:
		return "forward_training"
	default:
		return "unknown"
	}
}

// PoolingForwardDesc describes a forward 2-D pooling primitive: source and
// destination memory plus window geometry. Pads are given per axis as
// {height, width}, leading (PadL = top/left) and trailing (PadR =
// bottom/right) separately.
type PoolingForwardDesc struct {
	Prop    PropKind
	Alg     Algorithm
	Src     MemDesc
	Dst     MemDesc
	Strides [2]int
	Kernel  [2]int
	PadL    [2]int
	PadR    [2]int
}

// PoolingForward is a compiled forward pooling primitive.
type PoolingForward struct {
	desc          PoolingForwardDesc
	withWorkspace bool
}

// NewPoolingForward validates and compiles a forward pooling primitive.
// LayoutAny descriptors are resolved to the engine's choice (plain NCHW).
func (e *Engine) NewPoolingForward(d PoolingForwardDesc) (*PoolingForward, error) {
	switch d.Alg {
	case PoolingMax, PoolingAvgIncludePadding, PoolingAvgExcludePadding:
	default:
		return nil, errors.Errorf("pooling: unsupported algorithm %d", d.Alg)
	}
	if d.Prop != ForwardInference && d.Prop != ForwardTraining {
		return nil, errors.Errorf("pooling: unsupported propagation kind %d", d.Prop)
	}

	var err error
	if d.Src, err = resolveLayout(d.Src); err != nil {
		return nil, errors.Wrap(err, "pooling src")
	}
	if d.Dst, err = resolveLayout(d.Dst); err != nil {
		return nil, errors.Wrap(err, "pooling dst")
	}
	if d.Src.DType != d.Dst.DType {
		return nil, errors.Errorf("pooling: src dtype %s != dst dtype %s", d.Src.DType, d.Dst.DType)
	}
	switch d.Src.DType {
	case tensor.Float32, tensor.Float64, tensor.Float16:
	default:
		return nil, errors.Errorf("pooling: unsupported dtype %s", d.Src.DType)
	}
	if d.Src.Dims[0] != d.Dst.Dims[0] || d.Src.Dims[1] != d.Dst.Dims[1] {
		return nil, errors.Errorf("pooling: batch/channel mismatch between src %s and dst %s", d.Src, d.Dst)
	}
	if err := checkPoolingGeometry(d.Src, d.Dst, d.Strides, d.Kernel, d.PadL, d.PadR); err != nil {
		return nil, err
	}

	e.noteBuild("pooling_forward")
	return &PoolingForward{
		desc:          d,
		withWorkspace: d.Prop == ForwardTraining && d.Alg == PoolingMax,
	}, nil
}

// Desc returns the resolved descriptor the primitive was compiled from.
func (p *PoolingForward) Desc() PoolingForwardDesc {
	return p.desc
}

// DstDesc returns the resolved destination descriptor.
func (p *PoolingForward) DstDesc() MemDesc {
	return p.desc.Dst
}

// RequiresWorkspace reports whether executions must bind an argmax workspace
// for the backward pass to consume.
func (p *PoolingForward) RequiresWorkspace() bool {
	return p.withWorkspace
}

// WorkspaceDesc returns the descriptor of the argmax workspace: one int32
// per destination element.
func (p *PoolingForward) WorkspaceDesc() MemDesc {
	return MemDesc{Dims: p.desc.Dst.Dims, DType: tensor.Int32, Layout: LayoutPlain}
}

// Kind implements Primitive.
func (p *PoolingForward) Kind() string { return "pooling_forward" }

func (p *PoolingForward) execute(e *Engine, args Args) error {
	src, err := args.require(ArgSrc, p.desc.Src)
	if err != nil {
		return err
	}
	dst, err := args.require(ArgDst, p.desc.Dst)
	if err != nil {
		return err
	}

	var ws []int32
	if p.withWorkspace {
		if wsMem, ok := args[ArgWorkspace]; ok && wsMem != nil {
			want := p.WorkspaceDesc()
			if len(wsMem.Data) < want.ByteSize() {
				return errors.Errorf("pooling: workspace buffer too small: %d bytes for %s",
					len(wsMem.Data), want)
			}
			ws = bytesAsInt32(wsMem.Data, want.NumElements())
		}
	}

	g := poolingGeomOf(p.desc.Src, p.desc.Dst, p.desc.Strides, p.desc.Kernel, p.desc.PadL)
	runPoolingForward(e, p.desc.Alg, src, dst, ws, g)
	return nil
}

// PoolingBackwardDesc describes a backward 2-D pooling primitive over
// gradient memories. DiffSrc matches the forward source, DiffDst the forward
// destination.
type PoolingBackwardDesc struct {
	Alg     Algorithm
	DiffSrc MemDesc
	DiffDst MemDesc
	Strides [2]int
	Kernel  [2]int
	PadL    [2]int
	PadR    [2]int
}

// PoolingBackward is a compiled backward pooling primitive. It is always
// built against the forward primitive it differentiates, which guarantees
// both passes agree on geometry and algorithm.
type PoolingBackward struct {
	desc          PoolingBackwardDesc
	withWorkspace bool
}

// NewPoolingBackward validates and compiles a backward pooling primitive.
// hint is the forward primitive the backward pass corresponds to; it is
// required and must agree with d on algorithm and window geometry.
func (e *Engine) NewPoolingBackward(d PoolingBackwardDesc, hint *PoolingForward) (*PoolingBackward, error) {
	if hint == nil {
		return nil, errors.New("pooling: backward construction requires the forward primitive")
	}
	fd := hint.desc
	if d.Alg != fd.Alg || d.Kernel != fd.Kernel || d.Strides != fd.Strides ||
		d.PadL != fd.PadL || d.PadR != fd.PadR {
		return nil, errors.Errorf("pooling: backward descriptor disagrees with forward hint (%s vs %s)",
			d.Alg, fd.Alg)
	}
	if d.DiffSrc.Dims != fd.Src.Dims || d.DiffDst.Dims != fd.Dst.Dims {
		return nil, errors.Errorf("pooling: gradient dims %v/%v do not match forward %v/%v",
			d.DiffSrc.Dims, d.DiffDst.Dims, fd.Src.Dims, fd.Dst.Dims)
	}

	var err error
	if d.DiffSrc, err = resolveLayout(d.DiffSrc); err != nil {
		return nil, errors.Wrap(err, "pooling diff_src")
	}
	if d.DiffDst, err = resolveLayout(d.DiffDst); err != nil {
		return nil, errors.Wrap(err, "pooling diff_dst")
	}
	if d.DiffSrc.DType != d.DiffDst.DType {
		return nil, errors.Errorf("pooling: diff_src dtype %s != diff_dst dtype %s",
			d.DiffSrc.DType, d.DiffDst.DType)
	}

	e.noteBuild("pooling_backward")
	return &PoolingBackward{
		desc:          d,
		withWorkspace: hint.RequiresWorkspace(),
	}, nil
}

// DiffSrcDesc returns the resolved input-gradient descriptor.
func (p *PoolingBackward) DiffSrcDesc() MemDesc {
	return p.desc.DiffSrc
}

// RequiresWorkspace reports whether the backward pass consumes the forward
// argmax workspace.
func (p *PoolingBackward) RequiresWorkspace() bool {
	return p.withWorkspace
}

// Kind implements Primitive.
func (p *PoolingBackward) Kind() string { return "pooling_backward" }

func (p *PoolingBackward) execute(e *Engine, args Args) error {
	diffDst, err := args.require(ArgDiffDst, p.desc.DiffDst)
	if err != nil {
		return err
	}
	diffSrc, err := args.require(ArgDiffSrc, p.desc.DiffSrc)
	if err != nil {
		return err
	}

	// The argmax workspace may legitimately be absent even when required:
	// the dispatch layer passes it through conservatively. Without it the
	// max-gradient routing is unknown and diff_src is left zeroed.
	var ws []int32
	if p.withWorkspace {
		if wsMem, ok := args[ArgWorkspace]; ok && wsMem != nil {
			want := MemDesc{Dims: p.desc.DiffDst.Dims, DType: tensor.Int32, Layout: LayoutPlain}
			if len(wsMem.Data) < want.ByteSize() {
				return errors.Errorf("pooling: workspace buffer too small: %d bytes for %s",
					len(wsMem.Data), want)
			}
			ws = bytesAsInt32(wsMem.Data, want.NumElements())
		}
	}

	g := poolingGeomOf(p.desc.DiffSrc, p.desc.DiffDst, p.desc.Strides, p.desc.Kernel, p.desc.PadL)
	runPoolingBackward(e, p.desc.Alg, p.withWorkspace, diffDst, diffSrc, ws, g)
	return nil
}

func resolveLayout(d MemDesc) (MemDesc, error) {
	for i, dim := range d.Dims {
		if dim <= 0 {
			return d, errors.Errorf("dimension %d is %d (must be > 0)", i, dim)
		}
	}
	switch d.Layout {
	case LayoutAny:
		d.Layout = LayoutPlain
	case LayoutPlain:
	case LayoutBlocked8c:
		if d.Dims[1]%8 != 0 {
			return d, errors.Errorf("nChw8c requires channels divisible by 8, got %d", d.Dims[1])
		}
	default:
		return d, errors.Errorf("unsupported layout tag %d", d.Layout)
	}
	return d, nil
}

func checkPoolingGeometry(src, dst MemDesc, strides, kernel, padL, padR [2]int) error {
	in := [2]int{src.Dims[2], src.Dims[3]}
	out := [2]int{dst.Dims[2], dst.Dims[3]}
	for axis := 0; axis < 2; axis++ {
		k, s := kernel[axis], strides[axis]
		pl, pr := padL[axis], padR[axis]
		if k <= 0 {
			return errors.Errorf("pooling: kernel dimension %d is %d (must be > 0)", axis, k)
		}
		if s <= 0 {
			return errors.Errorf("pooling: stride dimension %d is %d (must be > 0)", axis, s)
		}
		if pl < 0 || pr < 0 {
			return errors.Errorf("pooling: negative padding on axis %d", axis)
		}
		padded := in[axis] + pl + pr
		if padded < k {
			return errors.Errorf("pooling: kernel %d exceeds padded extent %d on axis %d", k, padded, axis)
		}
		if want := (padded-k)/s + 1; out[axis] != want {
			return errors.Errorf("pooling: dst extent %d on axis %d, geometry requires %d",
				out[axis], axis, want)
		}
	}
	return nil
}
