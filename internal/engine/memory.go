package engine

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/flint-ml/flint/internal/tensor"
)

// LayoutTag identifies the memory format a descriptor commits to.
type LayoutTag int

const (
	// LayoutAny lets the engine pick; resolved to LayoutPlain when the
	// primitive is compiled.
	LayoutAny LayoutTag = iota
	// LayoutPlain is dense row-major NCHW.
	LayoutPlain
	// LayoutBlocked8c is the channel-blocked nChw8c format.
	LayoutBlocked8c
)

// String returns a human-readable tag name.
func (l LayoutTag) String() string {
	switch l {
	case LayoutAny:
		return "any"
	case LayoutPlain:
		return "nchw"
	case LayoutBlocked8c:
		return "nChw8c"
	default:
		return "unknown"
	}
}

// MemDesc describes a 4-D memory region: logical dimensions, element type
// and physical layout. Descriptors are value types with structural equality
// (==) and participate in primitive signatures.
type MemDesc struct {
	Dims   [4]int
	DType  tensor.DataType
	Layout LayoutTag
}

// DescOf derives the memory descriptor of a tensor. Strided views have no
// descriptor; they must be materialized first.
func DescOf(t *tensor.RawTensor) (MemDesc, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return MemDesc{}, errors.Errorf("engine: memory descriptors are 4-D, got shape %v", shape)
	}
	var layout LayoutTag
	switch {
	case t.Layout() == tensor.NCHW8c:
		layout = LayoutBlocked8c
	case t.IsView():
		return MemDesc{}, errors.New("engine: cannot describe a strided view; reorder it first")
	default:
		layout = LayoutPlain
	}
	return MemDesc{
		Dims:   [4]int{shape[0], shape[1], shape[2], shape[3]},
		DType:  t.DType(),
		Layout: layout,
	}, nil
}

// NumElements returns the number of logical elements described.
func (d MemDesc) NumElements() int {
	return d.Dims[0] * d.Dims[1] * d.Dims[2] * d.Dims[3]
}

// ByteSize returns the size in bytes of a conforming buffer.
func (d MemDesc) ByteSize() int {
	return d.NumElements() * d.DType.Size()
}

// String formats the descriptor for diagnostics.
func (d MemDesc) String() string {
	return fmt.Sprintf("%v/%s/%s", d.Dims, d.DType, d.Layout)
}

// Memory binds a descriptor to a concrete buffer.
type Memory struct {
	Desc MemDesc
	Data []byte
}

// MemoryOf wraps a tensor's buffer as engine memory. The tensor must be
// materialized (no strided views).
func MemoryOf(t *tensor.RawTensor) (*Memory, error) {
	desc, err := DescOf(t)
	if err != nil {
		return nil, err
	}
	return &Memory{Desc: desc, Data: t.Data()}, nil
}

// NewScratch allocates engine-owned scratch memory conforming to desc.
// Used for request-mode accumulation targets and layout conversions.
func (e *Engine) NewScratch(desc MemDesc) *Memory {
	e.noteScratch(desc.ByteSize())
	return &Memory{Desc: desc, Data: make([]byte, desc.ByteSize())}
}

// Arg identifies the role of a memory binding in a primitive execution.
type Arg int

// Execution argument kinds.
const (
	ArgSrc Arg = iota
	ArgDst
	ArgWorkspace
	ArgDiffSrc
	ArgDiffDst
)

// Args maps argument kinds to bound memory for one primitive execution.
type Args map[Arg]*Memory

func (a Args) require(kind Arg, want MemDesc) (*Memory, error) {
	mem, ok := a[kind]
	if !ok || mem == nil {
		return nil, errors.Errorf("engine: missing required argument %d", kind)
	}
	if len(mem.Data) < want.ByteSize() {
		return nil, errors.Errorf("engine: argument %d buffer too small: %d bytes for %s",
			kind, len(mem.Data), want)
	}
	if mem.Desc.DType != want.DType {
		return nil, errors.Errorf("engine: argument %d dtype %s, primitive compiled for %s",
			kind, mem.Desc.DType, want.DType)
	}
	if mem.Desc.Layout != want.Layout {
		return nil, errors.Errorf("engine: argument %d layout %s, primitive compiled for %s; reorder before binding",
			kind, mem.Desc.Layout, want.Layout)
	}
	return mem, nil
}
