// Package ops implements the operator execution layer: it resolves operator
// parameters into engine geometry, builds and caches compiled primitives
// keyed by invocation signatures, and binds tensors to primitive executions.
// Misconfigured operators (bad geometry, unsupported algorithms) indicate a
// malformed model definition and fail fast by panicking; they are not
// runtime conditions.
package ops

// PoolType selects the pooling reduction of a pooling operator.
type PoolType int

// Supported pool types.
const (
	MaxPool PoolType = iota
	AvgPool
)

// String returns a human-readable pool type.
func (p PoolType) String() string {
	switch p {
	case MaxPool:
		return "max"
	case AvgPool:
		return "avg"
	default:
		return "unknown"
	}
}

// Convention selects how output extents are derived from input extents.
type Convention int

const (
	// ConventionValid emits only fully covered windows (floor division).
	ConventionValid Convention = iota
	// ConventionFull grows the trailing padding until the sliding window
	// covers the padded input with no leftover partial step.
	ConventionFull
)

// String returns a human-readable convention name.
func (c Convention) String() string {
	switch c {
	case ConventionValid:
		return "valid"
	case ConventionFull:
		return "full"
	default:
		return "unknown"
	}
}

// ReqType is the write-request mode for an operator output, passed through
// from the surrounding framework.
type ReqType int

// Write-request modes.
const (
	// ReqNull declares the output a don't-care: skip all work for it.
	ReqNull ReqType = iota
	// ReqWrite overwrites the output buffer.
	ReqWrite
	// ReqInplace overwrites an output aliasing one of the inputs.
	ReqInplace
	// ReqAdd accumulates into the existing output buffer.
	ReqAdd
)

// PoolingParam carries the configuration of one pooling operator. It is
// immutable per invocation; the same value always resolves to the same
// execution plan.
type PoolingParam struct {
	// Kernel is the 2-D window size {height, width}. Must be 2-D even when
	// GlobalPool is set, which overrides the extents with the input's.
	Kernel []int
	// Stride is the 2-D window step {height, width}. Empty means {1, 1}.
	Stride []int
	// Pad is the symmetric per-axis padding {height, width}. Empty means
	// {0, 0}.
	Pad []int

	PoolType   PoolType
	Convention Convention

	// GlobalPool makes the window span the full spatial extents.
	GlobalPool bool

	// CountIncludePad selects the average-pooling divisor: nil or true
	// count padded cells, false counts only in-bounds cells. Average
	// pooling only.
	CountIncludePad *bool
}

func (p *PoolingParam) stride(axis int) int {
	if len(p.Stride) != 2 {
		return 1
	}
	return p.Stride[axis]
}

func (p *PoolingParam) pad(axis int) int {
	if len(p.Pad) != 2 {
		return 0
	}
	return p.Pad[axis]
}

// requiresWorkspace reports whether the pooling operator needs the engine's
// argmax workspace to run its backward pass.
func requiresWorkspace(p *PoolingParam) bool {
	return p.PoolType == MaxPool
}
