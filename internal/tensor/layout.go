package tensor

// Layout identifies the memory format of a tensor's backing buffer.
//
// The engine's pooling primitives consume plain NCHW buffers. NCHW8c is the
// engine's channel-blocked format produced by reorders elsewhere in the
// pipeline; Strided marks a non-materialized view. Both must be reordered to
// NCHW before a primitive can bind them.
type Layout int

const (
	// NCHW is the default dense row-major layout: [batch, channel, height, width].
	NCHW Layout = iota
	// NCHW8c is the engine's blocked layout: channels grouped in blocks of 8,
	// physically [N, C/8, H, W, 8c]. Requires the channel count to be a
	// multiple of 8.
	NCHW8c
	// Strided marks a non-contiguous view into another tensor's buffer.
	Strided
)

// String returns a human-readable layout name.
func (l Layout) String() string {
	switch l {
	case NCHW:
		return "nchw"
	case NCHW8c:
		return "nChw8c"
	case Strided:
		return "strided"
	default:
		return "unknown"
	}
}
