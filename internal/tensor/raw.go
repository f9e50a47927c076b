package tensor

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// tensorBuffer is a reference-counted shared buffer. Views share the buffer
// of the tensor they were carved from; the last release deallocates.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

// newTensorBuffer creates a new reference-counted buffer with refCount = 1.
func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

// addRef increments the reference count (for views and clones).
func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

// RawTensor is the low-level tensor handle: a typed, shaped window into a
// reference-counted buffer. It exposes exactly what the operator core needs
// (shape, dtype, layout, raw bytes) and nothing of the tensor algebra.
type RawTensor struct {
	buffer *tensorBuffer
	shape  Shape
	stride []int // Memory strides in elements (row-major for NCHW)
	dtype  DataType
	layout Layout
	offset int // Element offset into the buffer, for views
}

// NewRaw creates a new dense NCHW tensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return newRawLayout(shape, dtype, NCHW)
}

func newRawLayout(shape Shape, dtype DataType, layout Layout) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid shape")
	}
	if layout == NCHW8c {
		if len(shape) != 4 {
			return nil, errors.Errorf("nChw8c requires a 4D shape, got %v", shape)
		}
		if shape[1]%8 != 0 {
			return nil, errors.Errorf("nChw8c requires channels divisible by 8, got %d", shape[1])
		}
	}

	byteSize := shape.NumElements() * dtype.Size()
	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		layout: layout,
		offset: 0,
	}, nil
}

// FromFloat32 creates a dense NCHW Float32 tensor initialized from data.
// len(data) must equal shape.NumElements().
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, errors.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(t.AsFloat32(), data)
	return t, nil
}

// Shape returns the tensor's logical shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides in elements.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Layout returns the tensor's memory layout.
func (r *RawTensor) Layout() Layout {
	return r.layout
}

// NumElements returns the total number of logical elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the logical memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// IsView reports whether this tensor is a non-materialized window into a
// larger buffer.
func (r *RawTensor) IsView() bool {
	return r.layout == Strided || r.offset != 0
}

// IsNative reports whether the buffer is in the engine's blocked layout.
func (r *RawTensor) IsNative() bool {
	return r.layout == NCHW8c
}

// Data returns the raw bytes of the tensor's window into the buffer.
// WARNING: direct access to underlying memory; only meaningful for
// non-strided tensors.
func (r *RawTensor) Data() []byte {
	start := r.offset * r.dtype.Size()
	return r.buffer.data[start : start+r.ByteSize()]
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	r.mustDType(Float32)
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	r.mustDType(Float64)
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat16 interprets the data as []float16.Float16.
// Panics if the tensor's dtype is not Float16.
func (r *RawTensor) AsFloat16() []float16.Float16 {
	r.mustDType(Float16)
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	r.mustDType(Int32)
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), r.NumElements())
}

func (r *RawTensor) mustDType(want DataType) {
	if r.dtype != want {
		panic("tensor dtype is " + r.dtype.String() + ", not " + want.String())
	}
}

// Narrow returns a view selecting [start, start+length) along dim.
// The view shares the receiver's buffer. Narrowing any dimension but the
// outermost produces a strided (non-contiguous) view.
func (r *RawTensor) Narrow(dim, start, length int) (*RawTensor, error) {
	if r.layout == NCHW8c {
		return nil, errors.New("cannot take a view of a blocked-layout tensor")
	}
	if dim < 0 || dim >= len(r.shape) {
		return nil, errors.Errorf("narrow dim %d out of range for shape %v", dim, r.shape)
	}
	if start < 0 || length <= 0 || start+length > r.shape[dim] {
		return nil, errors.Errorf("narrow range [%d, %d) out of bounds for dim %d of size %d",
			start, start+length, dim, r.shape[dim])
	}

	shape := r.shape.Clone()
	shape[dim] = length
	layout := Strided
	if dim == 0 && r.layout == NCHW {
		// Outermost narrowing keeps the window contiguous.
		layout = NCHW
	}

	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape,
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		layout: layout,
		offset: r.offset + start*r.stride[dim],
	}, nil
}

// ReorderDefault materializes the tensor into a dense NCHW buffer.
// A tensor already in dense NCHW layout is returned as-is; strided views and
// blocked-layout tensors are copied element by element (the one-time copy the
// engine needs before binding).
func (r *RawTensor) ReorderDefault() *RawTensor {
	if r.layout == NCHW && !r.IsView() {
		return r
	}

	out, err := NewRaw(r.shape, r.dtype)
	if err != nil {
		panic("reorder: " + err.Error())
	}

	es := r.dtype.Size()
	dst := out.buffer.data
	src := r.buffer.data

	switch r.layout {
	case NCHW8c:
		n, c, h, w := r.shape[0], r.shape[1], r.shape[2], r.shape[3]
		blocks := c / 8
		for ni := 0; ni < n; ni++ {
			for ci := 0; ci < c; ci++ {
				for hi := 0; hi < h; hi++ {
					for wi := 0; wi < w; wi++ {
						srcIdx := ((((ni*blocks+ci/8)*h+hi)*w+wi)*8 + ci%8) * es
						dstIdx := (((ni*c+ci)*h+hi)*w + wi) * es
						copy(dst[dstIdx:dstIdx+es], src[srcIdx:srcIdx+es])
					}
				}
			}
		}
	default:
		// Strided gather over logical coordinates.
		coords := make([]int, len(r.shape))
		for i := 0; i < r.NumElements(); i++ {
			srcElem := r.offset
			for d, x := range coords {
				srcElem += x * r.stride[d]
			}
			copy(dst[i*es:(i+1)*es], src[srcElem*es:(srcElem+1)*es])

			for d := len(coords) - 1; d >= 0; d-- {
				coords[d]++
				if coords[d] < r.shape[d] {
					break
				}
				coords[d] = 0
			}
		}
	}
	return out
}

// ToNative converts a dense NCHW tensor into the engine's blocked nChw8c
// layout. Fails if the channel count is not a multiple of 8 or the tensor is
// a view.
func (r *RawTensor) ToNative() (*RawTensor, error) {
	if r.layout != NCHW || r.IsView() {
		return nil, errors.Errorf("ToNative requires a dense NCHW tensor, got %s", r.layout)
	}
	if len(r.shape) != 4 {
		return nil, errors.Errorf("ToNative requires a 4D tensor, got shape %v", r.shape)
	}

	out, err := newRawLayout(r.shape, r.dtype, NCHW8c)
	if err != nil {
		return nil, err
	}

	es := r.dtype.Size()
	n, c, h, w := r.shape[0], r.shape[1], r.shape[2], r.shape[3]
	blocks := c / 8
	src := r.buffer.data[r.offset*es:]
	dst := out.buffer.data
	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			for hi := 0; hi < h; hi++ {
				for wi := 0; wi < w; wi++ {
					srcIdx := (((ni*c+ci)*h+hi)*w + wi) * es
					dstIdx := ((((ni*blocks+ci/8)*h+hi)*w+wi)*8 + ci%8) * es
					copy(dst[dstIdx:dstIdx+es], src[srcIdx:srcIdx+es])
				}
			}
		}
	}
	return out, nil
}

// Clone creates a shallow copy sharing the underlying buffer.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		layout: r.layout,
		offset: r.offset,
	}
}

// Release decrements the buffer reference count and deallocates when it
// reaches zero.
func (r *RawTensor) Release() {
	r.buffer.release()
}
