package ops

import (
	"encoding/binary"

	"github.com/flint-ml/flint/internal/tensor"
)

// signature accumulates the identity of an execution plan: operator
// parameters plus the shape/dtype/layout of every participating tensor.
// Two invocations with equal signatures are guaranteed to need an identical
// plan. Equality is structural: the binary-encoded key compares by value.
type signature struct {
	buf []byte
}

func newSignature(op string) *signature {
	s := &signature{buf: make([]byte, 0, 64)}
	s.buf = append(s.buf, op...)
	return s
}

func (s *signature) addInt(v int) {
	s.buf = binary.AppendVarint(s.buf, int64(v))
}

func (s *signature) addBool(b bool) {
	if b {
		s.buf = append(s.buf, 1)
	} else {
		s.buf = append(s.buf, 0)
	}
}

func (s *signature) addInts(vs []int) {
	s.addInt(len(vs))
	for _, v := range vs {
		s.addInt(v)
	}
}

// addTensor folds in the plan-relevant identity of a tensor: its shape,
// element type and memory layout. Buffer contents never participate.
func (s *signature) addTensor(t *tensor.RawTensor) {
	s.addInts(t.Shape())
	s.addInt(int(t.DType()))
	s.addInt(int(t.Layout()))
}

func (s *signature) addParam(p *PoolingParam) {
	s.addInt(int(p.PoolType))
	s.addInt(int(p.Convention))
	s.addBool(p.GlobalPool)
	s.addInts(p.Kernel)
	s.addInts(p.Stride)
	s.addInts(p.Pad)
	switch {
	case p.CountIncludePad == nil:
		s.addInt(0)
	case *p.CountIncludePad:
		s.addInt(1)
	default:
		s.addInt(2)
	}
}

// key returns the structural map key for this signature.
func (s *signature) key() string {
	return string(s.buf)
}
