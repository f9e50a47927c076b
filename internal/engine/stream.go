package engine

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Primitive is a compiled, executable operation. Primitives are built once
// from a descriptor and reused; bind memory per execution through Args.
type Primitive interface {
	// Kind names the primitive class for diagnostics.
	Kind() string

	execute(e *Engine, args Args) error
}

// Stream queues primitive executions and runs them in order on Submit.
// Several registrations may be batched into one submission, which is cheaper
// than draining after every primitive. A Stream is owned by a single worker
// and is not safe for concurrent use.
type Stream struct {
	engine *Engine
	queued []submission
}

type submission struct {
	prim Primitive
	args Args
}

// RegisterPrimArgs enqueues a primitive execution with its memory bindings.
// Nothing runs until Submit.
func (s *Stream) RegisterPrimArgs(p Primitive, args Args) {
	s.queued = append(s.queued, submission{prim: p, args: args})
}

// Submit drains the queue, executing every registered primitive in
// registration order. The queue is cleared even on failure; a failed
// submission aborts the remaining queued work.
func (s *Stream) Submit() error {
	queued := s.queued
	s.queued = s.queued[:0]
	if len(queued) == 0 {
		return nil
	}

	klog.V(2).Infof("engine: submitting %d primitive(s)", len(queued))
	for _, sub := range queued {
		if err := sub.prim.execute(s.engine, sub.args); err != nil {
			return errors.Wrapf(err, "submitting %s primitive", sub.prim.Kind())
		}
	}
	return nil
}

// Pending returns the number of registered-but-unsubmitted executions.
func (s *Stream) Pending() int {
	return len(s.queued)
}
