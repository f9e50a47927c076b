package ops

import "github.com/flint-ml/flint/internal/engine"

// Context is the per-worker operator execution context: the engine stream
// the worker submits to, the training flag, and the signature-keyed caches
// of compiled execution plans.
//
// A Context is owned by exactly one worker goroutine. The plan caches are
// intentionally unsynchronized: never share a Context across goroutines.
// Cached plans live for the lifetime of the Context and are never evicted;
// unbounded growth is the accepted trade for rebuild-free dispatch.
type Context struct {
	// IsTrain selects training-mode plans (training-mode max pooling
	// additionally produces an argmax workspace).
	IsTrain bool

	stream *engine.Stream

	poolingFwds map[string]*poolingFwd
	poolingBwds map[string]*poolingBwd
}

// NewContext creates a worker-local operator context against the process
// engine.
func NewContext(isTrain bool) *Context {
	return &Context{
		IsTrain:     isTrain,
		stream:      engine.Get().NewStream(),
		poolingFwds: make(map[string]*poolingFwd),
		poolingBwds: make(map[string]*poolingBwd),
	}
}

// Stream returns the worker's submission stream.
func (c *Context) Stream() *engine.Stream {
	return c.stream
}

// CachedPlans returns the number of cached forward and backward plans.
func (c *Context) CachedPlans() (fwd, bwd int) {
	return len(c.poolingFwds), len(c.poolingBwds)
}
