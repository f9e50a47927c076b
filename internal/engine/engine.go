// Package engine implements the CPU compute engine that the operator layer
// dispatches to. It follows the descriptor model of hardware vendor
// libraries: an operation is first described (memory descriptors plus
// geometry), the description is compiled into a primitive, and primitives are
// bound to memory and submitted through a stream. Compiling a primitive is
// the expensive step; callers are expected to cache primitives and reuse them
// across invocations.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/flint-ml/flint/internal/parallel"
)

// Engine is the process-wide CPU execution engine. All primitives are built
// against it and all streams submit to it.
type Engine struct {
	fanout parallel.Config

	// Instrumentation. Primitive builds are counted so callers can verify
	// their caches actually avoid rebuilds.
	primitiveBuilds atomic.Int64
	scratchBytes    atomic.Uint64
	scratchBuffers  atomic.Int64
}

var (
	engineOnce sync.Once
	cpuEngine  *Engine
)

// Get returns the process-wide CPU engine, initializing it on first use.
func Get() *Engine {
	engineOnce.Do(func() {
		cpuEngine = &Engine{fanout: parallel.DefaultConfig()}
		klog.V(1).Infof("engine: initialized CPU engine with %d workers", cpuEngine.fanout.Workers)
	})
	return cpuEngine
}

// NewStream creates a submission stream bound to this engine.
// Streams are not safe for concurrent use; create one per worker.
func (e *Engine) NewStream() *Stream {
	return &Stream{engine: e}
}

// PrimitiveBuilds returns the number of primitives compiled so far.
func (e *Engine) PrimitiveBuilds() int64 {
	return e.primitiveBuilds.Load()
}

// MemoryStats describes scratch memory handed out by the engine.
func (e *Engine) MemoryStats() string {
	return fmt.Sprintf("%s across %d scratch buffers",
		humanize.IBytes(e.scratchBytes.Load()), e.scratchBuffers.Load())
}

func (e *Engine) noteBuild(kind string) {
	e.primitiveBuilds.Add(1)
	klog.V(2).Infof("engine: compiled %s primitive (total builds: %d)", kind, e.primitiveBuilds.Load())
}

func (e *Engine) noteScratch(bytes int) {
	e.scratchBytes.Add(uint64(bytes))
	e.scratchBuffers.Add(1)
}
