// Copyright 2026 Flint ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine exposes the Flint CPU compute engine: compiled primitives,
// memory descriptors and submission streams. Most users go through the ops
// package instead and never touch primitives directly.
package engine

import (
	"github.com/flint-ml/flint/internal/engine"
)

// Engine is the process-wide CPU execution engine.
type Engine = engine.Engine

// Stream queues primitive executions and runs them in order on Submit.
// Streams are not safe for concurrent use; create one per worker.
type Stream = engine.Stream

// MemDesc describes a 4-D memory region: dimensions, element type, layout.
type MemDesc = engine.MemDesc

// Memory binds a descriptor to a concrete buffer.
type Memory = engine.Memory

// Algorithm selects the pooling reduction.
type Algorithm = engine.Algorithm

// Supported pooling algorithms.
const (
	PoolingMax               = engine.PoolingMax
	PoolingAvgIncludePadding = engine.PoolingAvgIncludePadding
	PoolingAvgExcludePadding = engine.PoolingAvgExcludePadding
)

// Get returns the process-wide CPU engine, initializing it on first use.
func Get() *Engine {
	return engine.Get()
}
