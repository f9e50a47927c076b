// Package parallel fans the engine's compiled kernels out over independent
// (batch, channel) planes. Pooling kernels never share a plane, so the grid
// splits into contiguous runs with no synchronization beyond the final wait.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls kernel fanout behavior.
type Config struct {
	Workers   int // Number of goroutines to spread planes over.
	MinPlanes int // Grids smaller than this run on the calling goroutine.
}

// DefaultConfig returns defaults sized from the CPU count.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		MinPlanes: 4,
	}
}

// ForPlanes executes f(n, c) for every plane of a batch x channels grid.
// Small grids run inline; larger ones are split into contiguous plane runs,
// one goroutine per run. Returns after every plane has been processed.
func ForPlanes(batch, channels int, f func(n, c int), cfg Config) {
	total := batch * channels
	if cfg.Workers <= 1 || total < cfg.MinPlanes {
		for k := 0; k < total; k++ {
			f(k/channels, k%channels)
		}
		return
	}

	run := (total + cfg.Workers - 1) / cfg.Workers
	var wg sync.WaitGroup
	for start := 0; start < total; start += run {
		end := min(start+run, total)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for k := s; k < e; k++ {
				f(k/channels, k%channels)
			}
		}(start, end)
	}
	wg.Wait()
}
