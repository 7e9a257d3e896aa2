// Package kernel contains the lane-parallel reference implementations of the
// pipeline's compute kernels: terrain generation, chunk meshing, and draw
// culling. The kernels here are the bit-exact reference for the WGSL shaders
// in gpu/shaders; they share the same data layout and the same atomic bump
// allocation scheme, expressed over Go's runtime instead of a GPU dispatch
// grid. All pipeline tests run against this package.
package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// parallelFor runs fn for every lane in [0, n), spread over the machine's
// cores. Lanes must be independent except for atomic operations, exactly as
// in a GPU dispatch; nothing about execution order may be assumed.
func parallelFor(n int, fn func(lane int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	const stride = 256
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				base := int(next.Add(stride)) - stride
				if base >= n {
					return
				}
				end := base + stride
				if end > n {
					end = n
				}
				for i := base; i < end; i++ {
					fn(i)
				}
			}
		}()
	}
	wg.Wait()
}

// Cursor is a bounded bump allocator over a shared output buffer. It exposes
// only "reserve N, get base offset" so callers cannot index past their
// reservation. Reservations past capacity fail and are counted; the raw
// cursor keeps advancing (as a hardware fetch-add would) but no writes may
// land beyond capacity.
type Cursor struct {
	count     atomic.Uint32
	overflows atomic.Uint32
	capacity  uint32
}

func NewCursor(capacity uint32) *Cursor {
	return &Cursor{capacity: capacity}
}

// Reserve claims n contiguous slots and returns the base offset. ok is false
// when the reservation would cross capacity; the caller must not write.
func (c *Cursor) Reserve(n uint32) (base uint32, ok bool) {
	base = c.count.Add(n) - n
	if base+n > c.capacity {
		c.overflows.Add(1)
		return 0, false
	}
	return base, true
}

// Committed is the number of slots successfully reserved. Meaningless when
// Overflowed; an overflowed dispatch must be discarded wholesale.
func (c *Cursor) Committed() uint32 {
	v := c.count.Load()
	if v > c.capacity {
		return c.capacity
	}
	return v
}

func (c *Cursor) Overflowed() bool  { return c.overflows.Load() > 0 }
func (c *Cursor) Overflows() uint32 { return c.overflows.Load() }
func (c *Cursor) Capacity() uint32  { return c.capacity }

// Reset rewinds the cursor for the next dispatch scope.
func (c *Cursor) Reset() {
	c.count.Store(0)
	c.overflows.Store(0)
}
