package gridfire

import "errors"

// Pipeline error kinds. Kernel code cannot unwind, so these are never raised
// inside a dispatch; kernels record failures in counters and the orchestrator
// maps the counters to one of these after the frame's barrier.
var (
	// ErrInvalidCoordinate marks addressing outside the configured world
	// domain. Programmer error; production paths should never hit it.
	ErrInvalidCoordinate = errors.New("coordinate outside world domain")

	// ErrPoolExhausted means no free or evictable slot exists for a required
	// chunk. Recoverable: defer the request to a later frame.
	ErrPoolExhausted = errors.New("chunk slot pool exhausted")

	// ErrMeshBufferOverflow means an atomic cursor reservation exceeded the
	// vertex or index buffer capacity. Recoverable: the affected chunk's mesh
	// is discarded and re-queued with a smaller batch.
	ErrMeshBufferOverflow = errors.New("mesh buffer capacity exceeded")

	// ErrDrawBufferOverflow means more objects survived culling than the
	// indirect-command buffer can hold. Recoverable: farthest objects are
	// dropped for the frame.
	ErrDrawBufferOverflow = errors.New("indirect command buffer capacity exceeded")
)
