package core

import "context"

// Message is the unit of cross-thread work delivery. Its content is opaque
// to the scheduler: the only operation is "run on the thread that receives
// it". The receiving worker runs each delivered Message inside a fresh
// coroutine, so Run may call Self, Wait, Spawn and RunInBlockerPool.
type Message interface {
	Run(ctx context.Context)
}

// MessageFunc adapts a plain function to Message.
type MessageFunc func(ctx context.Context)

// Run calls f(ctx).
func (f MessageFunc) Run(ctx context.Context) { f(ctx) }

// loopMessage runs directly on the receiving worker's reactor loop instead
// of in a coroutine. It is how scheduler internals cross threads, most
// importantly the resume request of a finished blocker job.
type loopMessage func(w *Worker)

func (m loopMessage) Run(ctx context.Context) {
	if w := CurrentWorker(ctx); w != nil {
		m(w)
	}
}

// =============================================================================
// Context Helper
// =============================================================================

type threadKeyType struct{}
type coroutineKeyType struct{}

var (
	threadKey    threadKeyType
	coroutineKey coroutineKeyType
)

// threadIdentity is fixed when a worker is built and never reassigned.
type threadIdentity struct {
	pool   *ThreadPool
	index  int
	worker *Worker
}

func identityFrom(ctx context.Context) *threadIdentity {
	if ctx == nil {
		return nil
	}
	id, _ := ctx.Value(threadKey).(*threadIdentity)
	return id
}

// CurrentPool returns the ThreadPool owning the worker ctx belongs to, or
// nil outside a worker.
func CurrentPool(ctx context.Context) *ThreadPool {
	if id := identityFrom(ctx); id != nil {
		return id.pool
	}
	return nil
}

// CurrentThreadIndex returns the worker index ctx belongs to, or -1
// outside a worker.
func CurrentThreadIndex(ctx context.Context) int {
	if id := identityFrom(ctx); id != nil {
		return id.index
	}
	return -1
}

// CurrentWorker returns the Worker ctx belongs to, or nil outside a worker.
func CurrentWorker(ctx context.Context) *Worker {
	if id := identityFrom(ctx); id != nil {
		return id.worker
	}
	return nil
}
