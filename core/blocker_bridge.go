package core

import (
	"context"
)

// =============================================================================
// RunInBlockerPool: blocking call offload
// =============================================================================

// genericJob carries one blocking call from a coroutine to a blocker thread
// and back. Run writes result on the blocker thread; the coroutine reads it
// only after its worker resumed it, and the resume request travels through
// the worker's MessageHub, whose lock orders the two accesses.
type genericJob[T any] struct {
	fn        func() T
	suspended *Coroutine
	gen       uint64
	origin    *Worker
	result    T
}

func (j *genericJob[T]) Run() {
	j.result = j.fn()
}

// Done hands the resume back to the worker that suspended. It never touches
// the coroutine itself: Notify may only run on the coroutine's own thread.
func (j *genericJob[T]) Done() {
	co, gen := j.suspended, j.gen
	if err := j.origin.hub.Deliver(loopMessage(func(w *Worker) {
		w.resumeBlocked(co, gen)
	})); err != nil {
		j.origin.logger.Error("blocker job could not resume its coroutine",
			F("worker", j.origin.index), F("coroutine", co.id), F("error", err))
	}
}

// RunInBlockerPool runs fn on a blocker thread and suspends the calling
// coroutine until fn returns; other coroutines on the worker keep running
// meanwhile. The coroutine resumes on the same worker and the call returns
// exactly what fn returned.
//
// fn must report failure through its result: a panic in fn is a fatal fault.
// There is no timeout. If fn never returns, the coroutine stays suspended
// and its worker cannot finish shutting down.
//
// Calling RunInBlockerPool outside a coroutine, or on a pool without a live
// blocker pool, is fatal.
func RunInBlockerPool[T any](ctx context.Context, fn func() T) T {
	var zero T
	co := Self(ctx)
	if co == nil {
		return zero
	}
	w := co.rt.worker
	if w.pool == nil || w.pool.blockers == nil {
		fatalf("thread pool: RunInBlockerPool called while the blocker pool is uninitialized")
		return zero
	}

	job := &genericJob[T]{
		fn:        fn,
		suspended: co,
		gen:       co.beginWait(),
		origin:    w,
	}

	w.inflight.Add(1)
	if err := w.pool.blockers.DoJob(job); err != nil {
		w.inflight.Add(-1)
		fatalf("thread pool: RunInBlockerPool: %v", err)
		return zero
	}

	// Give up execution until Done's resume request is pumped
	co.blocking = true
	co.park()
	co.blocking = false
	return job.result
}

// blockingResult pairs a value with an error for RunInBlockerPoolE.
type blockingResult[T any] struct {
	value T
	err   error
}

// RunInBlockerPoolE is RunInBlockerPool for calls returning (T, error).
//
// Example:
//
//	data, err := RunInBlockerPoolE(ctx, func() ([]byte, error) {
//	    return os.ReadFile(path)
//	})
func RunInBlockerPoolE[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	r := RunInBlockerPool(ctx, func() blockingResult[T] {
		v, err := fn()
		return blockingResult[T]{value: v, err: err}
	})
	return r.value, r.err
}
