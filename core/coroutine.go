package core

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// CoroutineState tags where a coroutine is in its life.
type CoroutineState int32

const (
	CoroutineReady CoroutineState = iota
	CoroutineRunning
	CoroutineSuspended
	CoroutineDone
)

func (s CoroutineState) String() string {
	switch s {
	case CoroutineReady:
		return "ready"
	case CoroutineRunning:
		return "running"
	case CoroutineSuspended:
		return "suspended"
	case CoroutineDone:
		return "done"
	default:
		return "unknown"
	}
}

// Coroutine is a cooperatively scheduled unit of execution bound to one
// worker for its whole life.
//
// Its continuation is a goroutine that only runs while it holds its
// runtime's baton: the reactor hands the baton over on resume and gets it
// back when the coroutine calls Wait or returns. Hence at most one
// coroutine per worker executes at any instant, and switches happen only
// at Wait.
type Coroutine struct {
	id    uint64
	rt    *Runtime
	fn    func(ctx context.Context)
	ctx   context.Context
	state atomic.Int32

	started bool
	resume  chan struct{}

	// gen numbers suspensions; internal wakeups carry the number of the
	// suspension they were armed for and are dropped once it has ended.
	gen uint64
	// blocking is set while the coroutine waits on a blocker job.
	blocking bool
}

// ID returns the coroutine's identifier, unique within its worker.
func (co *Coroutine) ID() uint64 { return co.id }

// State returns the coroutine's current state.
func (co *Coroutine) State() CoroutineState { return CoroutineState(co.state.Load()) }

// Worker returns the worker the coroutine is bound to.
func (co *Coroutine) Worker() *Worker { return co.rt.worker }

// Notify makes a suspended coroutine ready to resume. ctx must belong to the
// coroutine's own worker; to resume from another thread deliver a message
// to that worker and call Notify from there.
func (co *Coroutine) Notify(ctx context.Context) {
	if w := CurrentWorker(ctx); w == nil || w != co.rt.worker {
		fatalf("coroutine: Notify of coroutine %d called from a foreign thread", co.id)
		return
	}
	if co.blocking {
		fatalf("coroutine: Notify of coroutine %d while it waits on a blocking call", co.id)
		return
	}
	co.rt.notify(co)
}

func (co *Coroutine) main() {
	debug.SetPanicOnFault(true)
	defer func() {
		if r := recover(); r != nil {
			co.rt.worker.crash("worker", co.rt.worker.index, r, debug.Stack())
		}
		co.state.Store(int32(CoroutineDone))
		co.rt.yield <- struct{}{}
	}()
	co.fn(co.ctx)
}

func (co *Coroutine) wait() {
	co.beginWait()
	co.park()
}

// beginWait opens a new suspension and returns its number.
func (co *Coroutine) beginWait() uint64 {
	co.gen++
	return co.gen
}

// park hands the baton back until the coroutine is resumed.
func (co *Coroutine) park() {
	co.state.Store(int32(CoroutineSuspended))
	co.rt.yield <- struct{}{}
	<-co.resume
}

// Runtime is the per-worker coroutine scheduler. Its fields are only touched
// by whichever goroutine holds the baton: the reactor loop or the running
// coroutine.
type Runtime struct {
	worker  *Worker
	current *Coroutine
	ready   []*Coroutine
	yield   chan struct{}
	nextID  uint64

	live       atomic.Int32
	readyCount atomic.Int32
	resumed    atomic.Uint64
}

func newRuntime(w *Worker) *Runtime {
	return &Runtime{
		worker: w,
		yield:  make(chan struct{}),
	}
}

func (rt *Runtime) spawn(fn func(ctx context.Context)) *Coroutine {
	rt.nextID++
	co := &Coroutine{
		id:     rt.nextID,
		rt:     rt,
		fn:     fn,
		resume: make(chan struct{}),
	}
	co.ctx = context.WithValue(rt.worker.ctx, coroutineKey, co)
	co.state.Store(int32(CoroutineReady))
	rt.live.Add(1)
	rt.pushReady(co)
	return co
}

func (rt *Runtime) notify(co *Coroutine) {
	if co.State() != CoroutineSuspended {
		fatalf("coroutine: Notify of coroutine %d in state %s", co.id, co.State())
		return
	}
	co.state.Store(int32(CoroutineReady))
	rt.pushReady(co)
}

// resume wakes co only if it is still in suspension gen. It reports
// whether the wakeup was used.
func (rt *Runtime) resume(co *Coroutine, gen uint64) bool {
	if co.gen != gen || co.State() != CoroutineSuspended {
		return false
	}
	co.state.Store(int32(CoroutineReady))
	rt.pushReady(co)
	return true
}

func (rt *Runtime) pushReady(co *Coroutine) {
	rt.ready = append(rt.ready, co)
	rt.readyCount.Add(1)
}

// runReady resumes ready coroutines in FIFO order until none is ready,
// including ones made ready while the pass runs. Must be called by the
// reactor loop.
func (rt *Runtime) runReady() int {
	n := 0
	for len(rt.ready) > 0 {
		co := rt.ready[0]
		rt.ready[0] = nil
		rt.ready = rt.ready[1:]
		rt.readyCount.Add(-1)
		rt.switchTo(co)
		n++
	}
	if cap(rt.ready) > 64 {
		rt.ready = nil
	}
	return n
}

func (rt *Runtime) switchTo(co *Coroutine) {
	rt.current = co
	co.state.Store(int32(CoroutineRunning))
	if !co.started {
		co.started = true
		go co.main()
	} else {
		co.resume <- struct{}{}
	}
	<-rt.yield
	rt.current = nil
	rt.resumed.Add(1)
	if co.State() == CoroutineDone {
		rt.live.Add(-1)
	}
}

// Live returns the number of coroutines that have not finished.
func (rt *Runtime) Live() int { return int(rt.live.Load()) }

// Ready returns the number of coroutines waiting to be resumed.
func (rt *Runtime) Ready() int { return int(rt.readyCount.Load()) }

// =============================================================================
// Coroutine API
// =============================================================================

// Self returns the coroutine running with ctx. ctx must be the context the
// coroutine was started with (or derived from it). Calling Self outside a
// coroutine is fatal.
func Self(ctx context.Context) *Coroutine {
	var co *Coroutine
	if ctx != nil {
		co, _ = ctx.Value(coroutineKey).(*Coroutine)
	}
	if co == nil {
		fatalf("coroutine: Self called outside a coroutine")
		return nil
	}
	return co
}

// Wait suspends the calling coroutine until Notify is called on it. The
// worker keeps running other coroutines, messages and timers meanwhile.
func Wait(ctx context.Context) {
	co := Self(ctx)
	if co == nil {
		return
	}
	if co.State() != CoroutineRunning {
		fatalf("coroutine: Wait called by coroutine %d in state %s", co.id, co.State())
		return
	}
	co.wait()
}

// Spawn starts fn as a new coroutine on the worker ctx belongs to. It runs
// after the caller next suspends. ctx must come from that worker's loop or
// one of its coroutines.
func Spawn(ctx context.Context, fn func(ctx context.Context)) *Coroutine {
	w := CurrentWorker(ctx)
	if w == nil {
		fatalf("coroutine: Spawn called outside a worker thread")
		return nil
	}
	return w.rt.spawn(fn)
}

// Sleep suspends the calling coroutine for d using its worker's timer
// handler. A Notify ends the sleep early; the timer is then cancelled.
func Sleep(ctx context.Context, d time.Duration) {
	co := Self(ctx)
	if co == nil {
		return
	}
	w := co.rt.worker
	gen := co.beginWait()
	tok := w.timers.AddTimer(d, func(context.Context) {
		co.rt.resume(co, gen)
	})
	w.syncTimerCount()

	co.park()

	w.timers.CancelTimer(tok)
	w.syncTimerCount()
}
