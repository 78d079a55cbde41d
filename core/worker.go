package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerState is the lifecycle state of a worker thread.
type WorkerState int32

const (
	// WorkerRunning services messages, timers and coroutines normally.
	WorkerRunning WorkerState = iota
	// WorkerShuttingDown drains already queued work before exiting.
	WorkerShuttingDown
	// WorkerStopped means the reactor loop has exited.
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerShuttingDown:
		return "shutting_down"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker is one reactor thread. It owns an EventSource, a MessageHub, a
// TimerHandler and a coroutine Runtime, and its loop goroutine stays locked
// to one OS thread for the worker's whole life.
//
// Everything except the hub, InitiateShutDown and the read-only accessors
// is confined to the worker's own loop and coroutines.
type Worker struct {
	pool  *ThreadPool
	index int
	ctx   context.Context

	source EventSource
	hub    *MessageHub
	timers *TimerHandler
	rt     *Runtime

	// Shutdown request, separate from the pool-wide lock
	shutdownMu        sync.Mutex
	shutdownRequested bool

	state     atomic.Int32
	historyMu sync.Mutex
	history   []WorkerState

	inflight atomic.Int32
	started  chan struct{}
	stopped  chan struct{}
	inbox    []Message

	statsTimer    *TimerToken
	statsInterval time.Duration
	lastSample    atomic.Pointer[WorkerStats]

	pumps       atomic.Uint64
	messagesRun atomic.Uint64
	timersFired atomic.Uint64
	timerCount  atomic.Int32

	logger       Logger
	metrics      Metrics
	crashHandler CrashHandler
}

func newWorker(pool *ThreadPool, index int, cfg Config) (*Worker, error) {
	source, err := NewEventSource(cfg.EventSource)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", index, err)
	}

	w := &Worker{
		pool:          pool,
		index:         index,
		source:        source,
		hub:           newMessageHub(source),
		timers:        NewTimerHandler(),
		history:       []WorkerState{WorkerRunning},
		started:       make(chan struct{}),
		stopped:       make(chan struct{}),
		statsInterval: cfg.StatsInterval,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		crashHandler:  cfg.CrashHandler,
	}
	w.ctx = context.WithValue(context.Background(), threadKey, &threadIdentity{
		pool:   pool,
		index:  index,
		worker: w,
	})
	w.rt = newRuntime(w)
	w.state.Store(int32(WorkerRunning))

	// Periodic maintenance: statistics sampling
	w.statsTimer = w.timers.AddPeriodicTimer(w.statsInterval, w.sampleStats)
	w.syncTimerCount()
	return w, nil
}

// Index returns the worker's fixed index in its pool.
func (w *Worker) Index() int { return w.index }

// Pool returns the pool owning the worker.
func (w *Worker) Pool() *ThreadPool { return w.pool }

// Hub returns the worker's inbox.
func (w *Worker) Hub() *MessageHub { return w.hub }

// EventSource returns the source the worker's loop waits on. I/O
// collaborators may type-assert it (e.g. to *EpollEventSource) to register
// descriptors.
func (w *Worker) EventSource() EventSource { return w.source }

// Context returns the worker's base context, carrying its identity.
func (w *Worker) Context() context.Context { return w.ctx }

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// History returns every state the worker has been in, in order.
func (w *Worker) History() []WorkerState {
	w.historyMu.Lock()
	defer w.historyMu.Unlock()
	out := make([]WorkerState, len(w.history))
	copy(out, w.history)
	return out
}

// Started is closed once the reactor loop is live.
func (w *Worker) Started() <-chan struct{} { return w.started }

// Stopped is closed once the reactor loop has exited.
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

func (w *Worker) transition(from, to WorkerState) bool {
	if !w.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	w.historyMu.Lock()
	w.history = append(w.history, to)
	w.historyMu.Unlock()
	return true
}

// InitiateShutDown asks the worker to stop. Callable from any goroutine;
// repeated calls have no further effect. The loop exits once ShouldShutDown
// holds.
func (w *Worker) InitiateShutDown() {
	if w.markShuttingDown() {
		w.logger.Debug("worker shutting down", F("worker", w.index))
	}
	_ = w.source.Wake()
}

// markShuttingDown records the stop request, moves the state to
// shutting_down and closes the hub to application messages, all under
// shutdownMu so the loop never sees the request before the state change.
func (w *Worker) markShuttingDown() bool {
	w.shutdownMu.Lock()
	defer w.shutdownMu.Unlock()
	if w.shutdownRequested {
		return false
	}
	w.shutdownRequested = true
	w.transition(WorkerRunning, WorkerShuttingDown)
	w.hub.stopAccepting()
	return true
}

// ShouldShutDown reports whether a stop was requested and nothing this
// worker must still drain is outstanding: no queued message, no ready
// coroutine and no blocker job whose resume it has yet to receive.
func (w *Worker) ShouldShutDown() bool {
	w.shutdownMu.Lock()
	requested := w.shutdownRequested
	w.shutdownMu.Unlock()

	return requested &&
		w.inflight.Load() == 0 &&
		w.hub.Len() == 0 &&
		w.rt.Ready() == 0
}

// loop is the reactor; it occupies a dedicated, locked OS thread
func (w *Worker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.stopped)

	w.logger.Debug("worker started", F("worker", w.index))
	close(w.started)

	for {
		w.pump()
		if w.ShouldShutDown() && w.hub.closeIfEmpty() {
			break
		}

		timeout := time.Duration(-1)
		if d, ok := w.timers.NextTimeout(time.Now()); ok {
			timeout = d
		}
		if err := w.source.Wait(timeout); err != nil {
			w.logger.Error("event source wait failed", F("worker", w.index), F("error", err))
			if err == ErrEventSourceClosed {
				w.hub.closeIfEmpty()
				break
			}
		}
	}

	w.timers.CancelTimer(w.statsTimer)
	w.syncTimerCount()
	// A closed event source ends the loop without a stop request.
	w.markShuttingDown()
	w.transition(WorkerShuttingDown, WorkerStopped)
	w.logger.Debug("worker stopped", F("worker", w.index),
		F("messages", w.messagesRun.Load()), F("live_coroutines", w.rt.Live()))
}

// pump is called once per wake of the event source. It delivers pending
// messages, spawns due timers and resumes every ready coroutine.
func (w *Worker) pump() {
	start := time.Now()
	w.pumps.Add(1)

	w.inbox = w.hub.drain(w.inbox[:0])
	for i, msg := range w.inbox {
		w.inbox[i] = nil
		w.dispatch(msg)
	}

	for _, tok := range w.timers.Due(time.Now()) {
		w.rt.spawn(tok.fn)
		w.timersFired.Add(1)
	}

	w.rt.runReady()
	w.syncTimerCount()
	w.metrics.RecordPumpDuration(w.index, time.Since(start))
}

func (w *Worker) dispatch(msg Message) {
	if lm, ok := msg.(loopMessage); ok {
		lm(w)
		return
	}
	w.rt.spawn(msg.Run)
	w.messagesRun.Add(1)
	w.metrics.RecordMessageDelivered(w.index)
}

// resumeBlocked runs on the worker's loop when a blocker job it issued is done.
func (w *Worker) resumeBlocked(co *Coroutine, gen uint64) {
	w.inflight.Add(-1)
	if !w.rt.resume(co, gen) {
		fatalf("coroutine: blocking call of coroutine %d completed outside its suspension (state %s)", co.id, co.State())
	}
}

func (w *Worker) syncTimerCount() {
	w.syncTimerCount()
}

func (w *Worker) crash(where string, index int, value any, stack []byte) {
	w.logger.Error("fatal fault", F("where", where), F("worker", index), F("value", value))
	w.crashHandler.HandleCrash(where, index, value, stack)
	fatalf("thread pool: fatal fault on %s %d: %v", where, index, value)
}

// =============================================================================
// Timers
// =============================================================================

// AddTimer registers fn to run once, in a new coroutine, after delay. ctx
// must belong to this worker; other threads deliver a message to it and
// register the timer from there.
func (w *Worker) AddTimer(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) *TimerToken {
	if !w.mustBeOwner(ctx, "AddTimer") {
		return nil
	}
	return w.timers.AddTimer(delay, fn)
}

// AddPeriodicTimer registers fn to run every interval, each time in a new
// coroutine. ctx must belong to this worker.
func (w *Worker) AddPeriodicTimer(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *TimerToken {
	if !w.mustBeOwner(ctx, "AddPeriodicTimer") {
		return nil
	}
	return w.timers.AddPeriodicTimer(interval, fn)
}

// CancelTimer removes a timer registered on this worker. ctx must belong to
// this worker.
func (w *Worker) CancelTimer(ctx context.Context, tok *TimerToken) bool {
	if !w.mustBeOwner(ctx, "CancelTimer") {
		return false
	}
	return w.timers.CancelTimer(tok)
}

func (w *Worker) mustBeOwner(ctx context.Context, op string) bool {
	if CurrentWorker(ctx) != w {
		fatalf("worker %d: %s called from a foreign thread", w.index, op)
		return false
	}
	return true
}

// =============================================================================
// Statistics
// =============================================================================

func (w *Worker) sampleStats(ctx context.Context) {
	s := w.Stats()
	w.lastSample.Store(&s)
	w.metrics.RecordQueueDepth(w.index, s.Pending)
}

// LastSample returns the snapshot taken by the most recent maintenance
// tick, or nil before the first one.
func (w *Worker) LastSample() *WorkerStats {
	return w.lastSample.Load()
}

// Stats returns a snapshot of the worker. Safe from any goroutine.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Index:            w.index,
		State:            w.State(),
		Pending:          w.hub.Len(),
		Delivered:        w.hub.Delivered(),
		Timers:           int(w.timerCount.Load()),
		LiveCoroutines:   w.rt.Live(),
		ReadyCoroutines:  w.rt.Ready(),
		InFlightBlocking: int(w.inflight.Load()),
		Pumps:            w.pumps.Load(),
		MessagesRun:      w.messagesRun.Load(),
		TimersFired:      w.timersFired.Load(),
		SampledAt:        time.Now(),
	}
}
