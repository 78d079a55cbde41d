package core

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// ThreadPool owns a fixed set of worker threads and the blocker pool behind
// RunInBlockerPool. There is normally one per process. It is responsible for
// starting and shutting down the workers and for routing OS signals.
//
// Lifecycle: New starts every worker loop; Run delivers the initial message
// and blocks until Shutdown; Close joins the worker threads and releases
// the blocker pool, and is only valid after Run returned.
type ThreadPool struct {
	cfg     Config
	workers []*Worker
	wg      sync.WaitGroup

	// interrupt holds the message delivered on the next SIGINT/SIGTERM.
	// A single-word swap keeps the signal path lock-free.
	interrupt atomic.Pointer[messageSlot]

	// Pool-wide shutdown, used to wake the goroutine blocked in Run
	shutdownMu   sync.Mutex
	shutdownCond *sync.Cond
	doShutdown   bool

	blockers *BlockerPool

	ran       atomic.Bool
	finished  atomic.Bool
	closeOnce sync.Once

	logger Logger
}

type messageSlot struct {
	msg Message
}

// New creates a pool of nThreads workers with the default config.
// nThreads outside 1..MaxThreads is a fatal configuration error.
func New(nThreads int) *ThreadPool {
	cfg := DefaultConfig()
	cfg.Threads = nThreads
	return NewWithConfig(cfg)
}

// NewWithConfig creates a pool from cfg and starts its worker threads and
// blocker pool.
func NewWithConfig(cfg Config) *ThreadPool {
	cfg = cfg.withDefaults()
	if cfg.Threads < 1 || cfg.Threads > MaxThreads {
		fatalf("thread pool: %d threads requested, must be within 1..%d", cfg.Threads, MaxThreads)
		return nil
	}

	p := &ThreadPool{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	p.shutdownCond = sync.NewCond(&p.shutdownMu)

	p.workers = make([]*Worker, cfg.Threads)
	for i := range p.workers {
		w, err := newWorker(p, i, cfg)
		if err != nil {
			for _, built := range p.workers[:i] {
				_ = built.source.Close()
			}
			fatalf("thread pool: %v", err)
			return nil
		}
		p.workers[i] = w
	}

	p.blockers = NewBlockerPool(cfg.BlockerThreads, cfg.Logger, cfg.Metrics, cfg.CrashHandler)

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.loop()
		}(w)
	}

	p.logger.Debug("thread pool created",
		F("threads", cfg.Threads), F("blocker_threads", cfg.BlockerThreads))
	return p
}

// NumThreads returns the number of worker threads.
func (p *ThreadPool) NumThreads() int {
	return len(p.workers)
}

// Worker returns the worker at index, or nil when out of range.
func (p *ThreadPool) Worker(index int) *Worker {
	if index < 0 || index >= len(p.workers) {
		return nil
	}
	return p.workers[index]
}

// BlockerPool returns the pool serving RunInBlockerPool.
func (p *ThreadPool) BlockerPool() *BlockerPool {
	return p.blockers
}

// Deliver queues msg on the worker at index. Callable from any goroutine.
// A worker that is shutting down refuses it with ErrWorkerShuttingDown, a
// stopped one with ErrWorkerStopped.
func (p *ThreadPool) Deliver(index int, msg Message) error {
	if index < 0 || index >= len(p.workers) {
		return fmt.Errorf("%w: %d (pool has %d threads)", ErrInvalidThreadIndex, index, len(p.workers))
	}
	if err := p.workers[index].hub.Deliver(msg); err != nil {
		return fmt.Errorf("deliver to thread %d: %w", index, err)
	}
	return nil
}

// SetInterruptMessage installs msg as the message delivered when the process
// next receives SIGINT or SIGTERM, and returns the previously installed one
// (nil if none). The slot empties on delivery: to hear about further
// signals, install a message again. The caller owns the returned message.
func (p *ThreadPool) SetInterruptMessage(msg Message) Message {
	var next *messageSlot
	if msg != nil {
		next = &messageSlot{msg: msg}
	}
	prev := p.interrupt.Swap(next)
	if prev == nil {
		return nil
	}
	return prev.msg
}

// Run delivers initial to worker 0 once every reactor loop is live, then
// blocks until Shutdown has been called and every worker has stopped.
// While Run blocks, SIGINT and SIGTERM are routed to the interrupt message.
//
// Run must be called from a goroutine outside the pool. A second call
// returns ErrPoolAlreadyRan.
func (p *ThreadPool) Run(initial Message) error {
	if !p.ran.CompareAndSwap(false, true) {
		return ErrPoolAlreadyRan
	}
	defer p.finished.Store(true)

	if !p.cfg.DisableSignalHandling {
		stop := p.routeSignals()
		defer stop()
	}

	for _, w := range p.workers {
		<-w.started
	}

	if initial != nil {
		if err := p.workers[0].hub.Deliver(initial); err != nil {
			p.logger.Warn("initial message not delivered", F("worker", 0), F("error", err))
		}
	}

	p.shutdownMu.Lock()
	for !p.doShutdown {
		p.shutdownCond.Wait()
	}
	p.shutdownMu.Unlock()

	for _, w := range p.workers {
		<-w.stopped
	}
	p.logger.Info("thread pool stopped", F("threads", len(p.workers)))
	return nil
}

// Shutdown asks every worker to stop and wakes Run. Callable from any
// goroutine, including a worker's own coroutines; repeated or concurrent
// calls have the same effect as one.
func (p *ThreadPool) Shutdown() {
	p.shutdownMu.Lock()
	first := !p.doShutdown
	p.doShutdown = true
	p.shutdownCond.Broadcast()
	p.shutdownMu.Unlock()

	if first {
		p.logger.Info("thread pool shutdown requested", F("threads", len(p.workers)))
	}
	for _, w := range p.workers {
		w.InitiateShutDown()
	}
}

// IsShuttingDown reports whether Shutdown has been called.
func (p *ThreadPool) IsShuttingDown() bool {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()
	return p.doShutdown
}

// Close joins the worker threads, releases the blocker pool and the event
// sources. Calling it before Run has returned is fatal. Idempotent.
func (p *ThreadPool) Close() {
	if !p.finished.Load() {
		fatalf("thread pool: Close called before Run returned")
		return
	}
	p.closeOnce.Do(func() {
		p.wg.Wait()
		p.blockers.Close()
		for _, w := range p.workers {
			if err := w.source.Close(); err != nil {
				p.logger.Warn("event source close failed", F("worker", w.index), F("error", err))
			}
		}
	})
}

// Stats returns a snapshot of the pool and all its workers.
func (p *ThreadPool) Stats() PoolStats {
	stats := PoolStats{
		Threads:        len(p.workers),
		ShuttingDown:   p.IsShuttingDown(),
		InterruptArmed: p.interrupt.Load() != nil,
		Workers:        make([]WorkerStats, len(p.workers)),
		Blocker:        p.blockers.Stats(),
	}
	for i, w := range p.workers {
		stats.Workers[i] = w.Stats()
	}
	return stats
}

// =============================================================================
// Signal routing
// =============================================================================

// interruptThread receives interrupt messages: the thread the initial
// message went to.
const interruptThread = 0

func (p *ThreadPool) routeSignals() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		for {
			select {
			case sig := <-sigCh:
				p.handleSignal(sig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
		<-exited
	}
}

// handleSignal takes the interrupt message, leaving the slot empty, and
// delivers it. Without a registered message the signal is only logged.
func (p *ThreadPool) handleSignal(sig os.Signal) {
	slot := p.interrupt.Swap(nil)
	if slot == nil {
		p.logger.Info("signal received, no interrupt message registered", F("signal", sig))
		return
	}
	p.logger.Info("signal received, delivering interrupt message",
		F("signal", sig), F("worker", interruptThread))
	if err := p.workers[interruptThread].hub.Deliver(slot.msg); err != nil {
		p.logger.Warn("interrupt message not delivered", F("signal", sig), F("error", err))
	}
}
