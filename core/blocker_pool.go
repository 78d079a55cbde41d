package core

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// BlockerJob is one unit of blocking work. Run executes on a blocker thread;
// Done follows on the same thread once Run returns. The two steps of one
// job never overlap.
type BlockerJob interface {
	Run()
	Done()
}

// BlockerStats is a snapshot of a BlockerPool.
type BlockerStats struct {
	Threads   int
	Queued    int
	Active    int
	Completed uint64
	Closed    bool
}

// BlockerPool is a fixed set of OS threads absorbing calls that cannot be
// made non-blocking. Jobs are served strictly FIFO from one shared queue.
type BlockerPool struct {
	threads int

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   *queue.Queue
	closed bool

	wg        sync.WaitGroup
	active    atomic.Int32
	completed atomic.Uint64

	logger  Logger
	metrics Metrics
	crash   CrashHandler
}

// NewBlockerPool starts threads blocker threads.
func NewBlockerPool(threads int, logger Logger, metrics Metrics, crash CrashHandler) *BlockerPool {
	if threads <= 0 {
		threads = GenericBlockerThreadCount
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	if crash == nil {
		crash = &DefaultCrashHandler{}
	}
	p := &BlockerPool{
		threads: threads,
		jobs:    queue.New(),
		logger:  logger,
		metrics: metrics,
		crash:   crash,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < threads; i++ {
		p.wg.Add(1)
		go p.threadLoop(i)
	}
	return p
}

// DoJob queues job. It never blocks on the job itself.
func (p *BlockerPool) DoJob(job BlockerJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrBlockerPoolClosed
	}
	p.jobs.Add(job)
	p.cond.Signal()
	return nil
}

// Close stops accepting jobs, lets already queued jobs finish and joins
// every blocker thread. A job that never returns blocks Close forever.
func (p *BlockerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("blocker pool closed", F("completed", p.completed.Load()))
}

// IsClosed reports whether Close has been called.
func (p *BlockerPool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// threadLoop is the main loop of each blocker thread
func (p *BlockerPool) threadLoop(id int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	debug.SetPanicOnFault(true)

	for {
		p.mu.Lock()
		for p.jobs.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.jobs.Length() == 0 {
			// Closed and drained
			p.mu.Unlock()
			return
		}
		job := p.jobs.Remove().(BlockerJob)
		p.mu.Unlock()

		p.active.Add(1)
		p.execute(id, job)
		p.active.Add(-1)
		p.completed.Add(1)
	}
}

func (p *BlockerPool) execute(id int, job BlockerJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("fatal fault", F("where", "blocker"), F("thread", id), F("value", r))
			p.crash.HandleCrash("blocker", id, r, debug.Stack())
			fatalf("blocker pool: fatal fault on blocker thread %d: %v", id, r)
		}
	}()
	start := time.Now()
	job.Run()
	p.metrics.RecordBlockerJob(time.Since(start))
	job.Done()
}

// Threads returns the number of blocker threads.
func (p *BlockerPool) Threads() int {
	return p.threads
}

// Stats returns a snapshot of the pool.
func (p *BlockerPool) Stats() BlockerStats {
	p.mu.Lock()
	queued := p.jobs.Length()
	closed := p.closed
	p.mu.Unlock()
	return BlockerStats{
		Threads:   p.threads,
		Queued:    queued,
		Active:    int(p.active.Load()),
		Completed: p.completed.Load(),
		Closed:    closed,
	}
}

func (s BlockerStats) String() string {
	return fmt.Sprintf("threads=%d queued=%d active=%d completed=%d closed=%t",
		s.Threads, s.Queued, s.Active, s.Completed, s.Closed)
}
