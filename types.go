package threadpool

import (
	"context"
	"time"

	"github.com/Swind/go-thread-pool/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the threadpool package for most use cases.

// Message is the unit of cross-thread delivery
type Message = core.Message

// MessageFunc adapts a function to Message
type MessageFunc = core.MessageFunc

// ThreadPool owns the worker threads and the blocker pool
type ThreadPool = core.ThreadPool

// Worker is one reactor thread of a ThreadPool
type Worker = core.Worker

// Coroutine is a cooperatively scheduled unit of execution on a Worker
type Coroutine = core.Coroutine

// TimerToken identifies a registered timer
type TimerToken = core.TimerToken

// Config holds the construction options of a ThreadPool
type Config = core.Config

// PoolStats and WorkerStats are point-in-time snapshots
type (
	PoolStats   = core.PoolStats
	WorkerStats = core.WorkerStats
)

const (
	MaxThreads                = core.MaxThreads
	GenericBlockerThreadCount = core.GenericBlockerThreadCount
)

var (
	ErrInvalidThreadIndex = core.ErrInvalidThreadIndex
	ErrPoolAlreadyRan     = core.ErrPoolAlreadyRan
	ErrWorkerStopped      = core.ErrWorkerStopped
	ErrWorkerShuttingDown = core.ErrWorkerShuttingDown
	ErrBlockerPoolClosed  = core.ErrBlockerPoolClosed
)

// DefaultConfig returns one worker per CPU with default handlers.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// New creates a pool of nThreads workers. See core.New.
func New(nThreads int) *ThreadPool {
	return core.New(nThreads)
}

// NewWithConfig creates a pool from cfg. See core.NewWithConfig.
func NewWithConfig(cfg Config) *ThreadPool {
	return core.NewWithConfig(cfg)
}

// Self returns the coroutine running with ctx.
func Self(ctx context.Context) *Coroutine {
	return core.Self(ctx)
}

// Wait suspends the calling coroutine until it is notified.
func Wait(ctx context.Context) {
	core.Wait(ctx)
}

// Spawn starts fn as a new coroutine on the worker ctx belongs to.
func Spawn(ctx context.Context, fn func(ctx context.Context)) *Coroutine {
	return core.Spawn(ctx, fn)
}

// Sleep suspends the calling coroutine for at least d.
func Sleep(ctx context.Context, d time.Duration) {
	core.Sleep(ctx, d)
}

// RunInBlockerPool runs fn on a blocker thread while the calling coroutine
// is suspended, and returns fn's result on the calling worker.
func RunInBlockerPool[T any](ctx context.Context, fn func() T) T {
	return core.RunInBlockerPool(ctx, fn)
}

// RunInBlockerPoolE is RunInBlockerPool for calls returning (T, error).
func RunInBlockerPoolE[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return core.RunInBlockerPoolE(ctx, fn)
}

// CurrentPool returns the pool ctx belongs to, or nil off-pool.
func CurrentPool(ctx context.Context) *ThreadPool {
	return core.CurrentPool(ctx)
}

// CurrentThreadIndex returns the worker index ctx belongs to, or -1 off-pool.
func CurrentThreadIndex(ctx context.Context) int {
	return core.CurrentThreadIndex(ctx)
}

// CurrentWorker returns the worker ctx belongs to, or nil off-pool.
func CurrentWorker(ctx context.Context) *Worker {
	return core.CurrentWorker(ctx)
}
