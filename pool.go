package threadpool

import (
	"sync"

	"github.com/Swind/go-thread-pool/core"
)

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

var (
	globalThreadPool *core.ThreadPool
	globalRunDone    chan struct{}
	globalMu         sync.Mutex
)

// InitGlobalThreadPool creates the process-wide pool with the given number
// of worker threads and starts running it in the background. The global
// pool does not route OS signals.
// Later calls are no-ops until ShutdownGlobalThreadPool.
func InitGlobalThreadPool(threads int) {
	cfg := core.DefaultConfig()
	cfg.Threads = threads
	InitGlobalThreadPoolWithConfig(cfg)
}

// InitGlobalThreadPoolWithConfig is InitGlobalThreadPool with a full config.
func InitGlobalThreadPoolWithConfig(cfg core.Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}

	cfg.DisableSignalHandling = true
	pool := core.NewWithConfig(cfg)
	if pool == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pool.Run(nil)
	}()

	globalThreadPool = pool
	globalRunDone = done
}

// GetGlobalThreadPool returns the global thread pool instance.
// It panics if InitGlobalThreadPool has not been called.
func GetGlobalThreadPool() *core.ThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		panic("GlobalThreadPool not initialized. Call InitGlobalThreadPool() first.")
	}
	return globalThreadPool
}

// ShutdownGlobalThreadPool shuts the global pool down, waits for its
// workers to drain and releases its threads.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		return
	}
	globalThreadPool.Shutdown()
	<-globalRunDone
	globalThreadPool.Close()
	globalThreadPool = nil
	globalRunDone = nil
}

// Post delivers msg to worker index of the global pool.
func Post(index int, msg Message) error {
	return GetGlobalThreadPool().Deliver(index, msg)
}
