// Package threadpool provides the execution substrate of a server process:
// a fixed set of reactor threads, each scheduling cooperative coroutines,
// plus a blocker pool of OS threads for calls that cannot be made
// non-blocking.
//
// # Quick Start
//
// Create a pool, hand it an initial message and block in Run until some
// coroutine calls Shutdown:
//
//	pool := threadpool.New(4) // 4 worker threads
//	err := pool.Run(threadpool.MessageFunc(func(ctx context.Context) {
//		data, err := threadpool.RunInBlockerPoolE(ctx, func() ([]byte, error) {
//			return os.ReadFile("config.json")
//		})
//		// ... back on thread 0
//		threadpool.CurrentPool(ctx).Shutdown()
//	}))
//	pool.Close()
//
// # Key Concepts
//
// Worker: One reactor thread, locked to an OS thread. It waits on an event
// source (epoll on Linux), then delivers queued messages, fires due timers
// and resumes ready coroutines.
//
// Message: The unit of cross-thread delivery. ThreadPool.Deliver queues a
// message on a worker by index; the worker runs it in a fresh coroutine.
//
// Coroutine: Code running on a worker. Coroutines of one worker never run
// at the same time and only switch at Wait, so state owned by a worker
// needs no locks.
//
// Blocker pool: OS threads serving RunInBlockerPool. The calling coroutine
// is suspended, its worker keeps serving everything else, and the result is
// returned on the calling worker.
//
// # Signals and faults
//
// While Run blocks, SIGINT and SIGTERM are routed to the message installed
// with SetInterruptMessage, delivered to thread 0. A panic in a coroutine
// or blocker job, including a memory fault, is reported to the configured
// CrashHandler and then terminates the process.
package threadpool
