package core

import (
	"errors"
	"log"
)

var (
	// ErrBlockerPoolClosed is returned by DoJob after Close.
	ErrBlockerPoolClosed = errors.New("blocker pool is closed")

	// ErrInvalidThreadIndex is returned when a message targets a worker index
	// outside 0..N-1.
	ErrInvalidThreadIndex = errors.New("invalid thread index")

	// ErrWorkerStopped is returned when a message is delivered to a worker
	// whose reactor loop has already exited.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrWorkerShuttingDown is returned when an application message is
	// delivered to a worker that has been asked to stop.
	ErrWorkerShuttingDown = errors.New("worker shutting down")

	// ErrEventSourceClosed is returned by Wait/Wake after Close.
	ErrEventSourceClosed = errors.New("event source closed")

	// ErrUnknownEventSource is returned for an unrecognised Config.EventSource.
	ErrUnknownEventSource = errors.New("unknown event source")

	// ErrPoolAlreadyRan is returned by a second call to Run.
	ErrPoolAlreadyRan = errors.New("thread pool already ran")
)

// fatalf terminates the process on configuration and lifecycle-ordering
// errors. Tests replace it to observe the failure instead of exiting.
var fatalf = log.Fatalf
