package core

import (
	"fmt"
	"os"
	"time"
)

// =============================================================================
// CrashHandler: diagnostic capture for fatal faults
// =============================================================================

// CrashHandler receives the diagnostics of a fatal fault before the process
// terminates. A fault is a panic escaping a coroutine or a blocker job,
// including memory faults turned into panics by debug.SetPanicOnFault.
//
// There is no recovery: after HandleCrash returns the process exits.
type CrashHandler interface {
	// HandleCrash is called once per fault.
	//
	// Parameters:
	// - where: "worker" or "blocker"
	// - index: The worker index or blocker thread id
	// - value: The recovered panic value
	// - stack: The stack trace of the faulting goroutine
	HandleCrash(where string, index int, value any, stack []byte)
}

// DefaultCrashHandler writes the fault and its stack trace to stderr.
type DefaultCrashHandler struct{}

// HandleCrash prints crash information to stderr.
func (h *DefaultCrashHandler) HandleCrash(where string, index int, value any, stack []byte) {
	fmt.Fprintf(os.Stderr, "[%s %d] fatal fault: %v\nStack trace:\n%s", where, index, value, stack)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics receives scheduler measurements. Implementations can forward them
// to Prometheus, StatsD, etc.
//
// Methods are called from reactor and blocker threads and must not block.
type Metrics interface {
	// RecordPumpDuration records how long one reactor pump took on a worker.
	RecordPumpDuration(worker int, duration time.Duration)

	// RecordQueueDepth records the undelivered message count of a worker.
	// It is sampled by the worker's periodic maintenance timer.
	RecordQueueDepth(worker int, depth int)

	// RecordMessageDelivered records one message executed by a worker.
	RecordMessageDelivered(worker int)

	// RecordBlockerJob records how long a blocker job's Run step took.
	RecordBlockerJob(duration time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordPumpDuration is a no-op.
func (m *NilMetrics) RecordPumpDuration(worker int, duration time.Duration) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(worker int, depth int) {}

// RecordMessageDelivered is a no-op.
func (m *NilMetrics) RecordMessageDelivered(worker int) {}

// RecordBlockerJob is a no-op.
func (m *NilMetrics) RecordBlockerJob(duration time.Duration) {}
