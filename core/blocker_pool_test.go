package core

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingJob struct {
	id   int
	log  *[]string
	mu   *sync.Mutex
	run  func()
	done chan struct{}
}

func (j *recordingJob) Run() {
	if j.run != nil {
		j.run()
	}
	j.mu.Lock()
	*j.log = append(*j.log, "run")
	j.mu.Unlock()
}

func (j *recordingJob) Done() {
	j.mu.Lock()
	*j.log = append(*j.log, "done")
	j.mu.Unlock()
	if j.done != nil {
		close(j.done)
	}
}

type funcJob struct {
	run  func()
	done func()
}

func (j funcJob) Run() {
	if j.run != nil {
		j.run()
	}
}

func (j funcJob) Done() {
	if j.done != nil {
		j.done()
	}
}

// TestBlockerPool_FIFO verifies a single blocker thread serves jobs in
// submission order
func TestBlockerPool_FIFO(t *testing.T) {
	// Arrange
	bp := NewBlockerPool(1, NewNoOpLogger(), nil, nil)
	defer bp.Close()

	var mu sync.Mutex
	var order []int
	gate := make(chan struct{})

	// Act - the first job holds the thread so the rest queue up
	_ = bp.DoJob(funcJob{run: func() { <-gate }})
	for i := 0; i < 20; i++ {
		id := i
		_ = bp.DoJob(funcJob{run: func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}})
	}
	close(gate)
	bp.Close()

	// Assert
	if len(order) != 20 {
		t.Fatalf("ran %d jobs, want 20", len(order))
	}
	for i, id := range order {
		if id != i {
			t.Fatalf("order[%d] = %d, want %d", i, id, i)
		}
	}
}

// TestBlockerPool_RunThenDone verifies Done follows Run on the same job
func TestBlockerPool_RunThenDone(t *testing.T) {
	bp := NewBlockerPool(2, NewNoOpLogger(), nil, nil)
	defer bp.Close()

	var mu sync.Mutex
	var log []string
	done := make(chan struct{})
	if err := bp.DoJob(&recordingJob{log: &log, mu: &mu, done: done}); err != nil {
		t.Fatalf("DoJob failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(log, ",") != "run,done" {
		t.Fatalf("steps = %v, want [run done]", log)
	}
}

// TestBlockerPool_ParallelThreads verifies jobs spread over all threads
// Given: A pool of 3 threads and 3 jobs that wait for each other
// When: The jobs are submitted
// Then: All three are active at once
func TestBlockerPool_ParallelThreads(t *testing.T) {
	bp := NewBlockerPool(3, NewNoOpLogger(), nil, nil)
	defer bp.Close()

	var arrived sync.WaitGroup
	arrived.Add(3)
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		_ = bp.DoJob(funcJob{run: func() {
			arrived.Done()
			<-release
		}})
	}

	waitCh := make(chan struct{})
	go func() { arrived.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not run concurrently")
	}
	if got := bp.Stats().Active; got != 3 {
		t.Errorf("Stats().Active = %d, want 3", got)
	}
	close(release)
}

// TestBlockerPool_CloseDrains verifies Close lets queued jobs finish and then
// rejects new ones
func TestBlockerPool_CloseDrains(t *testing.T) {
	// Arrange
	bp := NewBlockerPool(1, NewNoOpLogger(), nil, nil)
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		_ = bp.DoJob(funcJob{run: func() {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		}})
	}

	// Act
	bp.Close()

	// Assert
	if ran.Load() != 5 {
		t.Errorf("ran = %d after Close, want 5", ran.Load())
	}
	if err := bp.DoJob(funcJob{}); !errors.Is(err, ErrBlockerPoolClosed) {
		t.Errorf("DoJob after Close = %v, want ErrBlockerPoolClosed", err)
	}
	if !bp.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	stats := bp.Stats()
	if stats.Completed != 5 || stats.Queued != 0 || !stats.Closed {
		t.Errorf("Stats() = %s, want completed=5 queued=0 closed=true", stats)
	}

	// Close is idempotent
	bp.Close()
}

// TestBlockerPool_PanicIsFatal verifies a panicking job reaches the crash
// handler and the fatal hook, and skips Done
func TestBlockerPool_PanicIsFatal(t *testing.T) {
	// Arrange
	fatal := recordFatal(t)
	crash := &crashRecorder{}
	bp := NewBlockerPool(1, NewNoOpLogger(), nil, crash)

	var doneCalled atomic.Bool
	_ = bp.DoJob(funcJob{
		run:  func() { panic("disk on fire") },
		done: func() { doneCalled.Store(true) },
	})

	// Act
	bp.Close()

	// Assert
	if crash.count() != 1 || crash.where[0] != "blocker" || crash.values[0] != "disk on fire" {
		t.Fatalf("crash handler got where=%v values=%v", crash.where, crash.values)
	}
	if len(crash.stacks[0]) == 0 {
		t.Error("crash handler got an empty stack")
	}
	if fatal.count() != 1 {
		t.Errorf("fatal hook hit %d times, want 1", fatal.count())
	}
	if doneCalled.Load() {
		t.Error("Done ran after a panicking Run")
	}
}

type blockerMetricsStub struct {
	NilMetrics
	jobs atomic.Int32
}

func (m *blockerMetricsStub) RecordBlockerJob(d time.Duration) { m.jobs.Add(1) }

func TestBlockerPool_RecordsJobMetrics(t *testing.T) {
	metrics := &blockerMetricsStub{}
	bp := NewBlockerPool(2, NewNoOpLogger(), metrics, nil)
	for i := 0; i < 4; i++ {
		_ = bp.DoJob(funcJob{})
	}
	bp.Close()

	if got := metrics.jobs.Load(); got != 4 {
		t.Errorf("RecordBlockerJob called %d times, want 4", got)
	}
}

func TestBlockerPool_DefaultThreads(t *testing.T) {
	bp := NewBlockerPool(0, nil, nil, nil)
	defer bp.Close()
	if bp.Threads() != GenericBlockerThreadCount {
		t.Errorf("Threads() = %d, want %d", bp.Threads(), GenericBlockerThreadCount)
	}
}
