package core

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fatalRecorder replaces fatalf for the duration of a test. The stub
// returns instead of exiting, so callers continue past the fatal point;
// tests only assert that it was reached.
type fatalRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func recordFatal(t *testing.T) *fatalRecorder {
	t.Helper()
	rec := &fatalRecorder{}
	prev := fatalf
	fatalf = func(format string, args ...any) {
		rec.mu.Lock()
		rec.msgs = append(rec.msgs, fmt.Sprintf(format, args...))
		rec.mu.Unlock()
	}
	t.Cleanup(func() { fatalf = prev })
	return rec
}

func (r *fatalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *fatalRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

// crashRecorder is a CrashHandler that keeps what it was given.
type crashRecorder struct {
	mu     sync.Mutex
	where  []string
	values []any
	stacks [][]byte
}

func (c *crashRecorder) HandleCrash(where string, index int, value any, stack []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.where = append(c.where, where)
	c.values = append(c.values, value)
	c.stacks = append(c.stacks, stack)
}

func (c *crashRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func testConfig(threads int) Config {
	cfg := DefaultConfig()
	cfg.Threads = threads
	cfg.Logger = NewNoOpLogger()
	cfg.DisableSignalHandling = true
	return cfg
}

// newTestWorker builds a worker outside any pool. Its loop is not started:
// tests drive the runtime directly with spawn and runReady.
func newTestWorker(t *testing.T, crash CrashHandler) *Worker {
	t.Helper()
	cfg := testConfig(1).withDefaults()
	cfg.EventSource = EventSourceChannel
	if crash != nil {
		cfg.CrashHandler = crash
	}
	w, err := newWorker(nil, 0, cfg)
	if err != nil {
		t.Fatalf("newWorker failed: %v", err)
	}
	t.Cleanup(func() { _ = w.source.Close() })
	return w
}

// runPool runs initial on a fresh pool and closes it once Run returns.
func runPool(t *testing.T, cfg Config, initial Message) *ThreadPool {
	t.Helper()
	pool := NewWithConfig(cfg)
	if pool == nil {
		t.Fatal("NewWithConfig returned nil")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(initial) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return within 5s")
	}
	pool.Close()
	return pool
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
