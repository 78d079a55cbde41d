package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Swind/go-thread-pool/core"
)

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

type blockerStub struct {
	stats core.BlockerStats
}

func (s blockerStub) Stats() core.BlockerStats { return s.stats }

func TestSnapshotPoller_CollectsPoolAndWorkerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Threads:        2,
		ShuttingDown:   true,
		InterruptArmed: true,
		Workers: []core.WorkerStats{
			{Index: 0, State: core.WorkerRunning, Pending: 3, LiveCoroutines: 5, InFlightBlocking: 1},
			{Index: 1, State: core.WorkerStopped, Timers: 2},
		},
		Blocker: core.BlockerStats{Threads: 2, Queued: 4, Active: 2, Completed: 9},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.workerPending.WithLabelValues("pool-a", "0"))
		queued := testutil.ToFloat64(poller.blockerQueued.WithLabelValues("pool-a"))
		return pending == 3 && queued == 4
	})

	if got := testutil.ToFloat64(poller.poolThreads.WithLabelValues("pool-a")); got != 2 {
		t.Fatalf("pool threads gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.poolShuttingDown.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool shutting down gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.workerLive.WithLabelValues("pool-a", "0")); got != 5 {
		t.Fatalf("live coroutines gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(poller.workerStopped.WithLabelValues("pool-a", "1")); got != 1 {
		t.Fatalf("worker stopped gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.workerTimers.WithLabelValues("pool-a", "1")); got != 2 {
		t.Fatalf("worker timers gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.blockerCompleted.WithLabelValues("pool-a")); got != 9 {
		t.Fatalf("blocker completed gauge = %v, want 9", got)
	}
}

func TestSnapshotPoller_StandaloneBlockerPool(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddBlockerPool("", blockerStub{stats: core.BlockerStats{Threads: 3, Active: 1}})
	poller.collectOnce()

	if got := testutil.ToFloat64(poller.blockerThreads.WithLabelValues("blocker")); got != 3 {
		t.Fatalf("blocker threads gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.blockerActive.WithLabelValues("blocker")); got != 1 {
		t.Fatalf("blocker active gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func TestSnapshotPoller_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("first NewSnapshotPoller failed: %v", err)
	}
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("second NewSnapshotPoller failed: %v", err)
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
