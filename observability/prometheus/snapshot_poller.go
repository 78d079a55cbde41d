package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Swind/go-thread-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
// *core.ThreadPool satisfies it.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// BlockerSnapshotProvider provides blocker pool snapshots for a
// *core.BlockerPool used on its own.
type BlockerSnapshotProvider interface {
	Stats() core.BlockerStats
}

// SnapshotPoller periodically exports pool/worker Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	blockersMu sync.RWMutex
	blockers   map[string]BlockerSnapshotProvider

	poolThreads        *prom.GaugeVec
	poolShuttingDown   *prom.GaugeVec
	poolInterruptArmed *prom.GaugeVec

	workerPending   *prom.GaugeVec
	workerTimers    *prom.GaugeVec
	workerLive      *prom.GaugeVec
	workerReady     *prom.GaugeVec
	workerInFlight  *prom.GaugeVec
	workerStopped   *prom.GaugeVec
	workerDelivered *prom.GaugeVec

	blockerQueued    *prom.GaugeVec
	blockerActive    *prom.GaugeVec
	blockerCompleted *prom.GaugeVec
	blockerThreads   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "threadpool",
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval: interval,
		pools:    make(map[string]PoolSnapshotProvider),
		blockers: make(map[string]BlockerSnapshotProvider),

		poolThreads:        gauge("pool_threads", "Worker threads per pool.", "pool"),
		poolShuttingDown:   gauge("pool_shutting_down", "Pool shutdown requested (1=yes, 0=no).", "pool"),
		poolInterruptArmed: gauge("pool_interrupt_armed", "Interrupt message registered (1=yes, 0=no).", "pool"),

		workerPending:   gauge("worker_pending", "Undelivered messages per worker.", "pool", "worker"),
		workerTimers:    gauge("worker_timers", "Registered timers per worker.", "pool", "worker"),
		workerLive:      gauge("worker_live_coroutines", "Unfinished coroutines per worker.", "pool", "worker"),
		workerReady:     gauge("worker_ready_coroutines", "Coroutines waiting to resume per worker.", "pool", "worker"),
		workerInFlight:  gauge("worker_inflight_blocking", "Blocking calls awaiting their resume per worker.", "pool", "worker"),
		workerStopped:   gauge("worker_stopped", "Worker reactor loop exited (1=stopped, 0=running).", "pool", "worker"),
		workerDelivered: gauge("worker_delivered", "Messages accepted by the worker's hub snapshot.", "pool", "worker"),

		blockerQueued:    gauge("blocker_queued", "Blocking jobs waiting for a thread.", "pool"),
		blockerActive:    gauge("blocker_active", "Blocking jobs currently running.", "pool"),
		blockerCompleted: gauge("blocker_completed", "Blocking jobs completed snapshot.", "pool"),
		blockerThreads:   gauge("blocker_threads", "Blocker threads per pool.", "pool"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.poolThreads, &p.poolShuttingDown, &p.poolInterruptArmed,
		&p.workerPending, &p.workerTimers, &p.workerLive, &p.workerReady,
		&p.workerInFlight, &p.workerStopped, &p.workerDelivered,
		&p.blockerQueued, &p.blockerActive, &p.blockerCompleted, &p.blockerThreads,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddBlockerPool adds or replaces a standalone blocker pool provider by name.
func (p *SnapshotPoller) AddBlockerPool(name string, provider BlockerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "blocker")
	p.blockersMu.Lock()
	p.blockers[name] = provider
	p.blockersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolThreads.WithLabelValues(name).Set(float64(stats.Threads))
		p.poolShuttingDown.WithLabelValues(name).Set(boolGauge(stats.ShuttingDown))
		p.poolInterruptArmed.WithLabelValues(name).Set(boolGauge(stats.InterruptArmed))
		for _, ws := range stats.Workers {
			idx := strconv.Itoa(ws.Index)
			p.workerPending.WithLabelValues(name, idx).Set(float64(ws.Pending))
			p.workerTimers.WithLabelValues(name, idx).Set(float64(ws.Timers))
			p.workerLive.WithLabelValues(name, idx).Set(float64(ws.LiveCoroutines))
			p.workerReady.WithLabelValues(name, idx).Set(float64(ws.ReadyCoroutines))
			p.workerInFlight.WithLabelValues(name, idx).Set(float64(ws.InFlightBlocking))
			p.workerStopped.WithLabelValues(name, idx).Set(boolGauge(ws.State == core.WorkerStopped))
			p.workerDelivered.WithLabelValues(name, idx).Set(float64(ws.Delivered))
		}
		p.setBlocker(name, stats.Blocker)
	}
	p.poolsMu.RUnlock()

	p.blockersMu.RLock()
	for name, provider := range p.blockers {
		p.setBlocker(name, provider.Stats())
	}
	p.blockersMu.RUnlock()
}

func (p *SnapshotPoller) setBlocker(name string, stats core.BlockerStats) {
	p.blockerQueued.WithLabelValues(name).Set(float64(stats.Queued))
	p.blockerActive.WithLabelValues(name).Set(float64(stats.Active))
	p.blockerCompleted.WithLabelValues(name).Set(float64(stats.Completed))
	p.blockerThreads.WithLabelValues(name).Set(float64(stats.Threads))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
