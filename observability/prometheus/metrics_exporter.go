package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Swind/go-thread-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// PumpBuckets are the histogram buckets of reactor pump durations.
	PumpBuckets []float64
	// BlockerBuckets are the histogram buckets of blocker job durations.
	BlockerBuckets []float64
}

// Reactor pumps are short; the default buckets start at 10µs.
var defaultPumpBuckets = prom.ExponentialBuckets(0.00001, 4, 10)

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	pumpDurationSeconds    *prom.HistogramVec
	queueDepth             *prom.GaugeVec
	messagesDeliveredTotal *prom.CounterVec
	blockerJobSeconds      prom.Histogram
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "threadpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	pumpBuckets := opts.PumpBuckets
	if len(pumpBuckets) == 0 {
		pumpBuckets = defaultPumpBuckets
	}
	blockerBuckets := opts.BlockerBuckets
	if len(blockerBuckets) == 0 {
		blockerBuckets = prom.DefBuckets
	}

	pumpVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "pump_duration_seconds",
		Help:      "Duration of one reactor pump in seconds.",
		Buckets:   pumpBuckets,
	}, []string{"worker"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Undelivered messages per worker.",
	}, []string{"worker"})
	deliveredVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "messages_delivered_total",
		Help:      "Total number of messages run per worker.",
	}, []string{"worker"})
	blockerHist := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "blocker_job_duration_seconds",
		Help:      "Duration of blocking calls run in the blocker pool.",
		Buckets:   blockerBuckets,
	})

	var err error
	if pumpVec, err = registerCollector(reg, pumpVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if deliveredVec, err = registerCollector(reg, deliveredVec); err != nil {
		return nil, err
	}
	if blockerHist, err = registerCollector(reg, blockerHist); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		pumpDurationSeconds:    pumpVec,
		queueDepth:             queueDepthVec,
		messagesDeliveredTotal: deliveredVec,
		blockerJobSeconds:      blockerHist,
	}, nil
}

// RecordPumpDuration records one reactor pump.
func (m *MetricsExporter) RecordPumpDuration(worker int, duration time.Duration) {
	if m == nil {
		return
	}
	m.pumpDurationSeconds.WithLabelValues(workerLabel(worker)).Observe(duration.Seconds())
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(worker int, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(workerLabel(worker)).Set(float64(depth))
}

// RecordMessageDelivered counts one message run on worker.
func (m *MetricsExporter) RecordMessageDelivered(worker int) {
	if m == nil {
		return
	}
	m.messagesDeliveredTotal.WithLabelValues(workerLabel(worker)).Inc()
}

// RecordBlockerJob records how long a blocking call took.
func (m *MetricsExporter) RecordBlockerJob(duration time.Duration) {
	if m == nil {
		return
	}
	m.blockerJobSeconds.Observe(duration.Seconds())
}

func workerLabel(worker int) string {
	if worker < 0 {
		return "unknown"
	}
	return strconv.Itoa(worker)
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
