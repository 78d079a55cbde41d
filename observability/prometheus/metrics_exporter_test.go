package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/Swind/go-thread-pool/core"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("threadpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordPumpDuration(1, 40*time.Microsecond)
	exporter.RecordPumpDuration(1, 2*time.Millisecond)
	exporter.RecordQueueDepth(1, 7)
	exporter.RecordMessageDelivered(1)
	exporter.RecordMessageDelivered(1)
	exporter.RecordMessageDelivered(2)
	exporter.RecordBlockerJob(250 * time.Millisecond)

	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("1")); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.messagesDeliveredTotal.WithLabelValues("1")); got != 2 {
		t.Fatalf("delivered total worker 1 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.messagesDeliveredTotal.WithLabelValues("2")); got != 1 {
		t.Fatalf("delivered total worker 2 = %v, want 1", got)
	}

	pumpCount, err := histogramSampleCount(exporter.pumpDurationSeconds.WithLabelValues("1"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if pumpCount != 2 {
		t.Fatalf("pump sample count = %d, want 2", pumpCount)
	}

	blockerCount, err := histogramSampleCount(exporter.blockerJobSeconds)
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if blockerCount != 1 {
		t.Fatalf("blocker sample count = %d, want 1", blockerCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("threadpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("threadpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordMessageDelivered(0)
	second.RecordMessageDelivered(0)

	got := testutil.ToFloat64(first.messagesDeliveredTotal.WithLabelValues("0"))
	if got != 2 {
		t.Fatalf("shared delivered counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter

	// Must not panic
	exporter.RecordPumpDuration(0, time.Millisecond)
	exporter.RecordQueueDepth(0, 1)
	exporter.RecordMessageDelivered(0)
	exporter.RecordBlockerJob(time.Millisecond)
}

func TestMetricsExporter_WithPool(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("threadpool", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	cfg := core.DefaultConfig()
	cfg.Threads = 1
	cfg.Logger = core.NewNoOpLogger()
	cfg.Metrics = exporter
	cfg.DisableSignalHandling = true
	pool := core.NewWithConfig(cfg)

	err = pool.Run(core.MessageFunc(func(ctx context.Context) {
		v := core.RunInBlockerPool(ctx, func() int { return 1 })
		if v != 1 {
			t.Errorf("RunInBlockerPool = %d, want 1", v)
		}
		core.CurrentPool(ctx).Shutdown()
	}))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	pool.Close()

	if got := testutil.ToFloat64(exporter.messagesDeliveredTotal.WithLabelValues("0")); got != 1 {
		t.Fatalf("delivered total = %v, want 1", got)
	}
	blockerCount, err := histogramSampleCount(exporter.blockerJobSeconds)
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if blockerCount != 1 {
		t.Fatalf("blocker sample count = %d, want 1", blockerCount)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
