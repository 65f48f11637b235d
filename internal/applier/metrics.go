package applier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sokinpui/dogs.go/model"
)

var meter = otel.Meter("dogs.applier")

var (
	filesTotal    metric.Int64Counter
	batchDuration metric.Float64Histogram
	batchFailed   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		filesTotal, err = meter.Int64Counter(
			"applier_files_total",
			metric.WithDescription("Files written or removed, by operation and status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchDuration, err = meter.Float64Histogram(
			"applier_batch_duration_seconds",
			metric.WithDescription("Duration of an apply pass in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchFailed, err = meter.Int64Histogram(
			"applier_batch_failed_files",
			metric.WithDescription("Failed files per apply pass"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordFile(ctx context.Context, op model.Operation, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	filesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op.String()),
		attribute.String("status", status),
	))
}

func recordBatch(ctx context.Context, duration time.Duration, succeeded, failed int) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "success"
	if failed > 0 {
		status = "partial"
		if succeeded == 0 {
			status = "error"
		}
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	batchDuration.Record(ctx, duration.Seconds(), attrs)
	batchFailed.Record(ctx, int64(failed), attrs)
}
