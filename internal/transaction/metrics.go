package transaction

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for transaction metrics.
var meter = otel.Meter("dogs.transaction")

var (
	transactionTotal    metric.Int64Counter
	transactionDuration metric.Float64Histogram
	checkpointTotal     metric.Int64Counter
	rollbackTotal       metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		transactionTotal, err = meter.Int64Counter(
			"transaction_total",
			metric.WithDescription("Completed transactions by final state"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		transactionDuration, err = meter.Float64Histogram(
			"transaction_duration_seconds",
			metric.WithDescription("Duration of transactions in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		checkpointTotal, err = meter.Int64Counter(
			"transaction_checkpoint_total",
			metric.WithDescription("Checkpoints attempted, by kind and status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackTotal, err = meter.Int64Counter(
			"transaction_rollback_total",
			metric.WithDescription("Rollbacks performed, by reason and status"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func statusAttr(success bool) attribute.KeyValue {
	if success {
		return attribute.String("status", "success")
	}
	return attribute.String("status", "error")
}

func recordTransaction(ctx context.Context, state State, duration time.Duration, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("state", string(state)),
		statusAttr(success),
	)
	transactionTotal.Add(ctx, 1, attrs)
	transactionDuration.Record(ctx, duration.Seconds(), attrs)
}

func recordCheckpoint(ctx context.Context, stashed, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	kind := "clean"
	if stashed {
		kind = "stash"
	}
	checkpointTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		statusAttr(success),
	))
}

func recordRollback(ctx context.Context, reason string, success bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	rollbackTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		statusAttr(success),
	))
}
