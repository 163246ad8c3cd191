package storkit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/filecove/storkit"

// Instrumenter wraps storage operations with OpenTelemetry traces and
// metrics. A nil *Instrumenter is a valid no-op.
type Instrumenter struct {
	tracer   trace.Tracer
	opsTotal metric.Int64Counter
	opsDur   metric.Float64Histogram
	opsBytes metric.Int64Histogram
}

// NewInstrumenter builds an Instrumenter on the global otel providers.
func NewInstrumenter() *Instrumenter {
	meter := otel.Meter(instrumentationName)

	opsTotal, _ := meter.Int64Counter("storage_operations_total",
		metric.WithDescription("Total number of storage operations"))
	opsDur, _ := meter.Float64Histogram("storage_operation_duration_seconds",
		metric.WithDescription("Storage operation duration in seconds"))
	opsBytes, _ := meter.Int64Histogram("storage_operation_bytes",
		metric.WithDescription("Storage operation payload size in bytes"))

	return &Instrumenter{
		tracer:   otel.Tracer(instrumentationName),
		opsTotal: opsTotal,
		opsDur:   opsDur,
		opsBytes: opsBytes,
	}
}

// TraceOperation runs fn inside a client span and records operation count
// and duration metrics.
func (i *Instrumenter) TraceOperation(ctx context.Context, provider, operation, key string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	ctx, span := i.tracer.Start(ctx, "storage."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("storage.provider", provider),
			attribute.String("storage.operation", operation),
			attribute.String("storage.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	i.opsTotal.Add(ctx, 1, attrs)
	i.opsDur.Record(ctx, elapsed, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
	return err
}

// RecordSize records the payload size of a transfer operation.
func (i *Instrumenter) RecordSize(ctx context.Context, provider, operation string, size int64) {
	if i == nil {
		return
	}
	i.opsBytes.Record(ctx, size, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
}
