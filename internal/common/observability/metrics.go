package observability

import (
	"context"
	"time"

	"permohonan-service/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter and tracer providers.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerShutdown func(context.Context) error
	meter          otelmetric.Meter
	transitions    otelmetric.Int64Counter
	taskDuration   otelmetric.Float64Histogram
}

// New wires the prometheus-backed meter provider. Failures degrade to no-op
// instruments rather than stopping the service.
func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	transitions, _ := meter.Int64Counter(
		"permohonan.transitions",
		otelmetric.WithDescription("Application lifecycle transitions"),
	)

	taskDuration, _ := meter.Float64Histogram(
		"dispatch.task.duration",
		otelmetric.WithDescription("Side-effect task processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		transitions:   transitions,
		taskDuration:  taskDuration,
	}
}

func (o *Observability) RecordTransition(ctx context.Context, transition, outcome string) {
	if o == nil || o.transitions == nil {
		return
	}
	o.transitions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("transition", transition),
		attribute.String("outcome", outcome),
	))
}

func (o *Observability) RecordTaskDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil || o.taskDuration == nil {
		return
	}
	o.taskDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerShutdown != nil {
		_ = o.tracerShutdown(ctx)
	}
}
