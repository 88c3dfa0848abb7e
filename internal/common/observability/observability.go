// Package observability wires the OpenTelemetry tracer and meter providers. Meters
// export through the Prometheus registry served on /metrics.
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	submitCounter  otelmetric.Int64Counter
}

func New(serviceName string, opts ...sdktrace.TracerProviderOption) *Observability {
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	o := &Observability{
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName),
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o.jobCounter, _ = meter.Int64Counter(
		"appraisal.jobs.processed",
		otelmetric.WithDescription("Number of workflow jobs handled"),
	)
	o.jobDuration, _ = meter.Float64Histogram(
		"appraisal.jobs.duration",
		otelmetric.WithDescription("Workflow job handling duration"),
		otelmetric.WithUnit("ms"),
	)
	o.submitCounter, _ = meter.Int64Counter(
		"appraisal.submissions",
		otelmetric.WithDescription("Number of loan applications handed to the submitter"),
	)
	o.meterProvider = provider
	return o
}

// Tracer returns the service tracer, or the global one when o is nil.
func (o *Observability) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return otel.Tracer("loan-appraiser")
	}
	return o.tracer
}

func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordJob counts one handled job of taskType and records how long it took.
func (o *Observability) RecordJob(ctx context.Context, taskType string, d time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("task_type", taskType))
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, attrs)
	}
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(d.Milliseconds()), attrs)
	}
}

// RecordSubmission counts one submission attempt by loan type and outcome.
func (o *Observability) RecordSubmission(ctx context.Context, loanType, outcome string) {
	if o != nil && o.submitCounter != nil {
		o.submitCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("loan_type", loanType),
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
