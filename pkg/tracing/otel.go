// Package tracing installs a Jaeger-exporting OpenTelemetry provider.
// Component code opens spans through otel.Tracer and stays unaware of
// whether an exporter is configured; without one those spans are no-ops.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps the OpenTelemetry tracer together with its provider so
// Shutdown can flush pending spans.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config holds tracing configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	JaegerEndpoint string
	Environment    string
}

// NewTracer builds a Jaeger exporter and installs it as the global
// tracer provider.
func NewTracer(config Config) (*Tracer, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		tracer:   otel.Tracer(config.ServiceName),
		provider: tp,
	}, nil
}

// StartTrainingSpan starts a span covering one grid search.
func (t *Tracer) StartTrainingSpan(ctx context.Context, datasetPath string, gridSize int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("training.dataset", datasetPath),
		attribute.Int("training.grid_size", gridSize),
	}

	return t.tracer.Start(ctx, "training.run", trace.WithAttributes(attrs...))
}

// StartPredictionSpan starts a span for scoring one script.
func (t *Tracer) StartPredictionSpan(ctx context.Context, language, file string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("prediction.language", language),
		attribute.String("prediction.file", file),
	}

	return t.tracer.Start(ctx, "prediction.score", trace.WithAttributes(attrs...))
}

// StartDownloadSpan starts a span for fetching a pre-trained model.
func (t *Tracer) StartDownloadSpan(ctx context.Context, language, host string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("download.language", language),
		attribute.String("download.host", host),
	}

	return t.tracer.Start(ctx, "model.download", trace.WithAttributes(attrs...))
}

// RecordSpanError records an error in a span.
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanSuccess records success in a span.
func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
