// Package observability assembles the logger, the Prometheus metrics
// and the optional tracer behind one startup and shutdown sequence.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/radon-h2020/radon-defect-predictor/pkg/logging"
	"github.com/radon-h2020/radon-defect-predictor/pkg/metrics"
	"github.com/radon-h2020/radon-defect-predictor/pkg/tracing"
)

// Manager owns all observability components of one process.
type Manager struct {
	logger     *zap.Logger
	metrics    *metrics.PipelineMetrics
	tracer     *tracing.Tracer
	metricsSrv *http.Server
}

// Config holds observability configuration. An empty JaegerEndpoint
// disables tracing; an empty MetricsAddr disables the metrics endpoint.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string
	MetricsAddr    string
	LogLevel       string
	LogFormat      string
}

// NewManager builds the logger and metrics, and installs the tracer
// when an endpoint is configured.
func NewManager(config Config) (*Manager, error) {
	logCfg := logging.DefaultConfig()
	if config.LogLevel != "" {
		logCfg.Level = config.LogLevel
	}
	if config.LogFormat != "" {
		logCfg.Format = config.LogFormat
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		logger:  logger,
		metrics: metrics.New(),
	}

	if config.JaegerEndpoint != "" {
		tracer, err := tracing.NewTracer(tracing.Config{
			ServiceName:    config.ServiceName,
			ServiceVersion: config.ServiceVersion,
			JaegerEndpoint: config.JaegerEndpoint,
			Environment:    config.Environment,
		})
		if err != nil {
			return nil, err
		}
		m.tracer = tracer
	}

	if config.MetricsAddr != "" {
		m.serveMetrics(config.MetricsAddr)
	}

	return m, nil
}

// Logger returns the process logger.
func (m *Manager) Logger() *zap.Logger {
	return m.logger
}

// Metrics returns the pipeline metrics.
func (m *Manager) Metrics() *metrics.PipelineMetrics {
	return m.metrics
}

// StartTrainingSpan opens a span covering one grid search. Without a
// configured tracer the returned span is a no-op.
func (m *Manager) StartTrainingSpan(ctx context.Context, datasetPath string, gridSize int) (context.Context, trace.Span) {
	if m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.StartTrainingSpan(ctx, datasetPath, gridSize)
}

// StartPredictionSpan opens a span for scoring one script.
func (m *Manager) StartPredictionSpan(ctx context.Context, language, file string) (context.Context, trace.Span) {
	if m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.StartPredictionSpan(ctx, language, file)
}

// StartDownloadSpan opens a span for fetching a pre-trained model.
func (m *Manager) StartDownloadSpan(ctx context.Context, language, host string) (context.Context, trace.Span) {
	if m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.StartDownloadSpan(ctx, language, host)
}

// EndSpan closes a span, marking it failed when err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		tracing.RecordSpanError(span, err)
	} else {
		tracing.RecordSpanSuccess(span)
	}
	span.End()
}

func (m *Manager) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.metricsSrv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := m.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	m.logger.Info("serving metrics", zap.String("addr", addr))
}

// Shutdown flushes spans, stops the metrics endpoint and syncs the
// logger. The context bounds how long flushing may take.
func (m *Manager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if m.metricsSrv != nil {
		if err := m.metricsSrv.Shutdown(ctx); err != nil {
			return err
		}
	}
	if m.tracer != nil {
		if err := m.tracer.Shutdown(ctx); err != nil {
			return err
		}
	}
	_ = m.logger.Sync()
	return nil
}
