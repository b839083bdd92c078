package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics and Prometheus integration
// for the Journal, Event Engine, Adapter Runtime, and Order State Machine.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	// JournalFramesWritten counts every frame successfully appended by a
	// bridge.Bridge.
	JournalFramesWritten metric.Int64Counter
	// JournalFrameTooLarge counts Write calls rejected because the payload
	// exceeded its type's MaxPayloadSize.
	JournalFrameTooLarge metric.Int64Counter
	// JournalWriteErrors counts any other journal.Writer.Write failure.
	JournalWriteErrors metric.Int64Counter
	// JournalLag counts JournalLag faults observed by a journal.Reader.
	JournalLag metric.Int64Counter

	// EngineDispatchDuration measures wall-clock time spent in one
	// Engine.dispatch call (all matching listeners for one event).
	EngineDispatchDuration metric.Float64Histogram
	// EngineListenerErrors counts recovered listener panics.
	EngineListenerErrors metric.Int64Counter

	// AdapterReconnects counts every adapter.Session reconnect cycle.
	AdapterReconnects metric.Int64Counter
	// AdapterProtocolErrors counts malformed or unexpected venue frames.
	AdapterProtocolErrors metric.Int64Counter

	// OrderStateTransitions counts every accepted Order state transition,
	// labeled by from/to state.
	OrderStateTransitions metric.Int64Counter
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Namespace      string
	Port           int
	Enabled        bool
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(cfg.ServiceName)

	mp := &MetricsProvider{
		meterProvider: meterProvider,
		meter:         meter,
		registry:      registry,
	}

	if err := mp.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return mp, nil
}

// initializeMetrics creates all application metrics
func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	mp.JournalFramesWritten, err = mp.meter.Int64Counter(
		"journal_frames_written_total",
		metric.WithDescription("Total number of frames appended to the journal"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create journal_frames_written_total counter: %w", err)
	}

	mp.JournalFrameTooLarge, err = mp.meter.Int64Counter(
		"journal_frame_too_large_total",
		metric.WithDescription("Total number of journal writes rejected for exceeding the type's max payload size"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create journal_frame_too_large_total counter: %w", err)
	}

	mp.JournalWriteErrors, err = mp.meter.Int64Counter(
		"journal_write_errors_total",
		metric.WithDescription("Total number of journal write failures other than frame-too-large"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create journal_write_errors_total counter: %w", err)
	}

	mp.JournalLag, err = mp.meter.Int64Counter(
		"journal_lag_total",
		metric.WithDescription("Total number of JournalLag detections by a reader (writer wrapped past it)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create journal_lag_total counter: %w", err)
	}

	mp.EngineDispatchDuration, err = mp.meter.Float64Histogram(
		"engine_dispatch_duration_seconds",
		metric.WithDescription("Time spent dispatching one event to all matching listeners"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine_dispatch_duration_seconds histogram: %w", err)
	}

	mp.EngineListenerErrors, err = mp.meter.Int64Counter(
		"engine_listener_errors_total",
		metric.WithDescription("Total number of listener panics recovered during dispatch"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine_listener_errors_total counter: %w", err)
	}

	mp.AdapterReconnects, err = mp.meter.Int64Counter(
		"adapter_reconnects_total",
		metric.WithDescription("Total number of adapter session reconnect cycles"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create adapter_reconnects_total counter: %w", err)
	}

	mp.AdapterProtocolErrors, err = mp.meter.Int64Counter(
		"adapter_protocol_errors_total",
		metric.WithDescription("Total number of malformed or unexpected venue frames observed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create adapter_protocol_errors_total counter: %w", err)
	}

	mp.OrderStateTransitions, err = mp.meter.Int64Counter(
		"order_state_transitions_total",
		metric.WithDescription("Total number of accepted order state transitions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create order_state_transitions_total counter: %w", err)
	}

	return nil
}

// RecordDispatch records one Engine.dispatch call's duration.
func (mp *MetricsProvider) RecordDispatch(ctx context.Context, typeName string, duration time.Duration) {
	if mp.EngineDispatchDuration == nil {
		return
	}
	mp.EngineDispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("type", typeName)))
}

// RecordOrderTransition records one accepted Order state transition.
func (mp *MetricsProvider) RecordOrderTransition(ctx context.Context, from, to string) {
	if mp.OrderStateTransitions == nil {
		return
	}
	mp.OrderStateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordAdapterReconnect records one adapter session reconnect cycle.
func (mp *MetricsProvider) RecordAdapterReconnect(ctx context.Context, session string) {
	if mp.AdapterReconnects == nil {
		return
	}
	mp.AdapterReconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("session", session)))
}

// RecordJournalWrite records the outcome of one journal.Writer.Write call:
// frameTooLarge distinguishes a FrameTooLarge busfault from any other write
// failure so operators can alert on the two rates separately.
func (mp *MetricsProvider) RecordJournalWrite(ctx context.Context, err error, frameTooLarge bool) {
	if err == nil {
		if mp.JournalFramesWritten != nil {
			mp.JournalFramesWritten.Add(ctx, 1)
		}
		return
	}
	if frameTooLarge {
		if mp.JournalFrameTooLarge != nil {
			mp.JournalFrameTooLarge.Add(ctx, 1)
		}
		return
	}
	if mp.JournalWriteErrors != nil {
		mp.JournalWriteErrors.Add(ctx, 1)
	}
}

// RecordJournalLag records one JournalLag detection by a journal.Reader.
func (mp *MetricsProvider) RecordJournalLag(ctx context.Context) {
	if mp.JournalLag == nil {
		return
	}
	mp.JournalLag.Add(ctx, 1)
}

// StartMetricsServer starts the Prometheus metrics HTTP server
func (mp *MetricsProvider) StartMetricsServer(port int) error {
	if mp.registry == nil {
		return fmt.Errorf("metrics not enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.meterProvider == nil {
		return nil
	}
	return mp.meterProvider.Shutdown(ctx)
}
