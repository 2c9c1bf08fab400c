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
// for the order separation coordinator.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	httpRequestsTotal      metric.Int64Counter
	httpRequestDuration    metric.Float64Histogram
	ordersParsedTotal      metric.Int64Counter
	batchApplyDuration     metric.Float64Histogram
	presenceConnections    metric.Int64UpDownCounter
	broadcastMessagesTotal metric.Int64Counter
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

func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	mp.httpRequestsTotal, err = mp.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	mp.httpRequestDuration, err = mp.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	mp.ordersParsedTotal, err = mp.meter.Int64Counter(
		"orders_parsed_total",
		metric.WithDescription("Total number of PDF quotation parse attempts, by result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create orders_parsed_total counter: %w", err)
	}

	mp.batchApplyDuration, err = mp.meter.Float64Histogram(
		"order_batch_apply_duration_seconds",
		metric.WithDescription("Duration of an Order Boundary Orchestrator batch apply"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return fmt.Errorf("failed to create order_batch_apply_duration histogram: %w", err)
	}

	mp.presenceConnections, err = mp.meter.Int64UpDownCounter(
		"presence_connections",
		metric.WithDescription("Number of live operator websocket connections"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create presence_connections gauge: %w", err)
	}

	mp.broadcastMessagesTotal, err = mp.meter.Int64Counter(
		"broadcast_messages_total",
		metric.WithDescription("Total number of broadcast fabric messages sent, by scope"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create broadcast_messages_total counter: %w", err)
	}

	return nil
}

// RecordHTTPRequest records an HTTP request metric
func (mp *MetricsProvider) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if mp.httpRequestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	}

	mp.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOrderParsed records a single PDF extraction attempt outcome.
func (mp *MetricsProvider) RecordOrderParsed(ctx context.Context, result string) {
	if mp.ordersParsedTotal == nil {
		return
	}
	mp.ordersParsedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBatchApply records the duration of one apply_batch call.
func (mp *MetricsProvider) RecordBatchApply(ctx context.Context, duration time.Duration, itemCount int) {
	if mp.batchApplyDuration == nil {
		return
	}
	mp.batchApplyDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Int("item_count", itemCount),
	))
}

// IncrementPresenceConnections increments the live-connection gauge.
func (mp *MetricsProvider) IncrementPresenceConnections(ctx context.Context) {
	if mp.presenceConnections == nil {
		return
	}
	mp.presenceConnections.Add(ctx, 1)
}

// DecrementPresenceConnections decrements the live-connection gauge.
func (mp *MetricsProvider) DecrementPresenceConnections(ctx context.Context) {
	if mp.presenceConnections == nil {
		return
	}
	mp.presenceConnections.Add(ctx, -1)
}

// RecordBroadcast records a fan-out send at the given scope (user/order/all).
func (mp *MetricsProvider) RecordBroadcast(ctx context.Context, scope string) {
	if mp.broadcastMessagesTotal == nil {
		return
	}
	mp.broadcastMessagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
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
