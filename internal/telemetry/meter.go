package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc"
)

// Metrics holds the custom metrics instruments for the application.
type Metrics struct {
	RequestCounter   metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	TasksGauge       metric.Int64ObservableGauge
	AdvisorFallbacks metric.Int64Counter
	PersistConflicts metric.Int64Counter
	taskCountFunc    func() int64
}

// InitMeterProvider configures an OTLP gRPC metric exporter and sets the
// global meter provider.
func InitMeterProvider(ctx context.Context, conn *grpc.ClientConn, opts Options) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := newResource(opts)
	if err != nil {
		return nil, err
	}

	// Periodic reader with a 10 second interval
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second),
		)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

// NewMetrics creates and registers custom metrics instruments.
func NewMetrics(meter metric.Meter, taskCountFunc func() int64) (*Metrics, error) {
	m := &Metrics{
		taskCountFunc: taskCountFunc,
	}

	var err error

	m.RequestCounter, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	m.TasksGauge, err = meter.Int64ObservableGauge(
		"focusflow_tasks",
		metric.WithDescription("Current number of tasks in the list"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.taskCountFunc())
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks gauge: %w", err)
	}

	m.AdvisorFallbacks, err = meter.Int64Counter(
		"focusflow_advisor_fallbacks_total",
		metric.WithDescription("Advisor calls answered with a fixed fallback"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create advisor fallback counter: %w", err)
	}

	m.PersistConflicts, err = meter.Int64Counter(
		"focusflow_persist_conflicts_total",
		metric.WithDescription("Writes that found the saved list changed by another writer"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create persist conflict counter: %w", err)
	}

	return m, nil
}

// RecordRequest adds one handled request to the counter and histogram.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, start time.Time) {
	duration := time.Since(start).Seconds()

	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, duration, attrs)
}

// AdvisorFallback counts a degraded advisor call. Its signature matches
// advisor.FallbackHook.
func (m *Metrics) AdvisorFallback(ctx context.Context, capability string, _ error) {
	m.AdvisorFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("advisor.capability", capability)))
}

// PersistConflict counts a write that overwrote another writer's list.
func (m *Metrics) PersistConflict(ctx context.Context) {
	m.PersistConflicts.Add(ctx, 1)
}
