package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests     metric.Int64Counter
	HTTPDuration     metric.Float64Histogram
	InFlightRequests metric.Int64UpDownCounter
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter
	DBConnects       metric.Int64Counter
	DBHealthProbes   metric.Int64Counter

	meter metric.Meter
}

func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{meter: meter}

	m.HTTPRequests, err = meter.Int64Counter(
		"blog_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"blog_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.InFlightRequests, err = meter.Int64UpDownCounter(
		"blog_http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests being served"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheHits, err = meter.Int64Counter(
		"blog_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CacheMisses, err = meter.Int64Counter(
		"blog_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DBConnects, err = meter.Int64Counter(
		"blog_db_connect_attempts_total",
		metric.WithDescription("Database connect attempts by role and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DBHealthProbes, err = meter.Int64Counter(
		"blog_db_health_probes_total",
		metric.WithDescription("Database health probes by role and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.Handler()
	return m, handler, nil
}

// ObserveDBHandles exports the state of each database handle as a gauge
// set to 1 for the current (role, state) pair.
func (m *Metrics) ObserveDBHandles(source func() map[string]string) error {
	_, err := m.meter.Int64ObservableGauge(
		"blog_db_handle_state",
		metric.WithDescription("Current state of each database handle"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for role, state := range source() {
				o.Observe(1, metric.WithAttributes(
					attribute.String("role", role),
					attribute.String("state", state),
				))
			}
			return nil
		}),
	)
	return err
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) IncrementInFlight(ctx context.Context) {
	if m == nil {
		return
	}
	m.InFlightRequests.Add(ctx, 1)
}

func (m *Metrics) DecrementInFlight(ctx context.Context) {
	if m == nil {
		return
	}
	m.InFlightRequests.Add(ctx, -1)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordDBConnectAttempt(ctx context.Context, role string, ok bool) {
	if m == nil {
		return
	}
	m.DBConnects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("outcome", outcome(ok)),
	))
}

func (m *Metrics) RecordDBHealthProbe(ctx context.Context, role string, ok bool) {
	if m == nil {
		return
	}
	m.DBHealthProbes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("outcome", outcome(ok)),
	))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
