package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewMeterProvider bridges OpenTelemetry metrics onto reg, so OpenTelemetry
// metric instruments and the hand-registered Prometheus counters share one
// exporter family instead of standing up a second scrape endpoint. Tracing
// spans are not exported through it.
func NewMeterProvider(reg *prometheus.Registry) (*sdkmetric.MeterProvider, error) {
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

// ShutdownMeterProvider flushes and stops provider, implementing the same
// drain-on-shutdown discipline as internal/lifecycle.Drainable.
func ShutdownMeterProvider(ctx context.Context, provider *sdkmetric.MeterProvider) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}
