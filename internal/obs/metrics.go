package obs

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// StartMetrics registers a global MeterProvider for the process's lifetime
// and returns a shutdown func to flush and close it. If debug output is on
// (HUB_DEBUG set or verbose mode, see Enabled) and no OTLP endpoint is
// configured, metrics print to stdout every 30s instead
// — useful for watching the counters wired in internal/rpc without standing
// up a collector. With no endpoint and no debug flag, metrics are recorded
// against a no-op provider (the otel default) and this is a cheap no-op.
func StartMetrics(ctx context.Context) (shutdown func(context.Context) error, err error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	switch {
	case endpoint != "":
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint))
		if err != nil {
			return nil, fmt.Errorf("obs: otlp metric exporter: %w", err)
		}
		provider := metric.NewMeterProvider(metric.WithReader(
			metric.NewPeriodicReader(exp, metric.WithInterval(15*time.Second)),
		))
		otel.SetMeterProvider(provider)
		return provider.Shutdown, nil

	case Enabled():
		exp, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
		if err != nil {
			return nil, fmt.Errorf("obs: stdout metric exporter: %w", err)
		}
		provider := metric.NewMeterProvider(metric.WithReader(
			metric.NewPeriodicReader(exp, metric.WithInterval(30*time.Second)),
		))
		otel.SetMeterProvider(provider)
		return provider.Shutdown, nil

	default:
		return func(context.Context) error { return nil }, nil
	}
}
