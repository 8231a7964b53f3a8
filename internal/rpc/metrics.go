package rpc

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/agenthub/hub/internal/rpc")

// otelInstruments holds the counters/histogram exported to whatever
// MeterProvider the host process registered (a no-op one if none did).
type otelInstruments struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	latency  metric.Float64Histogram
}

func newOtelInstruments() otelInstruments {
	requests, _ := meter.Int64Counter("hub.rpc.requests",
		metric.WithDescription("RPC requests handled, by operation"),
		metric.WithUnit("{request}"))
	errors, _ := meter.Int64Counter("hub.rpc.errors",
		metric.WithDescription("RPC requests that returned an error, by operation"),
		metric.WithUnit("{request}"))
	latency, _ := meter.Float64Histogram("hub.rpc.latency",
		metric.WithDescription("RPC request latency, by operation"),
		metric.WithUnit("ms"))
	return otelInstruments{requests: requests, errors: errors, latency: latency}
}

// LatencyStats holds latency percentile data in milliseconds.
type LatencyStats struct {
	P50MS float64 `json:"p50_ms"`
	P95MS float64 `json:"p95_ms"`
	P99MS float64 `json:"p99_ms"`
}

// SlowQueryRecord captures one request whose latency crossed the threshold.
type SlowQueryRecord struct {
	Operation string    `json:"operation"`
	LatencyMS float64   `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics accumulates per-operation request counts, bounded latency
// samples, and a bounded slow-query log.
type Metrics struct {
	mu sync.Mutex

	requestCounts  map[string]int64
	requestErrors  map[string]int64
	requestLatency map[string][]time.Duration
	maxSamples     int

	totalConns    int64
	rejectedConns int64

	slowQueryThreshold time.Duration
	recentSlowQueries  []SlowQueryRecord
	maxSlowQueries     int

	startTime time.Time
	otel      otelInstruments
}

const DefaultSlowQueryThreshold = 100 * time.Millisecond

func NewMetrics() *Metrics {
	return &Metrics{
		requestCounts:      make(map[string]int64),
		requestErrors:      make(map[string]int64),
		requestLatency:     make(map[string][]time.Duration),
		maxSamples:         1000,
		maxSlowQueries:     100,
		slowQueryThreshold: DefaultSlowQueryThreshold,
		startTime:          time.Now(),
		otel:               newOtelInstruments(),
	}
}

func (m *Metrics) RecordConnection()         { m.mu.Lock(); m.totalConns++; m.mu.Unlock() }
func (m *Metrics) RecordRejectedConnection() { m.mu.Lock(); m.rejectedConns++; m.mu.Unlock() }

func (m *Metrics) RecordError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestErrors[operation]++
	m.otel.errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) RecordRequest(operation string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCounts[operation]++
	opAttr := metric.WithAttributes(attribute.String("operation", operation))
	m.otel.requests.Add(context.Background(), 1, opAttr)
	m.otel.latency.Record(context.Background(), toMS(latency), opAttr)

	samples := m.requestLatency[operation]
	if len(samples) >= m.maxSamples {
		samples = samples[1:]
	}
	m.requestLatency[operation] = append(samples, latency)

	if m.slowQueryThreshold > 0 && latency >= m.slowQueryThreshold {
		rec := SlowQueryRecord{Operation: operation, LatencyMS: toMS(latency), Timestamp: time.Now()}
		if len(m.recentSlowQueries) >= m.maxSlowQueries {
			m.recentSlowQueries = m.recentSlowQueries[1:]
		}
		m.recentSlowQueries = append(m.recentSlowQueries, rec)
	}
}

// Snapshot is a point-in-time view of accumulated metrics, safe to marshal.
type Snapshot struct {
	UptimeSeconds float64                 `json:"uptime_seconds"`
	TotalConns    int64                   `json:"total_connections"`
	RejectedConns int64                   `json:"rejected_connections"`
	ActiveConns   int                     `json:"active_connections"`
	RequestCounts map[string]int64        `json:"request_counts"`
	RequestErrors map[string]int64        `json:"request_errors"`
	Latency       map[string]LatencyStats `json:"latency"`
	SlowQueries   []SlowQueryRecord       `json:"recent_slow_queries"`
}

func (m *Metrics) Snapshot(activeConns int) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(map[string]LatencyStats, len(m.requestLatency))
	for op, samples := range m.requestLatency {
		latency[op] = calculateLatencyStats(samples)
	}

	counts := make(map[string]int64, len(m.requestCounts))
	for k, v := range m.requestCounts {
		counts[k] = v
	}
	errs := make(map[string]int64, len(m.requestErrors))
	for k, v := range m.requestErrors {
		errs[k] = v
	}
	slow := make([]SlowQueryRecord, len(m.recentSlowQueries))
	copy(slow, m.recentSlowQueries)

	return Snapshot{
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		TotalConns:    m.totalConns,
		RejectedConns: m.rejectedConns,
		ActiveConns:   activeConns,
		RequestCounts: counts,
		RequestErrors: errs,
		Latency:       latency,
		SlowQueries:   slow,
	}
}

func calculateLatencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	p50 := minInt(n-1, n*50/100)
	p95 := minInt(n-1, n*95/100)
	p99 := minInt(n-1, n*99/100)

	return LatencyStats{
		P50MS: toMS(sorted[p50]),
		P95MS: toMS(sorted[p95]),
		P99MS: toMS(sorted[p99]),
	}
}

func toMS(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
