package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records pipeline events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordJob(ctx context.Context, status string, duration time.Duration)
	RecordChunks(ctx context.Context, collection string, processed, failed int)
	RecordEmbeddingBatch(ctx context.Context, model string, duration time.Duration, err error)
	RecordSearch(ctx context.Context, kind string, duration time.Duration, results int)
}

// PrometheusMetrics is the otel-instrument-backed recorder. A zero
// value records nothing.
type PrometheusMetrics struct {
	jobDuration metric.Float64Histogram
	jobsTotal   metric.Int64Counter

	chunksProcessed metric.Int64Counter
	chunksFailed    metric.Int64Counter

	embeddingDuration metric.Float64Histogram
	embeddingErrors   metric.Int64Counter

	searchDuration metric.Float64Histogram
	searchesTotal  metric.Int64Counter
}

func NewPrometheusMetrics(
	jobDuration metric.Float64Histogram,
	jobsTotal metric.Int64Counter,
	chunksProcessed metric.Int64Counter,
	chunksFailed metric.Int64Counter,
	embeddingDuration metric.Float64Histogram,
	embeddingErrors metric.Int64Counter,
	searchDuration metric.Float64Histogram,
	searchesTotal metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		jobDuration:       jobDuration,
		jobsTotal:         jobsTotal,
		chunksProcessed:   chunksProcessed,
		chunksFailed:      chunksFailed,
		embeddingDuration: embeddingDuration,
		embeddingErrors:   embeddingErrors,
		searchDuration:    searchDuration,
		searchesTotal:     searchesTotal,
	}
}

func (m *PrometheusMetrics) RecordJob(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.jobDuration == nil || m.jobsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.jobsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordChunks(ctx context.Context, collection string, processed, failed int) {
	if m == nil || m.chunksProcessed == nil || m.chunksFailed == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("collection", collection),
	}
	if processed > 0 {
		m.chunksProcessed.Add(ctx, int64(processed), metric.WithAttributes(attrs...))
	}
	if failed > 0 {
		m.chunksFailed.Add(ctx, int64(failed), metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordEmbeddingBatch(ctx context.Context, model string, duration time.Duration, err error) {
	if m == nil || m.embeddingDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}
	m.embeddingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if err != nil && m.embeddingErrors != nil {
		m.embeddingErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordSearch(ctx context.Context, kind string, duration time.Duration, results int) {
	if m == nil || m.searchDuration == nil || m.searchesTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.Bool("empty", results == 0),
	}
	m.searchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.searchesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return &PrometheusMetrics{}
	}
	return globalMetrics
}
