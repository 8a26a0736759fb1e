// Package observability exposes pipeline metrics through the
// OpenTelemetry metric API with a Prometheus exporter.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig enables metric collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// InitMetrics builds the Prometheus-backed recorder. Disabled metrics
// return a recorder whose methods are no-ops.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("meridian")

	jobDuration, err := meter.Float64Histogram(
		"meridian_ingestion_job_duration_seconds",
		metric.WithDescription("Ingestion job duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job duration histogram: %w", err)
	}

	jobsTotal, err := meter.Int64Counter(
		"meridian_ingestion_jobs_total",
		metric.WithDescription("Total ingestion jobs by final status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs counter: %w", err)
	}

	chunksProcessed, err := meter.Int64Counter(
		"meridian_chunks_processed_total",
		metric.WithDescription("Total chunks processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processed chunks counter: %w", err)
	}

	chunksFailed, err := meter.Int64Counter(
		"meridian_chunks_failed_total",
		metric.WithDescription("Total chunks that failed embedding or storage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed chunks counter: %w", err)
	}

	embeddingDuration, err := meter.Float64Histogram(
		"meridian_embedding_batch_duration_seconds",
		metric.WithDescription("Embedding batch duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding duration histogram: %w", err)
	}

	embeddingErrors, err := meter.Int64Counter(
		"meridian_embedding_errors_total",
		metric.WithDescription("Total embedding batch failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding errors counter: %w", err)
	}

	searchDuration, err := meter.Float64Histogram(
		"meridian_search_duration_seconds",
		metric.WithDescription("Search request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}

	searchesTotal, err := meter.Int64Counter(
		"meridian_searches_total",
		metric.WithDescription("Total search requests by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create searches counter: %w", err)
	}

	return NewPrometheusMetrics(
		jobDuration,
		jobsTotal,
		chunksProcessed,
		chunksFailed,
		embeddingDuration,
		embeddingErrors,
		searchDuration,
		searchesTotal,
	), nil
}
