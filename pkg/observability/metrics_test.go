package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetricsDisabled(t *testing.T) {
	metrics, err := InitMetrics(context.Background(), MetricsConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, metrics)

	// Disabled recorders must swallow every call.
	ctx := context.Background()
	metrics.RecordJob(ctx, "completed", time.Second)
	metrics.RecordChunks(ctx, "docs", 10, 1)
	metrics.RecordEmbeddingBatch(ctx, "test-model", time.Millisecond, nil)
	metrics.RecordSearch(ctx, "similarity", time.Millisecond, 5)
}

func TestInitMetricsEnabled(t *testing.T) {
	metrics, err := InitMetrics(context.Background(), MetricsConfig{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordJob(ctx, "completed", 2*time.Second)
	metrics.RecordJob(ctx, "failed", time.Second)
	metrics.RecordChunks(ctx, "docs", 48, 2)
	metrics.RecordChunks(ctx, "docs", 0, 0)
	metrics.RecordEmbeddingBatch(ctx, "test-model", 100*time.Millisecond, errors.New("boom"))
	metrics.RecordSearch(ctx, "hybrid", 5*time.Millisecond, 0)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var metrics *PrometheusMetrics
	ctx := context.Background()
	metrics.RecordJob(ctx, "completed", time.Second)
	metrics.RecordChunks(ctx, "docs", 1, 0)
	metrics.RecordEmbeddingBatch(ctx, "m", time.Second, nil)
	metrics.RecordSearch(ctx, "text", time.Second, 1)
}

func TestGlobalMetrics(t *testing.T) {
	t.Cleanup(func() { SetGlobalMetrics(nil) })

	assert.NotNil(t, GetGlobalMetrics())

	recorder := &PrometheusMetrics{}
	SetGlobalMetrics(recorder)
	assert.Same(t, Metrics(recorder), GetGlobalMetrics())

	SetGlobalMetrics(nil)
	assert.NotNil(t, GetGlobalMetrics())
}
