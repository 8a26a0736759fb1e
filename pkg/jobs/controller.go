package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridiandb/meridian/pkg/chunking"
	"github.com/meridiandb/meridian/pkg/collections"
	"github.com/meridiandb/meridian/pkg/embedders"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/observability"
	"github.com/meridiandb/meridian/pkg/parsers"
	"github.com/meridiandb/meridian/pkg/vectorstore"
)

// errCancelled signals that cancellation was observed and the job
// record already moved to cancelled.
var errCancelled = errors.New("job cancelled")

// ControllerConfig tunes job processing.
type ControllerConfig struct {
	// BatchSize is the number of chunks embedded and stored per batch.
	// Cancellation is checked between batches.
	BatchSize int `yaml:"batch_size,omitempty" mapstructure:"batch_size"`
}

// SetDefaults applies default values to unset fields.
func (c *ControllerConfig) SetDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
}

// ProviderSource hands out embedding providers by model and dimension.
type ProviderSource interface {
	ProviderFor(model string, dimension int) (embedders.Provider, error)
}

// Controller runs ingestion jobs end to end: parse the document,
// chunk it, embed each batch, and store the vectors. A failing chunk
// is counted and skipped; the job still completes.
type Controller struct {
	store     Store
	catalog   collections.Provider
	vectors   vectorstore.Store
	embedders ProviderSource
	metrics   observability.Metrics
	logger    *slog.Logger
	batchSize int
}

// NewController creates a job controller.
func NewController(cfg ControllerConfig, store Store, catalog collections.Provider, vectors vectorstore.Store, source ProviderSource) *Controller {
	cfg.SetDefaults()
	return &Controller{
		store:     store,
		catalog:   catalog,
		vectors:   vectors,
		embedders: source,
		metrics:   observability.GetGlobalMetrics(),
		logger:    logger.GetLogger(),
		batchSize: cfg.BatchSize,
	}
}

// Submit persists a new pending job for a document.
func (c *Controller) Submit(ctx context.Context, collectionName, filePath, fileType string, cfg chunking.Config) (*IngestionJob, error) {
	if !parsers.IsSupported(fileType) {
		return nil, &parsers.UnsupportedFileTypeError{FileType: fileType}
	}
	job := NewIngestionJob(collectionName, filePath, fileType, cfg)
	if err := c.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	return job, nil
}

// Cancel requests cooperative cancellation of a job.
func (c *Controller) Cancel(ctx context.Context, jobID string) (*IngestionJob, error) {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.RequestCancel(); err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Retry returns a failed job to pending so it can be re-enqueued.
func (c *Controller) Retry(ctx context.Context, jobID string) (*IngestionJob, error) {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Process runs one job to a terminal status. The returned error is
// the processing cause; the job record is already failed when it is
// non-nil.
func (c *Controller) Process(ctx context.Context, jobID string) error {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.CancelRequested || job.Status != StatusPending {
		if job.Status == StatusPending {
			// Cancel arrived between enqueue and pickup.
			if err := job.TransitionTo(StatusCancelled); err != nil {
				return err
			}
			return c.store.Update(ctx, job)
		}
		return fmt.Errorf("job %s is %s, not pending", job.ID, job.Status)
	}

	if err := job.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	if err := c.store.Update(ctx, job); err != nil {
		return err
	}

	started := time.Now()
	runErr := c.run(ctx, job)
	switch {
	case runErr == nil:
		if err := job.TransitionTo(StatusCompleted); err != nil {
			return err
		}
		if err := c.store.Update(ctx, job); err != nil {
			return err
		}
		c.metrics.RecordJob(ctx, string(StatusCompleted), time.Since(started))
		c.logger.Info("ingestion job completed",
			"job_id", job.ID,
			"collection", job.CollectionName,
			"chunks", job.TotalChunks,
			"failed_chunks", job.FailedChunks)
		return nil

	case errors.Is(runErr, errCancelled):
		c.metrics.RecordJob(ctx, string(StatusCancelled), time.Since(started))
		c.logger.Info("ingestion job cancelled", "job_id", job.ID)
		return nil

	default:
		if err := job.Fail(runErr.Error()); err != nil {
			return err
		}
		if err := c.store.Update(ctx, job); err != nil {
			return err
		}
		c.metrics.RecordJob(ctx, string(StatusFailed), time.Since(started))
		c.logger.Error("ingestion job failed", "job_id", job.ID, "error", runErr)
		return runErr
	}
}

func (c *Controller) run(ctx context.Context, job *IngestionJob) error {
	collection, err := c.catalog.GetCollection(ctx, job.CollectionName)
	if err != nil {
		return err
	}

	text, err := parsers.Parse(job.FilePath, job.FileType)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return parsers.ErrEmptyDocument
	}

	chunks := chunking.New(job.Chunking).Chunk(text)
	if len(chunks) == 0 {
		return parsers.ErrEmptyDocument
	}

	// Total is set exactly once, before the first batch.
	job.TotalChunks = len(chunks)
	if err := c.store.Update(ctx, job); err != nil {
		return err
	}

	if err := c.vectors.EnsureCollection(ctx, collection.Name, collection.Dimension, collection.DistanceMetric); err != nil {
		return err
	}

	provider, err := c.embedders.ProviderFor(collection.EmbeddingModel, collection.Dimension)
	if err != nil {
		return err
	}
	// Token counts enrich chunk metadata when the encoding is
	// available; their absence never fails a job.
	counter, err := embedders.NewTokenCounter(collection.EmbeddingModel)
	if err != nil {
		counter = nil
	}

	documentID := uuid.NewString()
	for start := 0; start < len(chunks); start += c.batchSize {
		if err := c.checkCancel(ctx, job); err != nil {
			return err
		}

		end := start + c.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		processed, failed := c.processBatch(ctx, job, collection, provider, counter, documentID, batch)
		job.ProcessedChunks += processed
		job.FailedChunks += failed
		job.UpdatedAt = time.Now().UTC()
		if err := c.store.Update(ctx, job); err != nil {
			return err
		}
		c.metrics.RecordChunks(ctx, collection.Name, processed, failed)
	}
	return nil
}

// checkCancel re-reads the stored job so a cancel written by another
// process is honored at the batch boundary.
func (c *Controller) checkCancel(ctx context.Context, job *IngestionJob) error {
	fresh, err := c.store.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if !fresh.CancelRequested {
		return nil
	}
	job.CancelRequested = true
	if err := job.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	if err := c.store.Update(ctx, job); err != nil {
		return err
	}
	return errCancelled
}

// processBatch embeds and stores one batch of chunks. A chunk counts
// as processed only once the store accepts its record; failures count
// as failed instead and do not abort the batch.
func (c *Controller) processBatch(ctx context.Context, job *IngestionJob, collection collections.Collection, provider embedders.Provider, counter *embedders.TokenCounter, documentID string, batch []chunking.Chunk) (processed, failed int) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	embedStart := time.Now()
	vectors, err := provider.EmbedBatch(texts)
	c.metrics.RecordEmbeddingBatch(ctx, collection.EmbeddingModel, time.Since(embedStart), err)
	if err != nil {
		// Batch embedding failed; isolate by embedding one at a time.
		c.logger.Warn("batch embedding failed, falling back to per-chunk",
			"job_id", job.ID, "error", err)
		vectors = make([][]float32, len(batch))
		for i, text := range texts {
			vector, embedErr := provider.Embed(text)
			if embedErr != nil {
				c.logger.Warn("chunk embedding failed",
					"job_id", job.ID, "chunk_index", batch[i].Index, "error", embedErr)
				continue
			}
			vectors[i] = vector
		}
	}

	records := make([]vectorstore.Record, 0, len(batch))
	recordChunks := make([]int, 0, len(batch))
	for i, chunk := range batch {
		if vectors[i] == nil {
			failed++
			continue
		}
		if len(vectors[i]) != collection.Dimension {
			c.logger.Warn("embedding dimension mismatch",
				"job_id", job.ID, "chunk_index", chunk.Index,
				"expected", collection.Dimension, "actual", len(vectors[i]))
			failed++
			continue
		}

		metadata := map[string]any{
			"job_id":      job.ID,
			"document_id": documentID,
			"source":      job.FilePath,
			"file_type":   job.FileType,
			"chunk_index": chunk.Index,
			"fingerprint": vectorstore.Fingerprint(vectors[i]),
		}
		if counter != nil {
			metadata["token_count"] = counter.Count(chunk.Text)
		}
		if chunk.Breadcrumb != "" {
			metadata["breadcrumb"] = chunk.Breadcrumb
		}
		records = append(records, vectorstore.Record{
			ID:       uuid.NewString(),
			Vector:   vectors[i],
			Content:  chunk.Text,
			Metadata: metadata,
		})
		recordChunks = append(recordChunks, chunk.Index)
	}

	if len(records) == 0 {
		return processed, failed
	}

	if err := c.vectors.Insert(ctx, collection.Name, records); err != nil {
		// Batch insert failed; isolate by inserting one at a time.
		c.logger.Warn("batch insert failed, falling back to per-record",
			"job_id", job.ID, "error", err)
		for i, record := range records {
			if insertErr := c.vectors.Insert(ctx, collection.Name, []vectorstore.Record{record}); insertErr != nil {
				c.logger.Warn("chunk insert failed",
					"job_id", job.ID, "chunk_index", recordChunks[i], "error", insertErr)
				failed++
				continue
			}
			processed++
		}
		return processed, failed
	}
	processed += len(records)
	return processed, failed
}
