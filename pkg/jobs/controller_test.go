package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meridiandb/meridian/pkg/chunking"
	"github.com/meridiandb/meridian/pkg/collections"
	"github.com/meridiandb/meridian/pkg/embedders"
	"github.com/meridiandb/meridian/pkg/parsers"
	"github.com/meridiandb/meridian/pkg/vectorstore"
)

type pipeline struct {
	store      *MemoryStore
	catalog    *collections.MemoryProvider
	vectors    vectorstore.Store
	controller *Controller
}

func newTestPipeline(t *testing.T, vectors vectorstore.Store) *pipeline {
	t.Helper()

	store := NewMemoryStore()
	catalog := collections.NewMemoryProvider()
	if err := catalog.Register(collections.Collection{
		ID:             "c1",
		Name:           "docs",
		Dimension:      8,
		EmbeddingModel: "test-model",
		DistanceMetric: vectorstore.MetricCosine,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if vectors == nil {
		var err error
		vectors, err = vectorstore.NewChromemStore(vectorstore.Config{Type: "chromem"})
		if err != nil {
			t.Fatalf("NewChromemStore: %v", err)
		}
	}
	t.Cleanup(func() { vectors.Close() })

	controller := NewController(ControllerConfig{BatchSize: 2}, store, catalog, vectors, embedders.NewSource(embedders.Config{}))
	return &pipeline{store: store, catalog: catalog, vectors: vectors, controller: controller}
}

func writeTestDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestController_ProcessCompletes(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	content := strings.Repeat("Plenty of sentence content for chunking. ", 20)
	path := writeTestDoc(t, content)

	job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{Size: 120, Overlap: 0})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.controller.Process(ctx, job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	done, err := p.store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", done.Status, done.ErrorMessage)
	}
	if done.TotalChunks == 0 {
		t.Fatal("TotalChunks not set")
	}
	if done.ProcessedChunks != done.TotalChunks {
		t.Errorf("processed %d of %d chunks", done.ProcessedChunks, done.TotalChunks)
	}
	if done.FailedChunks != 0 {
		t.Errorf("failed chunks = %d, want 0", done.FailedChunks)
	}
	if done.ProgressPct() != 100 {
		t.Errorf("progress = %v, want 100", done.ProgressPct())
	}

	// Vectors must be queryable with chunk metadata attached.
	source := embedders.NewSource(embedders.Config{})
	provider, _ := source.ProviderFor("test-model", 8)
	query, _ := provider.Embed("Plenty of sentence content")
	rows, err := p.vectors.QueryNearest(ctx, "docs", query, vectorstore.MetricCosine, 3, nil)
	if err != nil {
		t.Fatalf("QueryNearest: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("no vectors stored")
	}
	if rows[0].Metadata["job_id"] != job.ID {
		t.Errorf("job_id metadata = %v", rows[0].Metadata["job_id"])
	}
	if _, ok := rows[0].Metadata["fingerprint"]; !ok {
		t.Error("fingerprint metadata missing")
	}
}

func TestController_SubmitRejectsUnsupportedType(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.controller.Submit(context.Background(), "docs", "/tmp/archive.tar", "tar", chunking.Config{})
	var unsupported *parsers.UnsupportedFileTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *UnsupportedFileTypeError, got %v", err)
	}
}

func TestController_UnknownCollectionFailsJob(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	path := writeTestDoc(t, "some content")
	job, err := p.controller.Submit(ctx, "nope", path, "txt", chunking.Config{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := p.controller.Process(ctx, job.ID); !errors.Is(err, collections.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}

	failed, _ := p.store.Get(ctx, job.ID)
	if failed.Status != StatusFailed {
		t.Errorf("status = %s, want failed", failed.Status)
	}
	if failed.ErrorMessage == "" {
		t.Error("error message not recorded")
	}
}

func TestController_MissingFileFailsJob(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	job, err := p.controller.Submit(ctx, "docs", "/nonexistent/doc.txt", "txt", chunking.Config{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err = p.controller.Process(ctx, job.ID)
	var parseErr *parsers.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}

	failed, _ := p.store.Get(ctx, job.ID)
	if failed.Status != StatusFailed {
		t.Errorf("status = %s, want failed", failed.Status)
	}
}

func TestController_EmptyDocumentFailsJob(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	path := writeTestDoc(t, "   \n\n   ")
	job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := p.controller.Process(ctx, job.ID); !errors.Is(err, parsers.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestController_CancelBeforePickup(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	path := writeTestDoc(t, "content here")
	job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	cancelled, err := p.controller.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// A worker picking up the cancelled job must not process it.
	if err := p.controller.Process(ctx, job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	final, _ := p.store.Get(ctx, job.ID)
	if final.Status != StatusCancelled || final.TotalChunks != 0 {
		t.Errorf("cancelled job was processed: %+v", final)
	}
}

// cancelingStore flips the job's cancel flag after the first insert,
// simulating a cancel request arriving mid-job.
type cancelingStore struct {
	vectorstore.Store
	jobs    *MemoryStore
	jobID   *string
	inserts int
}

func (s *cancelingStore) Insert(ctx context.Context, collection string, records []vectorstore.Record) error {
	if err := s.Store.Insert(ctx, collection, records); err != nil {
		return err
	}
	s.inserts++
	if s.inserts == 1 && *s.jobID != "" {
		job, err := s.jobs.Get(ctx, *s.jobID)
		if err != nil {
			return err
		}
		if err := job.RequestCancel(); err != nil {
			return err
		}
		return s.jobs.Update(ctx, job)
	}
	return nil
}

func TestController_CancelAtBatchBoundary(t *testing.T) {
	inner, err := vectorstore.NewChromemStore(vectorstore.Config{Type: "chromem"})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	var jobID string
	wrapped := &cancelingStore{Store: inner, jobID: &jobID}
	p := newTestPipeline(t, wrapped)
	wrapped.jobs = p.store
	ctx := context.Background()

	content := strings.Repeat("Sentence for the chunker to split. ", 40)
	path := writeTestDoc(t, content)
	job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{Size: 80})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	jobID = job.ID

	if err := p.controller.Process(ctx, job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, _ := p.store.Get(ctx, job.ID)
	if final.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
	if final.ProcessedChunks == 0 || final.ProcessedChunks >= final.TotalChunks {
		t.Errorf("expected partial progress, got %d of %d", final.ProcessedChunks, final.TotalChunks)
	}
}

// poisonStore rejects inserts containing a marker string.
type poisonStore struct {
	vectorstore.Store
}

func (s *poisonStore) Insert(ctx context.Context, collection string, records []vectorstore.Record) error {
	for _, record := range records {
		if strings.Contains(record.Content, "poison") {
			return fmt.Errorf("storage rejected record %s", record.ID)
		}
	}
	return s.Store.Insert(ctx, collection, records)
}

func TestController_ChunkFailureIsolation(t *testing.T) {
	inner, err := vectorstore.NewChromemStore(vectorstore.Config{Type: "chromem"})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	p := newTestPipeline(t, &poisonStore{Store: inner})
	ctx := context.Background()

	content := "Good paragraph number one.\n\npoison in this paragraph.\n\nGood paragraph number three."
	path := writeTestDoc(t, content)
	job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{
		Strategy: chunking.StrategyParagraph,
		Size:     10,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := p.controller.Process(ctx, job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, _ := p.store.Get(ctx, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", final.Status, final.ErrorMessage)
	}
	if final.FailedChunks != 1 {
		t.Errorf("failed chunks = %d, want 1", final.FailedChunks)
	}
	if final.ProcessedChunks != final.TotalChunks-final.FailedChunks {
		t.Errorf("processed %d of %d with %d failed", final.ProcessedChunks, final.TotalChunks, final.FailedChunks)
	}
	if final.ProcessedChunks+final.FailedChunks > final.TotalChunks {
		t.Errorf("counts exceed total: %d + %d > %d", final.ProcessedChunks, final.FailedChunks, final.TotalChunks)
	}
	if !final.CompletedWithErrors() {
		t.Error("completed_with_errors view not set")
	}
}

// poisonEmbedder rejects texts containing a marker string.
type poisonEmbedder struct {
	embedders.Provider
}

func (e *poisonEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, "poison") {
			return nil, fmt.Errorf("provider rejected batch")
		}
	}
	return e.Provider.EmbedBatch(texts)
}

func (e *poisonEmbedder) Embed(text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, fmt.Errorf("provider rejected text")
	}
	return e.Provider.Embed(text)
}

type poisonSource struct {
	inner *embedders.Source
}

func (s *poisonSource) ProviderFor(model string, dimension int) (embedders.Provider, error) {
	provider, err := s.inner.ProviderFor(model, dimension)
	if err != nil {
		return nil, err
	}
	return &poisonEmbedder{Provider: provider}, nil
}

func TestController_EmbedFailureCountsAsFailedOnly(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	catalog := collections.NewMemoryProvider()
	if err := catalog.Register(collections.Collection{
		ID:             "c1",
		Name:           "docs",
		Dimension:      8,
		EmbeddingModel: "test-model",
		DistanceMetric: vectorstore.MetricCosine,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	vectors, err := vectorstore.NewChromemStore(vectorstore.Config{Type: "chromem"})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	t.Cleanup(func() { vectors.Close() })

	source := &poisonSource{inner: embedders.NewSource(embedders.Config{})}
	controller := NewController(ControllerConfig{BatchSize: 2}, store, catalog, vectors, source)

	content := "Good paragraph number one.\n\npoison in this paragraph.\n\nGood paragraph number three."
	path := writeTestDoc(t, content)
	job, err := controller.Submit(ctx, "docs", path, "txt", chunking.Config{
		Strategy: chunking.StrategyParagraph,
		Size:     10,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := controller.Process(ctx, job.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	final, _ := store.Get(ctx, job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", final.Status, final.ErrorMessage)
	}
	if final.TotalChunks != 3 {
		t.Fatalf("total chunks = %d, want 3", final.TotalChunks)
	}
	if final.FailedChunks != 1 {
		t.Errorf("failed chunks = %d, want 1", final.FailedChunks)
	}
	if final.ProcessedChunks != 2 {
		t.Errorf("processed chunks = %d, want 2", final.ProcessedChunks)
	}
	if final.ProcessedChunks+final.FailedChunks > final.TotalChunks {
		t.Errorf("counts exceed total: %d + %d > %d", final.ProcessedChunks, final.FailedChunks, final.TotalChunks)
	}
}

func TestController_RetryAfterFailure(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "late.txt")
	job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := p.controller.Process(ctx, job.ID); err == nil {
		t.Fatal("expected processing to fail for missing file")
	}

	// Retry is only valid from failed.
	if _, err := p.controller.Retry(ctx, job.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	retried, _ := p.store.Get(ctx, job.ID)
	if retried.Status != StatusPending || retried.ErrorMessage != "" {
		t.Fatalf("retried job = %+v", retried)
	}

	if err := os.WriteFile(path, []byte("now the file exists with content"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := p.controller.Process(ctx, job.ID); err != nil {
		t.Fatalf("Process after retry: %v", err)
	}
	final, _ := p.store.Get(ctx, job.ID)
	if final.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}

	// Retrying a completed job is invalid.
	if _, err := p.controller.Retry(ctx, job.ID); err == nil {
		t.Error("expected Retry of completed job to fail")
	}
}
