package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridiandb/meridian/pkg/chunking"
	"github.com/meridiandb/meridian/pkg/collections"
	"github.com/meridiandb/meridian/pkg/jobs"
	"github.com/meridiandb/meridian/pkg/parsers"
	"github.com/meridiandb/meridian/pkg/search"
	"github.com/meridiandb/meridian/pkg/vectorstore"
)

type searchRequest struct {
	Text         string         `json:"text,omitempty"`
	Vector       []float32      `json:"vector,omitempty"`
	TopK         int            `json:"top_k,omitempty"`
	Filters      map[string]any `json:"filters,omitempty"`
	VectorWeight float64        `json:"vector_weight,omitempty"`
	TextWeight   float64        `json:"text_weight,omitempty"`
}

type searchResponse struct {
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
	TookMS  float64         `json:"took_ms"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.runSearch(w, r, s.engine.Similarity)
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	s.runSearch(w, r, s.engine.Hybrid)
}

func (s *Server) handleTextSearch(w http.ResponseWriter, r *http.Request) {
	s.runSearch(w, r, s.engine.TextRank)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, req search.Request) ([]search.Result, error)) {
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := search.Request{
		Collection:   chi.URLParam(r, "collection"),
		QueryText:    body.Text,
		QueryVector:  body.Vector,
		Limit:        body.TopK,
		Filter:       body.Filters,
		VectorWeight: body.VectorWeight,
		TextWeight:   body.TextWeight,
	}

	started := time.Now()
	results, err := fn(r.Context(), req)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Count:   len(results),
		TookMS:  float64(time.Since(started).Microseconds()) / 1000,
	})
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	var invalid *search.InvalidQueryError
	var mismatch *search.DimensionMismatchError
	switch {
	case errors.Is(err, collections.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, "collection not found")
	case errors.As(err, &invalid), errors.As(err, &mismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vectorstore.ErrTextRankUnsupported):
		writeError(w, http.StatusBadRequest, "text search is not supported by this vector store")
	default:
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
	}
}

type uploadResponse struct {
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	FileSize   int64  `json:"file_size"`
	FileType   string `json:"file_type"`
	Collection string `json:"collection,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Server.MaxUploadBytes
	if r.ContentLength > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds maximum upload size of %d bytes", maxBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds maximum upload size of %d bytes", maxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !parsers.IsSupported(ext) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(parsers.SupportedTypes(), ", ")))
		return
	}

	if err := os.MkdirAll(s.config.Server.UploadDir, 0o755); err != nil {
		s.logger.Error("failed to create upload dir", "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	path := filepath.Join(s.config.Server.UploadDir, uuid.NewString()+"."+ext)
	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error("failed to create upload file", "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	size, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(path)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds maximum upload size of %d bytes", maxBytes))
			return
		}
		s.logger.Error("failed to save upload", "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		FilePath:   path,
		FileName:   header.Filename,
		FileSize:   size,
		FileType:   ext,
		Collection: r.FormValue("collection"),
	})
}

type createJobRequest struct {
	Collection string          `json:"collection"`
	FilePath   string          `json:"file_path"`
	FileType   string          `json:"file_type"`
	Chunking   chunking.Config `json:"chunking"`
}

// jobView augments the stored job with derived read-only fields.
type jobView struct {
	*jobs.IngestionJob
	ProgressPct         float64 `json:"progress_pct"`
	CompletedWithErrors bool    `json:"completed_with_errors"`
}

func viewOf(job *jobs.IngestionJob) jobView {
	return jobView{
		IngestionJob:        job,
		ProgressPct:         job.ProgressPct(),
		CompletedWithErrors: job.CompletedWithErrors(),
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Collection == "" || body.FilePath == "" {
		writeError(w, http.StatusBadRequest, "collection and file_path are required")
		return
	}

	fileType := body.FileType
	if fileType == "" {
		fileType = strings.ToLower(strings.TrimPrefix(filepath.Ext(body.FilePath), "."))
	}

	job, err := s.controller.Submit(r.Context(), body.Collection, body.FilePath, fileType, body.Chunking)
	if err != nil {
		var unsupported *parsers.UnsupportedFileTypeError
		if errors.As(err, &unsupported) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to create job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	s.dispatch(job.ID)
	writeJSON(w, http.StatusCreated, viewOf(job))
}

// dispatch hands a pending job to the worker queue. A full or stopped
// queue leaves the job pending; it can be re-enqueued later.
func (s *Server) dispatch(jobID string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(jobID); err != nil {
		s.logger.Warn("job left pending, queue unavailable", "job_id", jobID, "error", err)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	opts := jobs.ListOptions{
		Status: jobs.Status(r.URL.Query().Get("status")),
	}
	if opts.Status != "" && !opts.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status filter: %s", opts.Status))
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	items, total, err := s.jobs.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	views := make([]jobView, 0, len(items))
	for _, job := range items {
		views = append(views, viewOf(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"total": total,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.controller.Cancel(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.controller.Retry(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	s.dispatch(job.ID)
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	var transition *jobs.InvalidTransitionError
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.As(err, &transition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("job operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job operation failed")
	}
}

// handleJobProgress streams progress snapshots as SSE until the job
// reaches a terminal status or the client disconnects.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := s.watcher.Watch(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
