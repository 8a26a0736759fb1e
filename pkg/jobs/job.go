// Package jobs runs document ingestion: parse, chunk, embed, store,
// tracked as a persistent job with cooperative cancellation.
package jobs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridiandb/meridian/pkg/chunking"
)

// ErrJobNotFound is returned when no job matches the requested ID.
var ErrJobNotFound = errors.New("ingestion job not found")

// Status is an ingestion job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions
// except retry from failed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// InvalidTransitionError reports a status change the state machine
// does not allow.
type InvalidTransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.JobID, e.From, e.To)
}

// transitions lists the allowed status changes. Retry (failed ->
// pending) goes through ResetForRetry, which also clears counters.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:     {StatusPending},
}

func allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IngestionJob is one document ingestion run.
type IngestionJob struct {
	ID             string          `json:"id"`
	CollectionName string          `json:"collection_name"`
	FilePath       string          `json:"file_path"`
	FileType       string          `json:"file_type"`
	Chunking       chunking.Config `json:"chunking"`

	Status          Status `json:"status"`
	TotalChunks     int    `json:"total_chunks"`
	ProcessedChunks int    `json:"processed_chunks"`
	FailedChunks    int    `json:"failed_chunks"`
	ErrorMessage    string `json:"error_message,omitempty"`

	// CancelRequested asks the worker to stop at the next batch
	// boundary.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewIngestionJob creates a pending job for a document.
func NewIngestionJob(collectionName, filePath, fileType string, cfg chunking.Config) *IngestionJob {
	cfg.SetDefaults()
	now := time.Now().UTC()
	return &IngestionJob{
		ID:             uuid.NewString(),
		CollectionName: collectionName,
		FilePath:       filePath,
		FileType:       fileType,
		Chunking:       cfg,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo moves the job to a new status, stamping timestamps for
// processing start and terminal end.
func (j *IngestionJob) TransitionTo(status Status) error {
	if !allowed(j.Status, status) {
		return &InvalidTransitionError{JobID: j.ID, From: j.Status, To: status}
	}
	now := time.Now().UTC()
	j.Status = status
	j.UpdatedAt = now
	switch status {
	case StatusProcessing:
		j.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = &now
	}
	return nil
}

// Fail moves the job to failed and records the cause.
func (j *IngestionJob) Fail(message string) error {
	if err := j.TransitionTo(StatusFailed); err != nil {
		return err
	}
	j.ErrorMessage = message
	return nil
}

// RequestCancel marks the job for cooperative cancellation. A pending
// job cancels immediately; a processing job stops at the next batch
// boundary. Terminal jobs cannot be cancelled.
func (j *IngestionJob) RequestCancel() error {
	switch j.Status {
	case StatusPending:
		return j.TransitionTo(StatusCancelled)
	case StatusProcessing:
		j.CancelRequested = true
		j.UpdatedAt = time.Now().UTC()
		return nil
	default:
		return &InvalidTransitionError{JobID: j.ID, From: j.Status, To: StatusCancelled}
	}
}

// ResetForRetry returns a failed job to pending, clearing the error
// and all progress counters.
func (j *IngestionJob) ResetForRetry() error {
	if j.Status != StatusFailed {
		return &InvalidTransitionError{JobID: j.ID, From: j.Status, To: StatusPending}
	}
	j.Status = StatusPending
	j.ErrorMessage = ""
	j.TotalChunks = 0
	j.ProcessedChunks = 0
	j.FailedChunks = 0
	j.CancelRequested = false
	j.StartedAt = nil
	j.CompletedAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// CompletedWithErrors reports a completed job that skipped some
// chunks. The stored status stays completed; this is a derived view.
func (j *IngestionJob) CompletedWithErrors() bool {
	return j.Status == StatusCompleted && j.FailedChunks > 0
}

// ProgressPct returns processing progress as a percentage rounded to
// one decimal. Zero total chunks reads as zero progress.
func (j *IngestionJob) ProgressPct() float64 {
	if j.TotalChunks == 0 {
		return 0
	}
	pct := float64(j.ProcessedChunks) / float64(j.TotalChunks) * 100
	return math.Round(pct*10) / 10
}

// Clone returns a deep copy of the job snapshot.
func (j *IngestionJob) Clone() *IngestionJob {
	clone := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}
