package jobs

import (
	"context"
	"errors"
	"time"
)

// ProgressEvent is one progress snapshot for a job. NotFound marks the
// final event of a stream whose job disappeared mid-watch.
type ProgressEvent struct {
	JobID               string  `json:"job_id"`
	Status              Status  `json:"status,omitempty"`
	TotalChunks         int     `json:"total_chunks"`
	ProcessedChunks     int     `json:"processed_chunks"`
	FailedChunks        int     `json:"failed_chunks"`
	ProgressPct         float64 `json:"progress_pct"`
	CompletedWithErrors bool    `json:"completed_with_errors,omitempty"`
	NotFound            bool    `json:"not_found,omitempty"`
	ErrorMessage        string  `json:"error_message,omitempty"`
}

func snapshotEvent(job *IngestionJob) ProgressEvent {
	return ProgressEvent{
		JobID:               job.ID,
		Status:              job.Status,
		TotalChunks:         job.TotalChunks,
		ProcessedChunks:     job.ProcessedChunks,
		FailedChunks:        job.FailedChunks,
		ProgressPct:         job.ProgressPct(),
		CompletedWithErrors: job.CompletedWithErrors(),
		ErrorMessage:        job.ErrorMessage,
	}
}

// Watcher streams job progress by polling the store.
type Watcher struct {
	store    Store
	interval time.Duration
}

// NewWatcher creates a progress watcher. A non-positive interval
// defaults to 500ms.
func NewWatcher(store Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Watcher{store: store, interval: interval}
}

// Watch emits progress snapshots until the job reaches a terminal
// status, the job disappears (a final not-found event is emitted), or
// the context is cancelled. The first snapshot is emitted immediately
// and duplicates are suppressed. The channel is closed when the stream
// ends.
func (w *Watcher) Watch(ctx context.Context, jobID string) (<-chan ProgressEvent, error) {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	events := make(chan ProgressEvent, 1)
	last := snapshotEvent(job)
	events <- last

	go func() {
		defer close(events)
		if last.Status.Terminal() {
			return
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			job, err := w.store.Get(ctx, jobID)
			if errors.Is(err, ErrJobNotFound) {
				select {
				case events <- ProgressEvent{JobID: jobID, NotFound: true, ErrorMessage: "job not found"}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				continue
			}

			event := snapshotEvent(job)
			if event == last {
				continue
			}
			last = event

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
			if event.Status.Terminal() {
				return
			}
		}
	}()
	return events, nil
}
