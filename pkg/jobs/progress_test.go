package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWatcher_UnknownJob(t *testing.T) {
	watcher := NewWatcher(NewMemoryStore(), time.Millisecond)

	_, err := watcher.Watch(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestWatcher_TerminalJobEmitsOnceAndCloses(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := newTestJob()
	job.Status = StatusCompleted
	job.TotalChunks = 4
	job.ProcessedChunks = 4
	job.FailedChunks = 1
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	watcher := NewWatcher(store, time.Millisecond)
	events, err := watcher.Watch(ctx, job.ID)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	event, ok := <-events
	if !ok {
		t.Fatal("no initial event")
	}
	if event.Status != StatusCompleted || event.ProgressPct != 100 {
		t.Errorf("event = %+v", event)
	}
	if !event.CompletedWithErrors {
		t.Error("completed_with_errors not set on event")
	}

	if _, ok := <-events; ok {
		t.Fatal("expected channel to close after terminal event")
	}
}

func TestWatcher_StreamsProgressToTerminal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := newTestJob()
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	watcher := NewWatcher(store, time.Millisecond)
	events, err := watcher.Watch(ctx, job.ID)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Drive the job through its lifecycle from another goroutine.
	go func() {
		working, _ := store.Get(ctx, job.ID)
		working.TransitionTo(StatusProcessing)
		working.TotalChunks = 10
		store.Update(ctx, working)

		working.ProcessedChunks = 5
		store.Update(ctx, working)

		working.ProcessedChunks = 10
		working.TransitionTo(StatusCompleted)
		store.Update(ctx, working)
	}()

	var received []ProgressEvent
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				if len(received) == 0 {
					t.Fatal("stream closed without events")
				}
				last := received[len(received)-1]
				if last.Status != StatusCompleted {
					t.Fatalf("final event status = %s", last.Status)
				}
				if last.ProgressPct != 100 {
					t.Errorf("final progress = %v", last.ProgressPct)
				}
				for i := 1; i < len(received); i++ {
					if received[i] == received[i-1] {
						t.Error("duplicate event emitted")
					}
				}
				return
			}
			received = append(received, event)
		case <-deadline:
			t.Fatal("stream did not terminate")
		}
	}
}

// vanishingStore reports the job missing once armed.
type vanishingStore struct {
	*MemoryStore
	gone chan struct{}
}

func (s *vanishingStore) Get(ctx context.Context, id string) (*IngestionJob, error) {
	select {
	case <-s.gone:
		return nil, ErrJobNotFound
	default:
		return s.MemoryStore.Get(ctx, id)
	}
}

func TestWatcher_DeletedJobEmitsNotFound(t *testing.T) {
	store := &vanishingStore{MemoryStore: NewMemoryStore(), gone: make(chan struct{})}
	ctx := context.Background()

	job := newTestJob()
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	watcher := NewWatcher(store, time.Millisecond)
	events, err := watcher.Watch(ctx, job.ID)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	first := <-events
	if first.Status != StatusPending || first.NotFound {
		t.Fatalf("initial event = %+v", first)
	}
	close(store.gone)

	var last ProgressEvent
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				if !last.NotFound {
					t.Fatalf("stream ended without a not-found event, last = %+v", last)
				}
				if last.JobID != job.ID || last.ErrorMessage == "" {
					t.Errorf("not-found event = %+v", last)
				}
				return
			}
			last = event
		case <-deadline:
			t.Fatal("stream did not terminate")
		}
	}
}

func TestWatcher_ContextCancelEndsStream(t *testing.T) {
	store := NewMemoryStore()
	job := newTestJob()
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	watcher := NewWatcher(store, time.Millisecond)
	events, err := watcher.Watch(ctx, job.ID)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	<-events // initial snapshot
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			// One in-flight event may arrive; the next read must close.
			if _, ok := <-events; ok {
				t.Fatal("stream did not close after context cancel")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after context cancel")
	}
}
