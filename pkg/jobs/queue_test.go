package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/meridiandb/meridian/pkg/chunking"
)

func TestQueue_ProcessesEnqueuedJobs(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	queue := NewQueue(QueueConfig{Workers: 2, Capacity: 8}, p.controller)
	if err := queue.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		path := writeTestDoc(t, strings.Repeat("Queue worker content. ", 10))
		job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{Size: 60})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if err := queue.Enqueue(job.ID); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, job.ID)
	}

	if err := queue.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for _, id := range ids {
		job, err := p.store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status != StatusCompleted {
			t.Errorf("job %s status = %s (%s)", id, job.Status, job.ErrorMessage)
		}
	}
}

func TestQueue_EnqueueFailsWhenFull(t *testing.T) {
	p := newTestPipeline(t, nil)

	// Never started, so nothing drains the channel.
	queue := NewQueue(QueueConfig{Workers: 1, Capacity: 1}, p.controller)
	if err := queue.Enqueue("first"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := queue.Enqueue("second"); err == nil {
		t.Fatal("expected full queue to reject enqueue")
	}
}

func TestQueue_EnqueueFailsAfterStop(t *testing.T) {
	p := newTestPipeline(t, nil)

	queue := NewQueue(QueueConfig{Workers: 1, Capacity: 4}, p.controller)
	if err := queue.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := queue.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := queue.Enqueue("late"); err == nil {
		t.Fatal("expected enqueue after stop to fail")
	}
}

func TestQueue_StartTwiceFails(t *testing.T) {
	p := newTestPipeline(t, nil)

	queue := NewQueue(QueueConfig{}, p.controller)
	if err := queue.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer queue.Stop()

	if err := queue.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestQueue_StopWaitsForInflight(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	queue := NewQueue(QueueConfig{Workers: 1, Capacity: 4}, p.controller)
	if err := queue.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path := writeTestDoc(t, strings.Repeat("Inflight content. ", 30))
	job, err := p.controller.Submit(ctx, "docs", path, "txt", chunking.Config{Size: 40})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := queue.Enqueue(job.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		queue.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return")
	}

	final, _ := p.store.Get(ctx, job.ID)
	if !final.Status.Terminal() {
		t.Errorf("job left non-terminal after Stop: %s", final.Status)
	}
}
