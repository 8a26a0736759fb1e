package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meridiandb/meridian/pkg/logger"
)

// QueueConfig tunes the worker pool.
type QueueConfig struct {
	// Workers is the number of concurrent job processors.
	Workers int `yaml:"workers,omitempty" mapstructure:"workers"`

	// Capacity is the number of queued job IDs before Enqueue starts
	// failing.
	Capacity int `yaml:"capacity,omitempty" mapstructure:"capacity"`
}

// SetDefaults applies default values to unset fields.
func (c *QueueConfig) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Capacity <= 0 {
		c.Capacity = 256
	}
}

// Queue feeds pending jobs to a pool of workers. Each job is picked
// up by exactly one worker. A full queue rejects enqueues instead of
// blocking the caller.
type Queue struct {
	controller *Controller
	jobs       chan string
	logger     *slog.Logger
	workers    int

	mu      sync.Mutex
	group   *errgroup.Group
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// NewQueue creates a worker queue over a controller.
func NewQueue(cfg QueueConfig, controller *Controller) *Queue {
	cfg.SetDefaults()
	return &Queue{
		controller: controller,
		jobs:       make(chan string, cfg.Capacity),
		logger:     logger.GetLogger(),
		workers:    cfg.Workers,
	}
}

// Start launches the worker pool. It returns immediately; workers run
// until Stop is called or the context is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue already started")
	}
	q.started = true

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	q.group = group

	for i := 0; i < q.workers; i++ {
		group.Go(func() error {
			return q.worker(ctx)
		})
	}
	return nil
}

func (q *Queue) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case jobID, ok := <-q.jobs:
			if !ok {
				return nil
			}
			if err := q.controller.Process(ctx, jobID); err != nil {
				q.logger.Error("job processing failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// Enqueue submits a job ID for processing. It fails when the queue is
// full or shut down rather than blocking.
func (q *Queue) Enqueue(jobID string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is shut down")
	}
	q.mu.Unlock()

	select {
	case q.jobs <- jobID:
		return nil
	default:
		return fmt.Errorf("queue is full, job %s not enqueued", jobID)
	}
}

// Stop drains the queue and waits for in-flight jobs to finish.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.started || q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	group := q.group
	q.mu.Unlock()

	err := group.Wait()
	q.cancel()
	return err
}
