package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ListOptions filters and pages job listings.
type ListOptions struct {
	// Status restricts results to one status when set.
	Status Status

	// Limit caps the page size; zero means the store default.
	Limit int

	// Offset skips the first N jobs, newest first.
	Offset int
}

// Store persists job snapshots. Saves are whole-record and
// last-writer-wins; the controller re-reads before acting on the
// cancel flag to narrow the race.
type Store interface {
	// Create persists a new job.
	Create(ctx context.Context, job *IngestionJob) error

	// Get returns the job by ID, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*IngestionJob, error)

	// Update overwrites the stored snapshot.
	Update(ctx context.Context, job *IngestionJob) error

	// List returns a page of jobs, newest first, plus the total count
	// matching the filter.
	List(ctx context.Context, opts ListOptions) ([]*IngestionJob, int, error)
}

const defaultListLimit = 50

// MemoryStore is an in-memory job store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*IngestionJob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*IngestionJob)}
}

func (s *MemoryStore) Create(ctx context.Context, job *IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, job *IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*IngestionJob, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*IngestionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if opts.Status != "" && job.Status != opts.Status {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, k int) bool {
		if matched[i].CreatedAt.Equal(matched[k].CreatedAt) {
			return matched[i].ID > matched[k].ID
		}
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	total := len(matched)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]*IngestionJob, 0, end-start)
	for _, job := range matched[start:end] {
		page = append(page, job.Clone())
	}
	return page, total, nil
}

var _ Store = (*MemoryStore)(nil)
