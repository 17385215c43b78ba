package service

import (
	"context"
	"errors"
	"sync"

	"github.com/raphaelgruber/ocrdesk/internal/models"
)

// DefaultCapacity is the number of jobs retained before the oldest are evicted.
const DefaultCapacity = 20

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobActive       = errors.New("job is still running")
	ErrJobFinished     = errors.New("job already finished")
	ErrNotRetryable    = errors.New("only failed or canceled jobs can be retried")
	ErrBackendRequired = errors.New("backend required")
	ErrNoFiles         = errors.New("no files to process")

	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// Store persists jobs most-recent-first with bounded capacity.
type Store interface {
	// List returns every retained job, most recent first.
	List(ctx context.Context) ([]models.Job, error)
	// Get returns a job or ErrJobNotFound.
	Get(ctx context.Context, id string) (models.Job, error)
	// Insert places jobs in front of existing ones, in the given order, and
	// drops the oldest entries beyond capacity. It returns the evicted ids.
	Insert(ctx context.Context, jobs ...models.Job) ([]string, error)
	// Update replaces a stored job. Missing jobs yield ErrJobNotFound.
	Update(ctx context.Context, job models.Job) error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	jobs     []models.Job
}

// NewMemoryStore creates a store retaining at most capacity jobs.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) List(_ context.Context) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Job, len(s.jobs))
	copy(out, s.jobs)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return models.Job{}, ErrJobNotFound
}

func (s *MemoryStore) Insert(_ context.Context, jobs ...models.Job) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]models.Job, 0, len(jobs)+len(s.jobs))
	for _, j := range jobs {
		j.Settings = j.Settings.Clone()
		merged = append(merged, j)
	}
	merged = append(merged, s.jobs...)

	var evicted []string
	if len(merged) > s.capacity {
		for _, j := range merged[s.capacity:] {
			evicted = append(evicted, j.ID)
		}
		merged = merged[:s.capacity]
	}
	s.jobs = merged
	return evicted, nil
}

func (s *MemoryStore) Update(_ context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == job.ID {
			s.jobs[i] = job
			return nil
		}
	}
	return ErrJobNotFound
}
