package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryRepository keeps jobs in process. Jobs expire after ttl and the
// oldest are evicted beyond size.
type MemoryRepository struct {
	mu   sync.Mutex
	jobs *expirable.LRU[string, Job]
}

// NewMemoryRepository returns an in-process Repository.
func NewMemoryRepository(size int, ttl time.Duration) *MemoryRepository {
	if size <= 0 {
		size = 10000
	}
	return &MemoryRepository{jobs: expirable.NewLRU[string, Job](size, nil, ttl)}
}

func (m *MemoryRepository) Create(ctx context.Context, job Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}
	m.jobs.Add(job.ID, job)
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (Job, error) {
	job, ok := m.jobs.Get(id)
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (m *MemoryRepository) MarkRunning(ctx context.Context, id string) error {
	return m.update(ctx, id, running)
}

func (m *MemoryRepository) Complete(ctx context.Context, id string, result interface{}) error {
	return m.update(ctx, id, complete(result))
}

func (m *MemoryRepository) Fail(ctx context.Context, id string, reason string) error {
	return m.update(ctx, id, fail(reason))
}

func (m *MemoryRepository) update(ctx context.Context, id string, fn func(*Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return transition(ctx, m.Get, m.put, id, fn)
}

func (m *MemoryRepository) put(ctx context.Context, job Job) error {
	m.jobs.Add(job.ID, job)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
