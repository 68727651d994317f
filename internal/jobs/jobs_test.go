package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}, ttl: map[string]time.Duration{}} }

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = string(value.([]byte))
	f.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"redis":  NewRedisRepository(newFakeKV(), time.Hour),
		"memory": NewMemoryRepository(16, time.Hour),
	}
}

func TestJobLifecycle(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, Job{ID: "j1", UserID: "u1", Query: "q"}))

			job, err := repo.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, StatusPending, job.Status)
			assert.False(t, job.CreatedAt.IsZero())

			require.NoError(t, repo.MarkRunning(ctx, "j1"))
			job, _ = repo.Get(ctx, "j1")
			assert.Equal(t, StatusRunning, job.Status)

			require.NoError(t, repo.Complete(ctx, "j1", map[string]string{"message": "done"}))
			job, _ = repo.Get(ctx, "j1")
			assert.Equal(t, StatusCompleted, job.Status)
			var result map[string]string
			require.NoError(t, json.Unmarshal(job.Result, &result))
			assert.Equal(t, "done", result["message"])
		})
	}
}

func TestJobFailure(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.Create(ctx, Job{ID: "j2"}))
			require.NoError(t, repo.Fail(ctx, "j2", "step boom: db down"))
			job, err := repo.Get(ctx, "j2")
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, job.Status)
			assert.Equal(t, "step boom: db down", job.Error)
		})
	}
}

func TestUnknownJob(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrJobNotFound)
			assert.ErrorIs(t, repo.MarkRunning(context.Background(), "missing"), ErrJobNotFound)
			assert.Error(t, repo.Create(context.Background(), Job{}))
		})
	}
}

func TestRedisRepositoryAppliesTTL(t *testing.T) {
	kv := newFakeKV()
	repo := NewRedisRepository(kv, 24*time.Hour)
	require.NoError(t, repo.Create(context.Background(), Job{ID: "j3"}))
	assert.Equal(t, 24*time.Hour, kv.ttl["job:j3"])
}
