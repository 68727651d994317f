package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "job:"

// KV is the subset of the redis client used by RedisRepository.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisRepository stores jobs as JSON values that expire after ttl.
type RedisRepository struct {
	client KV
	ttl    time.Duration
}

// NewRedisRepository returns a redis backed Repository.
func NewRedisRepository(client KV, ttl time.Duration) *RedisRepository {
	return &RedisRepository{client: client, ttl: ttl}
}

func (r *RedisRepository) Create(ctx context.Context, job Job) error {
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
	return r.save(ctx, job)
}

func (r *RedisRepository) Get(ctx context.Context, id string) (Job, error) {
	val, err := r.client.Get(ctx, jobKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, err
	}
	var job Job
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (r *RedisRepository) MarkRunning(ctx context.Context, id string) error {
	return transition(ctx, r.Get, r.save, id, running)
}

func (r *RedisRepository) Complete(ctx context.Context, id string, result interface{}) error {
	return transition(ctx, r.Get, r.save, id, complete(result))
}

func (r *RedisRepository) Fail(ctx context.Context, id string, reason string) error {
	return transition(ctx, r.Get, r.save, id, fail(reason))
}

func (r *RedisRepository) save(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, jobKeyPrefix+job.ID, data, r.ttl).Err()
}

var _ Repository = (*RedisRepository)(nil)
