// Package jobs tracks the status of queries executed in the background.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrJobNotFound indicates an unknown or expired job id.
var ErrJobNotFound = errors.New("job not found")

// Status of a background job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the persisted state of a submitted query.
type Job struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Query     string          `json:"query"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Repository stores jobs.
type Repository interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	MarkRunning(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result interface{}) error
	Fail(ctx context.Context, id string, reason string) error
}

// transition loads id, applies fn and saves the job back.
func transition(ctx context.Context, load func(context.Context, string) (Job, error), save func(context.Context, Job) error, id string, fn func(*Job) error) error {
	job, err := load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(&job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	return save(ctx, job)
}

func complete(result interface{}) func(*Job) error {
	return func(j *Job) error {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		j.Status = StatusCompleted
		j.Result = raw
		j.Error = ""
		return nil
	}
}

func fail(reason string) func(*Job) error {
	return func(j *Job) error {
		j.Status = StatusFailed
		j.Error = reason
		return nil
	}
}

func running(j *Job) error {
	j.Status = StatusRunning
	return nil
}
