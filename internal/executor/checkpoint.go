package executor

import (
	"context"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
)

// CheckpointManager persists per-step progress of a run. Implementations
// must be safe for concurrent use: steps of one wave report concurrently.
type CheckpointManager interface {
	StartRun(ctx context.Context, runID string, steps []string) error
	SaveStepStart(ctx context.Context, runID, stepID string, wave int) error
	SaveStepSuccess(ctx context.Context, runID, stepID string, wave int, res agent.StepResult) error
	SaveStepFailure(ctx context.Context, runID, stepID string, wave int, err error) error
}

// NoopCheckpointManager is a default implementation that records nothing.
type NoopCheckpointManager struct{}

// NewNoopCheckpointManager returns a checkpoint manager that does nothing.
func NewNoopCheckpointManager() *NoopCheckpointManager { return &NoopCheckpointManager{} }

func (NoopCheckpointManager) StartRun(ctx context.Context, runID string, steps []string) error {
	return nil
}
func (NoopCheckpointManager) SaveStepStart(ctx context.Context, runID, stepID string, wave int) error {
	return nil
}
func (NoopCheckpointManager) SaveStepSuccess(ctx context.Context, runID, stepID string, wave int, res agent.StepResult) error {
	return nil
}
func (NoopCheckpointManager) SaveStepFailure(ctx context.Context, runID, stepID string, wave int, err error) error {
	return nil
}
