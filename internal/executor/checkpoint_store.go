package executor

import (
	"context"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/store"
)

type checkpointStore interface {
	UpsertStepCheckpoint(ctx context.Context, cp store.StepCheckpoint) error
}

// StoreCheckpointManager persists step checkpoints into run_steps.
type StoreCheckpointManager struct {
	store checkpointStore
}

// NewStoreCheckpointManager constructs a CheckpointManager backed by store.Store.
func NewStoreCheckpointManager(st checkpointStore) *StoreCheckpointManager {
	return &StoreCheckpointManager{store: st}
}

func (m *StoreCheckpointManager) StartRun(ctx context.Context, runID string, steps []string) error {
	// no-op: rows are created when a step is dispatched
	return nil
}

func (m *StoreCheckpointManager) SaveStepStart(ctx context.Context, runID, stepID string, wave int) error {
	if m.store == nil {
		return nil
	}
	return m.store.UpsertStepCheckpoint(ctx, store.StepCheckpoint{
		RunID:  runID,
		StepID: stepID,
		Status: store.StepStatusRunning,
		Wave:   wave,
	})
}

func (m *StoreCheckpointManager) SaveStepSuccess(ctx context.Context, runID, stepID string, wave int, res agent.StepResult) error {
	if m.store == nil {
		return nil
	}
	return m.store.UpsertStepCheckpoint(ctx, store.StepCheckpoint{
		RunID:  runID,
		StepID: stepID,
		Status: store.StepStatusCompleted,
		Wave:   wave,
		Result: map[string]interface{}{
			"status": string(res.Status),
			"data":   res.Data,
		},
	})
}

func (m *StoreCheckpointManager) SaveStepFailure(ctx context.Context, runID, stepID string, wave int, err error) error {
	if m.store == nil {
		return nil
	}
	cp := store.StepCheckpoint{
		RunID:  runID,
		StepID: stepID,
		Status: store.StepStatusFailed,
		Wave:   wave,
	}
	if err != nil {
		cp.Error = err.Error()
	}
	return m.store.UpsertStepCheckpoint(ctx, cp)
}

var _ CheckpointManager = (*StoreCheckpointManager)(nil)
