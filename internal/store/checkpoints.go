package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// StepCheckpoint captures the last known state of one step of a run.
type StepCheckpoint struct {
	RunID     string
	StepID    string
	Status    string
	Wave      int
	Result    map[string]interface{}
	Error     string
	UpdatedAt time.Time
}

// UpsertStepCheckpoint records the step state, replacing any previous row.
func (s *Store) UpsertStepCheckpoint(ctx context.Context, cp StepCheckpoint) error {
	if cp.RunID == "" || cp.StepID == "" {
		return fmt.Errorf("run_id and step_id are required")
	}
	var result interface{}
	if cp.Result != nil {
		b, err := json.Marshal(cp.Result)
		if err != nil {
			return fmt.Errorf("marshal step result: %w", err)
		}
		result = b
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO run_steps (run_id, step_id, status, wave, result, error, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (run_id, step_id) DO UPDATE SET
  status     = EXCLUDED.status,
  wave       = EXCLUDED.wave,
  result     = EXCLUDED.result,
  error      = EXCLUDED.error,
  updated_at = NOW();
`, cp.RunID, cp.StepID, cp.Status, cp.Wave, result, nullIfEmpty(cp.Error))
	return err
}

// ListStepCheckpoints returns the steps recorded for a run in wave order.
func (s *Store) ListStepCheckpoints(ctx context.Context, runID string) ([]StepCheckpoint, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT run_id, step_id, status, wave, result, COALESCE(error, ''), updated_at
FROM run_steps
WHERE run_id = $1
ORDER BY wave, step_id
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StepCheckpoint
	for rows.Next() {
		var (
			cp     StepCheckpoint
			result []byte
		)
		if err := rows.Scan(&cp.RunID, &cp.StepID, &cp.Status, &cp.Wave, &result, &cp.Error, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		if len(result) > 0 {
			_ = json.Unmarshal(result, &cp.Result)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
