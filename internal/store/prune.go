package store

import (
	"context"
	"fmt"
	"time"
)

// PruneResult counts the rows removed by PruneBefore.
type PruneResult struct {
	Conversations int64
	Steps         int64
}

// PruneBefore deletes conversations and step checkpoints older than cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (res PruneResult, err error) {
	if cutoff.IsZero() {
		return PruneResult{}, fmt.Errorf("cutoff must be set")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return PruneResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	r, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE created_at < $1`, cutoff)
	if err != nil {
		return PruneResult{}, err
	}
	if res.Conversations, err = r.RowsAffected(); err != nil {
		return PruneResult{}, err
	}
	r, err = tx.ExecContext(ctx, `DELETE FROM run_steps WHERE updated_at < $1`, cutoff)
	if err != nil {
		return PruneResult{}, err
	}
	if res.Steps, err = r.RowsAffected(); err != nil {
		return PruneResult{}, err
	}
	if err = tx.Commit(); err != nil {
		return PruneResult{}, err
	}
	return res, nil
}
