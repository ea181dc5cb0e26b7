package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/conductorhq/conductor/api/pkg/system"
	"github.com/conductorhq/conductor/api/pkg/types"
)

// CreateExecutionDiff assigns the next per-session sequence number inside
// a transaction and inserts the row. The unique (session_id, sequence)
// index backstops the transaction: two racing writers cannot both take
// the same sequence even on backends with weaker isolation.
func (s *SQLStore) CreateExecutionDiff(ctx context.Context, diff *types.ExecutionDiff) (*types.ExecutionDiff, error) {
	if diff.ID == "" {
		diff.ID = system.GenerateExecutionDiffID()
	}

	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		err := tx.Model(&types.ExecutionDiff{}).
			Where("session_id = ?", diff.SessionID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&maxSeq).Error
		if err != nil {
			return err
		}
		diff.Sequence = maxSeq + 1
		return tx.Create(diff).Error
	})
	if err != nil {
		return nil, err
	}
	return diff, nil
}

func (s *SQLStore) ListExecutionDiffs(ctx context.Context, sessionID string) ([]*types.ExecutionDiff, error) {
	var diffs []*types.ExecutionDiff
	err := s.gdb.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&diffs).Error
	if err != nil {
		return nil, err
	}
	return diffs, nil
}

func (s *SQLStore) LatestExecutionDiff(ctx context.Context, sessionID string) (*types.ExecutionDiff, error) {
	var diff types.ExecutionDiff
	err := s.gdb.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence DESC").
		First(&diff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &diff, nil
}
