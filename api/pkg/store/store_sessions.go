package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/conductorhq/conductor/api/pkg/system"
	"github.com/conductorhq/conductor/api/pkg/types"
)

func (s *SQLStore) CreateSession(ctx context.Context, session types.Session) (*types.Session, error) {
	if session.ID == "" {
		session.ID = system.GenerateSessionID()
	}
	if session.Status == "" {
		session.Status = types.SessionStatusPending
	}
	if session.WorktreePath == "" {
		return nil, fmt.Errorf("session worktree path is required")
	}

	err := s.gdb.WithContext(ctx).Create(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var session types.Session
	err := s.gdb.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *SQLStore) ListSessions(ctx context.Context, query ListSessionsQuery) ([]*types.Session, error) {
	db := s.gdb.WithContext(ctx).Model(&types.Session{})

	if query.ProjectID != "" {
		db = db.Where("project_id = ?", query.ProjectID)
	}
	if query.FolderID != "" {
		db = db.Where("folder_id = ?", query.FolderID)
	}
	if !query.IncludeArchived {
		db = db.Where("archived = ?", false)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}

	var sessions []*types.Session
	err := db.Order("created_at DESC").Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *SQLStore) UpdateSession(ctx context.Context, session types.Session) (*types.Session, error) {
	if session.ID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	session.UpdatedAt = time.Now()
	err := s.gdb.WithContext(ctx).Save(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SQLStore) UpdateSessionStatus(ctx context.Context, id string, status types.SessionStatus, message string) error {
	result := s.gdb.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", id).
		Updates(touch(map[string]interface{}{
			"status":         status,
			"status_message": message,
		}))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSessionViewed records the viewed timestamp without bumping
// updated_at, so the completed_unviewed overlay collapses on the next
// status read instead of re-arming itself.
func (s *SQLStore) MarkSessionViewed(ctx context.Context, id string) error {
	result := s.gdb.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", id).
		UpdateColumn("last_viewed_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveSession soft deletes: the row stays visible to IncludeArchived
// queries, the bound worktree is released by the session service.
func (s *SQLStore) ArchiveSession(ctx context.Context, id string) error {
	result := s.gdb.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", id).
		Updates(touch(map[string]interface{}{
			"archived": true,
		}))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ResetRunningSessions(ctx context.Context) (int64, error) {
	result := s.gdb.WithContext(ctx).Model(&types.Session{}).
		Where("status IN ?", []types.SessionStatus{
			types.SessionStatusPending,
			types.SessionStatusRunning,
		}).
		Updates(touch(map[string]interface{}{
			"status":         types.SessionStatusStopped,
			"status_message": "",
		}))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *SQLStore) SessionNameExists(ctx context.Context, projectID, name string) (bool, error) {
	var count int64
	err := s.gdb.WithContext(ctx).Model(&types.Session{}).
		Where("project_id = ? AND name = ? AND archived = ?", projectID, name, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLStore) WorktreeNameExists(ctx context.Context, projectID, name string) (bool, error) {
	var count int64
	err := s.gdb.WithContext(ctx).Model(&types.Session{}).
		Where("project_id = ? AND worktree_name = ? AND archived = ?", projectID, name, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
