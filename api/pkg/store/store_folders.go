package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/conductorhq/conductor/api/pkg/system"
	"github.com/conductorhq/conductor/api/pkg/types"
)

func (s *SQLStore) CreateSessionFolder(ctx context.Context, folder *types.SessionFolder) (*types.SessionFolder, error) {
	if folder.ID == "" {
		folder.ID = system.GenerateFolderID()
	}
	err := s.gdb.WithContext(ctx).Create(folder).Error
	if err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *SQLStore) GetSessionFolder(ctx context.Context, id string) (*types.SessionFolder, error) {
	var folder types.SessionFolder
	err := s.gdb.WithContext(ctx).Where("id = ?", id).First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &folder, nil
}

func (s *SQLStore) ListSessionFolders(ctx context.Context, projectID string) ([]*types.SessionFolder, error) {
	db := s.gdb.WithContext(ctx).Model(&types.SessionFolder{})
	if projectID != "" {
		db = db.Where("project_id = ?", projectID)
	}
	var folders []*types.SessionFolder
	err := db.Order("created_at DESC").Find(&folders).Error
	if err != nil {
		return nil, err
	}
	return folders, nil
}
