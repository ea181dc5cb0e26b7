package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/conductorhq/conductor/api/pkg/system"
	"github.com/conductorhq/conductor/api/pkg/types"
)

func (s *SQLStore) CreateProject(ctx context.Context, project *types.Project) (*types.Project, error) {
	if project.ID == "" {
		project.ID = system.GenerateProjectID()
	}
	err := s.gdb.WithContext(ctx).Create(project).Error
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *SQLStore) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var project types.Project
	err := s.gdb.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (s *SQLStore) GetProjectByPath(ctx context.Context, path string) (*types.Project, error) {
	var project types.Project
	err := s.gdb.WithContext(ctx).Where("path = ?", path).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (s *SQLStore) ListProjects(ctx context.Context) ([]*types.Project, error) {
	var projects []*types.Project
	err := s.gdb.WithContext(ctx).Order("created_at DESC").Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *SQLStore) UpdateProject(ctx context.Context, project *types.Project) (*types.Project, error) {
	project.UpdatedAt = time.Now()
	err := s.gdb.WithContext(ctx).Save(project).Error
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *SQLStore) DeleteProject(ctx context.Context, id string) error {
	return s.gdb.WithContext(ctx).Where("id = ?", id).Delete(&types.Project{}).Error
}
