package store

import (
	"context"
	"errors"

	"github.com/conductorhq/conductor/api/pkg/types"
)

var ErrNotFound = errors.New("not found")

type ListSessionsQuery struct {
	ProjectID       string `json:"project_id"`
	FolderID        string `json:"folder_id"`
	IncludeArchived bool   `json:"include_archived"`
	Offset          int    `json:"offset"`
	Limit           int    `json:"limit"`
}

//go:generate mockgen -source $GOFILE -destination store_mocks.go -package $GOPACKAGE

type Store interface {
	// projects
	CreateProject(ctx context.Context, project *types.Project) (*types.Project, error)
	GetProject(ctx context.Context, id string) (*types.Project, error)
	GetProjectByPath(ctx context.Context, path string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)
	UpdateProject(ctx context.Context, project *types.Project) (*types.Project, error)
	DeleteProject(ctx context.Context, id string) error

	// sessions
	CreateSession(ctx context.Context, session types.Session) (*types.Session, error)
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context, query ListSessionsQuery) ([]*types.Session, error)
	UpdateSession(ctx context.Context, session types.Session) (*types.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status types.SessionStatus, message string) error
	MarkSessionViewed(ctx context.Context, id string) error
	ArchiveSession(ctx context.Context, id string) error
	// ResetRunningSessions transitions every pending/running session to
	// stopped. Called once on process start-up: no in-process subprocess
	// state survives a restart.
	ResetRunningSessions(ctx context.Context) (int64, error)

	// name uniqueness checks used by the resolver
	SessionNameExists(ctx context.Context, projectID, name string) (bool, error)
	WorktreeNameExists(ctx context.Context, projectID, name string) (bool, error)

	// session folders (batch creation groups)
	CreateSessionFolder(ctx context.Context, folder *types.SessionFolder) (*types.SessionFolder, error)
	GetSessionFolder(ctx context.Context, id string) (*types.SessionFolder, error)
	ListSessionFolders(ctx context.Context, projectID string) ([]*types.SessionFolder, error)

	// execution diffs
	CreateExecutionDiff(ctx context.Context, diff *types.ExecutionDiff) (*types.ExecutionDiff, error)
	ListExecutionDiffs(ctx context.Context, sessionID string) ([]*types.ExecutionDiff, error)
	LatestExecutionDiff(ctx context.Context, sessionID string) (*types.ExecutionDiff, error)
}
