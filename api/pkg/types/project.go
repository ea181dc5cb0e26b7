package types

import "time"

// Project is a git repository that sessions are created against.
type Project struct {
	ID   string `gorm:"type:varchar(255);primaryKey" json:"id"`
	Name string `gorm:"type:varchar(255);not null" json:"name"`
	// Path is the repository root on disk.
	Path string `gorm:"type:varchar(1024);not null;uniqueIndex" json:"path"`

	// DefaultBaseBranch is used when a creation request does not name a
	// base branch. Empty means "whatever HEAD points at".
	DefaultBaseBranch string `gorm:"type:varchar(255)" json:"default_base_branch"`
	// WorktreeFolder is the subdirectory under Path where worktrees are
	// materialized. Defaults to config when empty.
	WorktreeFolder string `gorm:"type:varchar(255)" json:"worktree_folder"`
	// SetupCommand, when set, runs in every freshly created worktree
	// before the agent is started (dependency install, codegen, ...).
	SetupCommand string `gorm:"type:text" json:"setup_command"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
