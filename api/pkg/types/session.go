package types

import "time"

// SessionStatus is the persisted lifecycle state of a session. The
// externally visible status is derived from it, see SessionViewStatus.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusStopped   SessionStatus = "stopped"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// SessionViewStatus is what callers (the UI) see. It is never stored:
// completed_unviewed is an overlay computed from the viewed/updated
// timestamps at read time.
type SessionViewStatus string

const (
	ViewStatusInitializing      SessionViewStatus = "initializing"
	ViewStatusRunning           SessionViewStatus = "running"
	ViewStatusCompletedUnviewed SessionViewStatus = "completed_unviewed"
	ViewStatusStopped           SessionViewStatus = "stopped"
	ViewStatusError             SessionViewStatus = "error"
)

// AgentTool selects which coding agent CLI drives the session.
type AgentTool string

const (
	AgentToolClaude AgentTool = "claude"
	AgentToolCodex  AgentTool = "codex"
	AgentToolNone   AgentTool = "none"
)

// CommitMode controls how the session's worktree gets commits.
type CommitMode string

const (
	// CommitModeDisabled leaves the worktree uncommitted.
	CommitModeDisabled CommitMode = "disabled"
	// CommitModeCheckpoint commits a checkpoint after every prompt.
	CommitModeCheckpoint CommitMode = "checkpoint"
	// CommitModeStructured lets the agent manage its own commits.
	CommitModeStructured CommitMode = "structured"
)

// Session binds a user task to exactly one git worktree and, optionally,
// one running agent process. The worktree path is unique for the lifetime
// of the session; archiving releases the worktree but keeps the row.
type Session struct {
	ID        string `gorm:"type:varchar(255);primaryKey" json:"id"`
	Name      string `gorm:"type:varchar(255);not null;index" json:"name"`
	ProjectID string `gorm:"type:varchar(255);not null;index" json:"project_id"`
	FolderID  string `gorm:"type:varchar(255);index" json:"folder_id"`

	// WorktreePath is unique among live sessions only: archiving releases
	// the path so a later session can take the same name again.
	WorktreePath string `gorm:"type:varchar(1024);not null;uniqueIndex:idx_sessions_live_worktree_path,where:archived = false" json:"worktree_path"`
	WorktreeName string `gorm:"type:varchar(255);not null;index" json:"worktree_name"`
	Branch       string `gorm:"type:varchar(255);not null" json:"branch"`
	BaseBranch   string `gorm:"type:varchar(255)" json:"base_branch"`
	// BaseCommit is captured once at worktree creation and is the fixed
	// origin for all execution diffs. It is never recomputed from the
	// base branch, which may move forward afterwards.
	BaseCommit string `gorm:"type:varchar(64)" json:"base_commit"`

	Status        SessionStatus `gorm:"type:varchar(50);not null;index" json:"status"`
	StatusMessage string        `gorm:"type:text" json:"status_message"`
	Prompt        string        `gorm:"type:text" json:"prompt"`

	Tool       AgentTool  `gorm:"type:varchar(50)" json:"tool"`
	CommitMode CommitMode `gorm:"type:varchar(50)" json:"commit_mode"`
	AutoCommit bool       `gorm:"type:boolean;default:false" json:"auto_commit"`

	Archived     bool       `gorm:"type:boolean;default:false;index" json:"archived"`
	LastViewedAt *time.Time `json:"last_viewed_at"`

	// ViewStatus is computed at read time, never stored.
	ViewStatus SessionViewStatus `gorm:"-" json:"view_status,omitempty"`

	// CommitsAhead/CommitsBehind are computed against the live base
	// branch ref at read time, unlike BaseCommit which stays fixed.
	CommitsAhead  int `gorm:"-" json:"commits_ahead,omitempty"`
	CommitsBehind int `gorm:"-" json:"commits_behind,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// SessionFolder groups sessions created as one batch from a single prompt.
type SessionFolder struct {
	ID        string    `gorm:"type:varchar(255);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	ProjectID string    `gorm:"type:varchar(255);not null;index" json:"project_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SessionFolder) TableName() string {
	return "session_folders"
}
