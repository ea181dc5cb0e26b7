package types

import "time"

// FileDiffStat is the per-file change summary of one execution diff.
type FileDiffStat struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// ExecutionDiff is the captured output of one completed agent turn.
// Sequence numbers are strictly increasing per session and never reused;
// rows are immutable after creation.
type ExecutionDiff struct {
	ID        string `gorm:"type:varchar(255);primaryKey" json:"id"`
	SessionID string `gorm:"type:varchar(255);not null;uniqueIndex:idx_session_seq" json:"session_id"`
	Sequence  int64  `gorm:"not null;uniqueIndex:idx_session_seq" json:"sequence"`

	DiffText  string         `gorm:"type:text" json:"diff_text"`
	FileStats []FileDiffStat `gorm:"type:jsonb;serializer:json" json:"file_stats"`
	Additions int            `json:"additions"`
	Deletions int            `json:"deletions"`

	BeforeCommit string `gorm:"type:varchar(64)" json:"before_commit"`
	AfterCommit  string `gorm:"type:varchar(64)" json:"after_commit"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ExecutionDiff) TableName() string {
	return "execution_diffs"
}
