// Package agent defines the capability boundary to the externally
// managed coding-agent processes, plus the panel registry the creation
// pipeline waits on before issuing a start call.
package agent

import (
	"context"

	"github.com/conductorhq/conductor/api/pkg/types"
)

// StartRequest carries everything the external agent host needs to boot
// an agent in a session's worktree.
type StartRequest struct {
	Prompt       string           `json:"prompt"`
	WorktreePath string           `json:"worktree_path"`
	Tool         types.AgentTool  `json:"tool"`
	CommitMode   types.CommitMode `json:"commit_mode"`
	AutoCommit   bool             `json:"auto_commit"`
}

// Target addresses an agent either by its externally-assigned panel id
// (preferred) or by session id (for hosts that never adopted panels).
// The caller selects the addressing mode explicitly by setting exactly
// one field; implementations must support both.
type Target struct {
	PanelID   string `json:"panel_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

//go:generate mockgen -source $GOFILE -destination agent_mocks.go -package $GOPACKAGE

// Starter is the injected start/continue/input capability. All three
// operations are fire-and-confirm: streaming agent output happens
// entirely outside this core.
type Starter interface {
	Start(ctx context.Context, target Target, req StartRequest) error
	Continue(ctx context.Context, target Target, prompt string) error
	SendInput(ctx context.Context, target Target, input string) error
}
