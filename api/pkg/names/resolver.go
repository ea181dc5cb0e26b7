// Package names derives session display names and workspace directory
// names that are unique across the session store and the filesystem.
package names

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conductorhq/conductor/api/pkg/system"
)

// maxWorkspaceNameLen keeps workspace directory and branch names short
// enough to stay readable in branch listings.
const maxWorkspaceNameLen = 60

// maxAttempts bounds the disambiguation loop. Hitting it means something
// is systematically wrong (e.g. the store and disk disagree forever).
const maxAttempts = 100

//go:generate mockgen -source $GOFILE -destination names_mocks.go -package $GOPACKAGE

// UniquenessStore is the slice of the session store the resolver needs.
type UniquenessStore interface {
	SessionNameExists(ctx context.Context, projectID, name string) (bool, error)
	WorktreeNameExists(ctx context.Context, projectID, name string) (bool, error)
}

// Resolver picks (display name, workspace name) pairs that are unique in
// the store's name index, the store's workspace-name index, and on disk.
// The disk check matters because worktrees can be created in ways that
// bypass the store entirely, so store-only uniqueness is insufficient.
//
// Callers must hold the session-creation lock across resolution and the
// subsequent creation: the resolver only reads, it does not reserve.
type Resolver struct {
	store UniquenessStore
}

func NewResolver(store UniquenessStore) *Resolver {
	return &Resolver{store: store}
}

// ResolveRequest carries the candidate names and where the workspace
// would land on disk.
type ResolveRequest struct {
	ProjectID   string
	ProjectRoot string
	// Subfolder is the effective worktree folder under the project root,
	// already defaulted by the workspace manager. It must match where
	// creation will put the worktree or the disk check looks at the
	// wrong directory.
	Subfolder   string
	DisplayName string
	// WorkspaceName is the candidate directory/branch name; derived from
	// DisplayName when empty.
	WorkspaceName string
	// BatchIndex is the 0-based position within a batch, or -1 for a
	// single creation. Batch members get a 1-based suffix before the
	// uniqueness loop runs, so a batch of two yields "...-1" and "...-2".
	BatchIndex int
}

// Resolved is a (display, workspace) pair clear in all three indexes at
// the time of the check.
type Resolved struct {
	DisplayName   string
	WorkspaceName string
}

// Resolve applies the batch suffix, then appends an increasing counter to
// both names in lock-step until display name, workspace name and the
// on-disk path are all simultaneously free.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (*Resolved, error) {
	baseDisplay := req.DisplayName
	if baseDisplay == "" {
		baseDisplay = system.GenerateFallbackName()
	}
	baseWorkspace := req.WorkspaceName
	if baseWorkspace == "" {
		baseWorkspace = system.Slugify(baseDisplay, maxWorkspaceNameLen)
	}

	if req.BatchIndex >= 0 {
		baseDisplay = fmt.Sprintf("%s %d", baseDisplay, req.BatchIndex+1)
		baseWorkspace = fmt.Sprintf("%s-%d", baseWorkspace, req.BatchIndex+1)
	}

	display := baseDisplay
	workspace := baseWorkspace
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Lock-step counter keeps the two names correlated.
			display = fmt.Sprintf("%s %d", baseDisplay, attempt+1)
			workspace = fmt.Sprintf("%s-%d", baseWorkspace, attempt+1)
		}

		taken, err := r.taken(ctx, req, display, workspace)
		if err != nil {
			return nil, err
		}
		if !taken {
			return &Resolved{DisplayName: display, WorkspaceName: workspace}, nil
		}
	}
	return nil, fmt.Errorf("could not find a unique name for %q after %d attempts", baseDisplay, maxAttempts)
}

func (r *Resolver) taken(ctx context.Context, req ResolveRequest, display, workspace string) (bool, error) {
	exists, err := r.store.SessionNameExists(ctx, req.ProjectID, display)
	if err != nil {
		return false, fmt.Errorf("failed to check session name %q: %w", display, err)
	}
	if exists {
		return true, nil
	}

	exists, err = r.store.WorktreeNameExists(ctx, req.ProjectID, workspace)
	if err != nil {
		return false, fmt.Errorf("failed to check worktree name %q: %w", workspace, err)
	}
	if exists {
		return true, nil
	}

	path := filepath.Join(req.ProjectRoot, req.Subfolder, workspace)
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}
	return false, nil
}
