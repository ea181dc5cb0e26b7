// Package workspace manages isolated git worktrees bound 1:1 to
// branches, and reconciles them back into the shared base branch.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/conductorhq/conductor/api/pkg/config"
	"github.com/conductorhq/conductor/api/pkg/locks"
)

var (
	ErrBaseBranchNotFound = errors.New("base branch does not exist")
	// ErrNothingToSquash means the workspace has no commits ahead of the
	// base: informational, not a failure.
	ErrNothingToSquash = errors.New("nothing to squash: workspace is up to date with base")
	// ErrUpToDate is the rebase flavor of "nothing to do".
	ErrUpToDate = errors.New("workspace is up to date with base")
)

// Workspace describes one materialized worktree.
type Workspace struct {
	Path       string `json:"path"`
	Branch     string `json:"branch"`
	BaseBranch string `json:"base_branch"`
	// BaseCommit is the tip of the resolved base ref at creation time.
	// It is the fixed diff origin and never recomputed afterwards.
	BaseCommit string `json:"base_commit"`
}

// Manager creates, removes, lists and reconciles worktrees. All
// filesystem/VCS mutations happen under named locks keyed by the target
// worktree path.
type Manager struct {
	cfg   config.Workspaces
	locks *locks.Registry
}

func NewManager(cfg config.Workspaces, lockRegistry *locks.Registry) *Manager {
	return &Manager{
		cfg:   cfg,
		locks: lockRegistry,
	}
}

// gitIdentity is passed to commit commands so that repositories without
// a configured user (fresh test repos, CI) still get the initial and
// squash commits.
var gitIdentity = []string{"-c", "user.name=conductor", "-c", "user.email=conductor@localhost"}

// EffectiveSubfolder resolves the worktree folder actually used under a
// project root: the given folder, or the manager default when unset.
// Anything that derives on-disk worktree paths (the name resolver's disk
// check included) must agree with creation on this location.
func (m *Manager) EffectiveSubfolder(subfolder string) string {
	if subfolder == "" {
		return m.cfg.Folder
	}
	return subfolder
}

func (m *Manager) worktreePath(projectRoot, name, subfolder string) string {
	return filepath.Join(projectRoot, m.EffectiveSubfolder(subfolder), name)
}

// Create materializes a worktree for name under projectRoot. If branch
// is empty it defaults to name. If the branch already exists the
// worktree attaches to it and the base commit is its current tip;
// otherwise the branch is created from baseBranch (which must exist) or
// from the repository head.
func (m *Manager) Create(ctx context.Context, projectRoot, name, branch, baseBranch, subfolder string) (*Workspace, error) {
	if branch == "" {
		branch = name
	}
	path := m.worktreePath(projectRoot, name, subfolder)

	unlock := m.locks.Lock(locks.WorkspaceKey(path))
	defer unlock()

	r := newRunner("worktree create", projectRoot)

	// A brand-new project must be reconcilable from commit zero: make
	// sure the root is a repository with at least one commit.
	if _, err := r.run(ctx, projectRoot, "rev-parse", "--git-dir"); err != nil {
		if _, err := r.run(ctx, projectRoot, "init"); err != nil {
			return nil, r.fail(fmt.Errorf("failed to initialize repository: %w", err))
		}
	}
	if _, err := r.run(ctx, projectRoot, "rev-parse", "HEAD"); err != nil {
		args := append(append([]string{}, gitIdentity...), "commit", "--allow-empty", "-m", "Initial commit")
		if _, err := r.run(ctx, projectRoot, args...); err != nil {
			return nil, r.fail(fmt.Errorf("failed to create initial commit: %w", err))
		}
	}

	// Defensive pre-removal of a stale worktree at the target path.
	// A previous attempt may have left a directory behind; cleaning up
	// here, at the start of the next attempt, keeps creation idempotent.
	if _, err := os.Stat(path); err == nil {
		log.Warn().Str("path", path).Msg("removing stale worktree before create")
		_, _ = r.run(ctx, projectRoot, "worktree", "remove", "--force", path)
		_ = os.RemoveAll(path)
		_, _ = r.run(ctx, projectRoot, "worktree", "prune")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, r.fail(fmt.Errorf("failed to create worktree parent directory: %w", err))
	}

	// Existing branch: attach to it, its tip is the base commit.
	if _, err := r.run(ctx, projectRoot, "rev-parse", "--verify", "refs/heads/"+branch); err == nil {
		baseCommit, err := r.run(ctx, projectRoot, "rev-parse", branch)
		if err != nil {
			return nil, r.fail(err)
		}
		if _, err := r.run(ctx, projectRoot, "worktree", "add", path, branch); err != nil {
			return nil, r.fail(err)
		}
		return &Workspace{
			Path:       path,
			Branch:     branch,
			BaseBranch: baseBranch,
			BaseCommit: strings.TrimSpace(baseCommit),
		}, nil
	}

	// New branch: resolve the base ref and create branch + worktree in
	// one step from the captured commit.
	baseRef := "HEAD"
	if baseBranch != "" {
		if _, err := r.run(ctx, projectRoot, "rev-parse", "--verify", "refs/heads/"+baseBranch); err != nil {
			return nil, r.fail(fmt.Errorf("%w: %s", ErrBaseBranchNotFound, baseBranch))
		}
		baseRef = baseBranch
	} else {
		if out, err := r.run(ctx, projectRoot, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
			baseBranch = strings.TrimSpace(out)
		}
	}

	baseCommit, err := r.run(ctx, projectRoot, "rev-parse", baseRef)
	if err != nil {
		return nil, r.fail(err)
	}
	baseCommitHash := strings.TrimSpace(baseCommit)

	if _, err := r.run(ctx, projectRoot, "worktree", "add", "-b", branch, path, baseCommitHash); err != nil {
		return nil, r.fail(err)
	}

	log.Info().
		Str("path", path).
		Str("branch", branch).
		Str("base_commit", baseCommitHash).
		Msg("created worktree")

	return &Workspace{
		Path:       path,
		Branch:     branch,
		BaseBranch: baseBranch,
		BaseCommit: baseCommitHash,
	}, nil
}

// Remove deletes the worktree at name. Removing an absent worktree is a
// success, not an error: the user may have deleted it manually.
func (m *Manager) Remove(ctx context.Context, projectRoot, name, subfolder string) error {
	path := m.worktreePath(projectRoot, name, subfolder)

	unlock := m.locks.Lock(locks.WorkspaceKey(path))
	defer unlock()

	r := newRunner("worktree remove", projectRoot)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		_, _ = r.run(ctx, projectRoot, "worktree", "prune")
		return nil
	}

	if _, err := r.run(ctx, projectRoot, "worktree", "remove", "--force", path); err != nil {
		// The worktree may be corrupt or unregistered; fall back to a
		// plain directory removal plus prune.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return r.fail(fmt.Errorf("failed to remove worktree directory: %w", rmErr))
		}
		_, _ = r.run(ctx, projectRoot, "worktree", "prune")
	}

	log.Info().Str("path", path).Msg("removed worktree")
	return nil
}

// DeleteBranch force-deletes a branch, used by the archive cleanup
// policy after its worktree is gone.
func (m *Manager) DeleteBranch(ctx context.Context, projectRoot, branch string) error {
	r := newRunner("branch delete", projectRoot)
	if _, err := r.run(ctx, projectRoot, "branch", "-D", branch); err != nil {
		return r.fail(err)
	}
	return nil
}

// List returns the worktrees registered under projectRoot, excluding the
// main working copy.
func (m *Manager) List(ctx context.Context, projectRoot string) ([]*Workspace, error) {
	r := newRunner("worktree list", projectRoot)

	out, err := r.run(ctx, projectRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, r.fail(err)
	}

	var all []*Workspace
	var current *Workspace
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				all = append(all, current)
			}
			current = &Workspace{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				ref := strings.TrimPrefix(line, "branch ")
				current.Branch = strings.TrimPrefix(ref, "refs/heads/")
			}
		}
	}
	if current != nil {
		all = append(all, current)
	}
	// The first entry is the main working copy, not a session worktree.
	if len(all) > 0 {
		all = all[1:]
	}
	return all, nil
}

// Branches lists local branch names in the project repository.
func (m *Manager) Branches(ctx context.Context, projectRoot string) ([]string, error) {
	r := newRunner("branch list", projectRoot)

	out, err := r.run(ctx, projectRoot, "branch", "--format", "%(refname:short)")
	if err != nil {
		return nil, r.fail(err)
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}
