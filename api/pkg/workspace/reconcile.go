package workspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/conductorhq/conductor/api/pkg/locks"
)

// ConflictReport is the outcome of a dry-run conflict check. It never
// reflects a mutation: detection simulates the merge without touching
// the worktree or any branch pointer.
type ConflictReport struct {
	HasConflicts bool `json:"has_conflicts"`
	// CanAutoMerge is false when conflicts were found, and also when the
	// merge simulation was unavailable and only the file-intersection
	// heuristic ran (potential conflicts, lower precision).
	CanAutoMerge     bool     `json:"can_auto_merge"`
	ConflictingFiles []string `json:"conflicting_files,omitempty"`
	// WorkspaceCommits/BaseCommits are the commits unique to each side
	// since the merge base, for diagnostics.
	WorkspaceCommits []string `json:"workspace_commits,omitempty"`
	BaseCommits      []string `json:"base_commits,omitempty"`
}

// HasChanges reports whether the workspace has commits ahead of the base
// branch or uncommitted changes in its working tree.
func (m *Manager) HasChanges(ctx context.Context, workspacePath, baseBranch string) (bool, error) {
	r := newRunner("has changes", workspacePath)

	status, err := r.run(ctx, workspacePath, "status", "--porcelain")
	if err != nil {
		return false, r.fail(err)
	}
	if strings.TrimSpace(status) != "" {
		return true, nil
	}

	ahead, _, err := m.aheadBehind(ctx, r, workspacePath, baseBranch)
	if err != nil {
		return false, r.fail(err)
	}
	return ahead > 0, nil
}

// AheadBehind counts commits unique to the workspace branch (ahead) and
// to the current base branch ref (behind). This deliberately reads the
// live base ref, not the stored base commit: the base may have moved
// since the workspace was created.
func (m *Manager) AheadBehind(ctx context.Context, workspacePath, baseBranch string) (ahead, behind int, err error) {
	r := newRunner("ahead behind", workspacePath)
	ahead, behind, err = m.aheadBehind(ctx, r, workspacePath, baseBranch)
	if err != nil {
		return 0, 0, r.fail(err)
	}
	return ahead, behind, nil
}

func (m *Manager) aheadBehind(ctx context.Context, r *runner, workspacePath, baseBranch string) (int, int, error) {
	out, err := r.run(ctx, workspacePath, "rev-list", "--left-right", "--count", "HEAD..."+baseBranch)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list output: %q", out)
	}
	ahead, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return ahead, behind, nil
}

// DetectConflicts dry-runs a three-way merge of the workspace branch and
// the base branch against their merge base. The worktree is never
// mutated. When the non-destructive merge primitive is unavailable the
// file-intersection heuristic alone decides, reporting potential
// conflicts with CanAutoMerge=false.
func (m *Manager) DetectConflicts(ctx context.Context, workspacePath, baseBranch string) (*ConflictReport, error) {
	r := newRunner("detect conflicts", workspacePath)

	mergeBase, err := r.run(ctx, workspacePath, "merge-base", "HEAD", baseBranch)
	if err != nil {
		return nil, r.fail(err)
	}
	mergeBase = strings.TrimSpace(mergeBase)

	report := &ConflictReport{CanAutoMerge: true}

	// Commit lists unique to each side, for diagnostics.
	if out, err := r.run(ctx, workspacePath, "rev-list", baseBranch+"..HEAD"); err == nil {
		report.WorkspaceCommits = splitLines(out)
	}
	if out, err := r.run(ctx, workspacePath, "rev-list", "HEAD.."+baseBranch); err == nil {
		report.BaseCommits = splitLines(out)
	}

	// Nothing unique on either side means nothing can conflict.
	if len(report.WorkspaceCommits) == 0 || len(report.BaseCommits) == 0 {
		return report, nil
	}

	// Three-way tree merge simulation. merge-tree writes conflict
	// markers to stdout without touching the working tree.
	mergeOut, mergeErr := r.run(ctx, workspacePath, "merge-tree", mergeBase, "HEAD", baseBranch)
	if mergeErr == nil {
		if !containsConflictMarkers(mergeOut) {
			return report, nil
		}
		report.HasConflicts = true
		report.CanAutoMerge = false
	} else {
		// Portability fallback: files touched on both sides are
		// reported as potential conflicts.
		log.Debug().Str("workspace", workspacePath).Msg("merge-tree unavailable, falling back to file intersection")
		report.CanAutoMerge = false
	}

	ours, err := r.run(ctx, workspacePath, "diff", "--name-only", mergeBase, "HEAD")
	if err != nil {
		return nil, r.fail(err)
	}
	theirs, err := r.run(ctx, workspacePath, "diff", "--name-only", mergeBase, baseBranch)
	if err != nil {
		return nil, r.fail(err)
	}

	report.ConflictingFiles = intersect(splitLines(ours), splitLines(theirs))
	if mergeErr != nil {
		report.HasConflicts = len(report.ConflictingFiles) > 0
	}
	return report, nil
}

// SquashAndRebase squashes every commit the workspace has over the merge
// base into one commit with the given message, then fast-forwards the
// base branch in the project repository onto it. Returns
// ErrNothingToSquash when the workspace has no commits over the base.
func (m *Manager) SquashAndRebase(ctx context.Context, projectRoot, workspacePath, baseBranch, message string) error {
	unlock := m.locks.Lock(locks.WorkspaceKey(workspacePath))
	defer unlock()

	r := newRunner("squash and rebase", workspacePath)

	branch, mergeBase, ahead, err := m.reconcilePreflight(ctx, r, workspacePath, baseBranch)
	if err != nil {
		return r.fail(err)
	}
	if ahead == 0 {
		return ErrNothingToSquash
	}

	// Squash: soft-reset to the merge base keeps all changes staged,
	// then recommit as a single commit.
	if _, err := r.run(ctx, workspacePath, "reset", "--soft", mergeBase); err != nil {
		return r.fail(err)
	}
	commitArgs := append(append([]string{}, gitIdentity...), "commit", "-m", message)
	if _, err := r.run(ctx, workspacePath, commitArgs...); err != nil {
		return r.fail(err)
	}

	return m.advanceBase(ctx, r, projectRoot, baseBranch, branch)
}

// Rebase replays the workspace's commits onto the base branch in the
// project repository, preserving the original commit sequence. Returns
// ErrUpToDate when there is nothing to replay.
func (m *Manager) Rebase(ctx context.Context, projectRoot, workspacePath, baseBranch string) error {
	unlock := m.locks.Lock(locks.WorkspaceKey(workspacePath))
	defer unlock()

	r := newRunner("rebase", workspacePath)

	branch, _, ahead, err := m.reconcilePreflight(ctx, r, workspacePath, baseBranch)
	if err != nil {
		return r.fail(err)
	}
	if ahead == 0 {
		return ErrUpToDate
	}

	return m.advanceBase(ctx, r, projectRoot, baseBranch, branch)
}

// reconcilePreflight resolves the workspace branch, merge base and
// ahead-count shared by both reconciliation flavors.
func (m *Manager) reconcilePreflight(ctx context.Context, r *runner, workspacePath, baseBranch string) (branch, mergeBase string, ahead int, err error) {
	out, err := r.run(ctx, workspacePath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", "", 0, err
	}
	branch = strings.TrimSpace(out)

	out, err = r.run(ctx, workspacePath, "merge-base", "HEAD", baseBranch)
	if err != nil {
		return "", "", 0, err
	}
	mergeBase = strings.TrimSpace(out)

	out, err = r.run(ctx, workspacePath, "rev-list", "--count", mergeBase+"..HEAD")
	if err != nil {
		return "", "", 0, err
	}
	ahead, err = strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return "", "", 0, err
	}
	return branch, mergeBase, ahead, nil
}

// advanceBase switches the project repository to the base branch and
// rebases it onto the workspace branch tip. These post-processing steps
// run under the reconcile timeout.
func (m *Manager) advanceBase(ctx context.Context, r *runner, projectRoot, baseBranch, workspaceBranch string) error {
	if m.cfg.ReconcileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ReconcileTimeout)
		defer cancel()
	}

	if _, err := r.run(ctx, projectRoot, "checkout", baseBranch); err != nil {
		return r.fail(err)
	}
	if _, err := r.run(ctx, projectRoot, "rebase", workspaceBranch); err != nil {
		// Leave the repository in a clean state before surfacing the
		// transcript.
		_, _ = r.run(ctx, projectRoot, "rebase", "--abort")
		return r.fail(err)
	}

	log.Info().
		Str("base_branch", baseBranch).
		Str("workspace_branch", workspaceBranch).
		Msg("advanced base branch onto workspace tip")
	return nil
}

// containsConflictMarkers scans merge-tree output for real conflict
// hunks. The "changed in both" header is deliberately not a signal: it
// appears for every file modified on both sides, including ones that
// merge cleanly.
func containsConflictMarkers(mergeOutput string) bool {
	for _, line := range strings.Split(mergeOutput, "\n") {
		if strings.HasPrefix(line, "<<<<<<<") ||
			strings.HasPrefix(line, "+<<<<<<<") {
			return true
		}
	}
	return false
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	var result []string
	for _, s := range b {
		if set[s] {
			result = append(result, s)
			set[s] = false
		}
	}
	return result
}
