package workspace

import (
	"context"
	"strconv"
	"strings"

	"github.com/conductorhq/conductor/api/pkg/types"
)

// CaptureDiff computes the diff between the session's fixed base commit
// and the worktree's current state (including uncommitted changes),
// with per-file stats. The base commit is the one captured at worktree
// creation; the base branch moving forward later does not affect it.
func (m *Manager) CaptureDiff(ctx context.Context, workspacePath, baseCommit string) (*types.ExecutionDiff, error) {
	r := newRunner("capture diff", workspacePath)

	diffText, err := r.run(ctx, workspacePath, "diff", baseCommit)
	if err != nil {
		return nil, r.fail(err)
	}

	numstat, err := r.run(ctx, workspacePath, "diff", "--numstat", baseCommit)
	if err != nil {
		return nil, r.fail(err)
	}

	head, err := r.run(ctx, workspacePath, "rev-parse", "HEAD")
	if err != nil {
		return nil, r.fail(err)
	}

	diff := &types.ExecutionDiff{
		DiffText:     diffText,
		BeforeCommit: baseCommit,
		AfterCommit:  strings.TrimSpace(head),
	}

	for _, line := range splitLines(numstat) {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		// Binary files report "-" for both counts.
		additions, _ := strconv.Atoi(fields[0])
		deletions, _ := strconv.Atoi(fields[1])
		diff.FileStats = append(diff.FileStats, types.FileDiffStat{
			Path:      fields[2],
			Additions: additions,
			Deletions: deletions,
		})
		diff.Additions += additions
		diff.Deletions += deletions
	}

	return diff, nil
}
