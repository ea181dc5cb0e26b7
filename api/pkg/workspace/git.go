package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitCommand is one executed git invocation, kept for the diagnostic
// transcript attached to failures.
type GitCommand struct {
	Args   []string `json:"args"`
	Dir    string   `json:"dir"`
	Output string   `json:"output"`
}

// GitError carries the exact sequence of git commands executed plus
// their raw output. Version-control failures are the hardest to debug
// post hoc, so this payload is part of the error contract, not optional
// logging.
type GitError struct {
	Op       string
	Dir      string
	Commands []GitCommand
	Err      error
}

func (e *GitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "git %s failed in %s: %v", e.Op, e.Dir, e.Err)
	for _, cmd := range e.Commands {
		fmt.Fprintf(&b, "\n  $ git %s", strings.Join(cmd.Args, " "))
		if out := strings.TrimSpace(cmd.Output); out != "" {
			for _, line := range strings.Split(out, "\n") {
				fmt.Fprintf(&b, "\n    %s", line)
			}
		}
	}
	return b.String()
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// runner executes git commands for one operation, recording every
// invocation so a failure can report the full transcript.
type runner struct {
	op         string
	dir        string
	transcript []GitCommand
}

func newRunner(op, dir string) *runner {
	return &runner{op: op, dir: dir}
}

// run executes git with the given args in dir, captures combined output
// and appends the invocation to the transcript.
func (r *runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	output := string(out)
	r.transcript = append(r.transcript, GitCommand{
		Args:   args,
		Dir:    dir,
		Output: output,
	})
	if err != nil {
		return output, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// fail wraps err with the recorded transcript.
func (r *runner) fail(err error) error {
	return &GitError{
		Op:       r.op,
		Dir:      r.dir,
		Commands: r.transcript,
		Err:      err,
	}
}
