package scheduler

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/conductorhq/conductor/api/pkg/agent"
	"github.com/conductorhq/conductor/api/pkg/locks"
	"github.com/conductorhq/conductor/api/pkg/names"
	"github.com/conductorhq/conductor/api/pkg/system"
	"github.com/conductorhq/conductor/api/pkg/types"
)

// processCreate runs the creation pipeline: resolve project, derive and
// uniquify names, materialize the worktree, persist the session row,
// announce it, run the optional project setup step, then hand off to
// the agent host.
//
// A failure after the session row exists marks the row failed and leaves
// every artifact in place: the user gets something inspectable, not a
// silent rollback. Stale artifacts from a crashed attempt are cleaned up
// defensively at the start of the next attempt for the same name, inside
// worktree creation.
func (s *Scheduler) processCreate(ctx context.Context, job *CreateJob) error {
	project, err := s.deps.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to resolve project %s: %w", job.ProjectID, err)
	}

	displayName := job.DisplayName
	if displayName == "" {
		displayName = names.SuggestDisplayName(ctx, s.deps.Suggester, job.Prompt)
	}

	baseBranch := job.BaseBranch
	if baseBranch == "" {
		baseBranch = project.DefaultBaseBranch
	}

	// The resolver's disk check and worktree creation must agree on where
	// worktrees land, so the effective folder is resolved once up front.
	subfolder := s.deps.Workspaces.EffectiveSubfolder(project.WorktreeFolder)

	// Name resolution and creation form one read-modify-write span over
	// shared uniqueness state, so the whole span holds the creation lock.
	var sess *types.Session
	err = s.deps.Locks.Do(locks.SessionCreationKey, func() error {
		resolved, err := s.deps.Resolver.Resolve(ctx, names.ResolveRequest{
			ProjectID:   project.ID,
			ProjectRoot: project.Path,
			Subfolder:   subfolder,
			DisplayName: displayName,
			BatchIndex:  job.BatchIndex,
		})
		if err != nil {
			return fmt.Errorf("failed to resolve unique name: %w", err)
		}

		ws, err := s.deps.Workspaces.Create(ctx, project.Path, resolved.WorkspaceName, "", baseBranch, subfolder)
		if err != nil {
			return fmt.Errorf("failed to create workspace: %w", err)
		}

		sess, err = s.deps.Store.CreateSession(ctx, types.Session{
			ID:           system.GenerateSessionID(),
			Name:         resolved.DisplayName,
			ProjectID:    project.ID,
			FolderID:     job.FolderID,
			WorktreePath: ws.Path,
			WorktreeName: resolved.WorkspaceName,
			Branch:       ws.Branch,
			BaseBranch:   ws.BaseBranch,
			BaseCommit:   ws.BaseCommit,
			Status:       types.SessionStatusPending,
			Prompt:       job.Prompt,
			Tool:         job.Tool,
			CommitMode:   job.CommitMode,
			AutoCommit:   job.AutoCommit,
		})
		if err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Announce before any build step so the caller sees the session
	// immediately.
	s.notify(ctx, &types.Event{Type: types.EventSessionCreated, Session: sess})

	if project.SetupCommand != "" {
		if err := s.runSetup(ctx, sess, project.SetupCommand); err != nil {
			return s.failSession(ctx, sess.ID, err)
		}
	}

	if job.Prompt == "" {
		// Nothing to start; the session is ready for manual use.
		return s.deps.Sessions.UpdateStatus(ctx, sess.ID, types.SessionStatusStopped, "")
	}

	if err := s.startAgent(ctx, sess, job); err != nil {
		return s.failSession(ctx, sess.ID, err)
	}
	return s.deps.Sessions.UpdateStatus(ctx, sess.ID, types.SessionStatusRunning, "")
}

// runSetup executes the project-configured build step inside the fresh
// worktree, keeping the session's status message human-readable while it
// runs.
func (s *Scheduler) runSetup(ctx context.Context, sess *types.Session, command string) error {
	if err := s.deps.Sessions.UpdateStatus(ctx, sess.ID, types.SessionStatusPending, "Running setup: "+command); err != nil {
		return err
	}

	log.Info().Str("session_id", sess.ID).Str("command", command).Msg("running setup command")

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = sess.WorktreePath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("setup command %q failed: %w\n%s", command, err, strings.TrimSpace(string(out)))
	}

	return s.deps.Sessions.UpdateStatus(ctx, sess.ID, types.SessionStatusPending, "")
}

// startAgent waits for the externally-registered panel, then issues the
// start call. The wait bridges the race between session creation and the
// host's asynchronous panel registration.
func (s *Scheduler) startAgent(ctx context.Context, sess *types.Session, job *CreateJob) error {
	target, err := s.resolveTarget(ctx, sess.ID)
	if err != nil {
		return err
	}

	req := agent.StartRequest{
		Prompt:       job.Prompt,
		WorktreePath: sess.WorktreePath,
		Tool:         job.Tool,
		CommitMode:   job.CommitMode,
		AutoCommit:   job.AutoCommit,
	}
	if err := s.deps.Starter.Start(ctx, target, req); err != nil {
		return fmt.Errorf("failed to start agent for session %s: %w", sess.ID, err)
	}
	return nil
}

// resolveTarget prefers the panel-scoped address, waiting for the host
// to register it; a host that never does panels gets the session-scoped
// legacy address immediately.
func (s *Scheduler) resolveTarget(ctx context.Context, sessionID string) (agent.Target, error) {
	if s.deps.Panels == nil {
		return agent.Target{SessionID: sessionID}, nil
	}
	panelID, err := agent.WaitForPanel(ctx, s.deps.Panels, s.agents, sessionID)
	if err != nil {
		return agent.Target{}, err
	}
	return agent.Target{PanelID: panelID}, nil
}

func (s *Scheduler) failSession(ctx context.Context, sessionID string, cause error) error {
	if err := s.deps.Sessions.UpdateStatus(ctx, sessionID, types.SessionStatusFailed, cause.Error()); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to mark session failed")
	}
	return cause
}
