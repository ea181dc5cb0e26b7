package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/conductorhq/conductor/api/pkg/config"
	"github.com/conductorhq/conductor/api/pkg/locks"
	"github.com/conductorhq/conductor/api/pkg/notification"
	"github.com/conductorhq/conductor/api/pkg/store"
	"github.com/conductorhq/conductor/api/pkg/system"
	"github.com/conductorhq/conductor/api/pkg/types"
	"github.com/conductorhq/conductor/api/pkg/workspace"
)

// Service owns session reads and lifecycle mutations that are not part
// of the creation pipeline: viewing, status updates, diff capture,
// archiving, and the start-up reset.
type Service struct {
	cfg        config.Workspaces
	store      store.Store
	workspaces *workspace.Manager
	notifier   notification.Notifier
	locks      *locks.Registry
}

func NewService(
	cfg config.Workspaces,
	s store.Store,
	workspaces *workspace.Manager,
	notifier notification.Notifier,
	lockRegistry *locks.Registry,
) *Service {
	return &Service{
		cfg:        cfg,
		store:      s,
		workspaces: workspaces,
		notifier:   notifier,
		locks:      lockRegistry,
	}
}

// Get returns the session with its derived view status populated.
func (s *Service) Get(ctx context.Context, id string) (*types.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.ViewStatus = DeriveViewStatus(sess)
	return sess, nil
}

// List returns sessions matching the query, each with its derived view
// status populated.
func (s *Service) List(ctx context.Context, query store.ListSessionsQuery) ([]*types.Session, error) {
	sessions, err := s.store.ListSessions(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		sess.ViewStatus = DeriveViewStatus(sess)
	}
	return sessions, nil
}

// gitStateConcurrency bounds the parallel git invocations during a
// decorated listing.
const gitStateConcurrency = 8

// ListWithGitState returns sessions with live ahead/behind counts
// against their base branch. Each count shells out to git, so the
// lookups run concurrently.
func (s *Service) ListWithGitState(ctx context.Context, query store.ListSessionsQuery) ([]*types.Session, error) {
	sessions, err := s.List(ctx, query)
	if err != nil {
		return nil, err
	}

	err = system.ForEachConcurrently(sessions, gitStateConcurrency, func(sess *types.Session, _ int) error {
		if sess.Archived || sess.BaseBranch == "" {
			return nil
		}
		ahead, behind, err := s.workspaces.AheadBehind(ctx, sess.WorktreePath, sess.BaseBranch)
		if err != nil {
			// A manually deleted worktree should not fail the listing.
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to compute ahead/behind")
			return nil
		}
		sess.CommitsAhead = ahead
		sess.CommitsBehind = behind
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// MarkViewed records that the user looked at the session, collapsing a
// completed_unviewed overlay to stopped on the next read.
func (s *Service) MarkViewed(ctx context.Context, id string) (*types.Session, error) {
	if err := s.store.MarkSessionViewed(ctx, id); err != nil {
		return nil, err
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, &types.Event{Type: types.EventSessionUpdated, Session: sess})
	return sess, nil
}

// UpdateStatus persists a status transition and emits a session-updated
// event.
func (s *Service) UpdateStatus(ctx context.Context, id string, status types.SessionStatus, message string) error {
	if err := s.store.UpdateSessionStatus(ctx, id, status, message); err != nil {
		return err
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	s.notify(ctx, &types.Event{Type: types.EventSessionUpdated, Session: sess})
	return nil
}

// CaptureDiff snapshots the worktree's diff against the session's fixed
// base commit and appends it to the session's diff sequence. The session
// lock serializes concurrent captures so sequence numbers stay strictly
// increasing per session.
func (s *Service) CaptureDiff(ctx context.Context, id string) (*types.ExecutionDiff, error) {
	unlock := s.locks.Lock(locks.SessionKey(id))
	defer unlock()

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	diff, err := s.workspaces.CaptureDiff(ctx, sess.WorktreePath, sess.BaseCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to capture diff for session %s: %w", id, err)
	}
	diff.SessionID = sess.ID

	return s.store.CreateExecutionDiff(ctx, diff)
}

// Archive releases the session's worktree (and optionally its branch)
// and hides the row from default listings. The row itself is kept so the
// session's history stays inspectable.
func (s *Service) Archive(ctx context.Context, id string) error {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}

	project, err := s.store.GetProject(ctx, sess.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project for session %s: %w", id, err)
	}

	if err := s.workspaces.Remove(ctx, project.Path, sess.WorktreeName, project.WorktreeFolder); err != nil {
		return fmt.Errorf("failed to remove worktree for session %s: %w", id, err)
	}

	if s.cfg.DeleteBranchOnArchive && sess.Branch != "" {
		if err := s.workspaces.DeleteBranch(ctx, project.Path, sess.Branch); err != nil {
			// The worktree is already gone; a surviving branch is not
			// worth failing the archive over.
			log.Warn().Err(err).Str("session_id", id).Str("branch", sess.Branch).
				Msg("failed to delete branch on archive")
		}
	}

	if err := s.store.ArchiveSession(ctx, id); err != nil {
		return err
	}

	log.Info().Str("session_id", id).Str("worktree", sess.WorktreePath).Msg("archived session")
	s.notify(ctx, &types.Event{Type: types.EventSessionDeleted, Session: sess})
	return nil
}

// ResetInterrupted forces every pending/running session to stopped.
// Called once on process start-up: no subprocess state survives a
// restart, so rows claiming otherwise are lying.
func (s *Service) ResetInterrupted(ctx context.Context) error {
	n, err := s.store.ResetRunningSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset interrupted sessions: %w", err)
	}
	if n > 0 {
		log.Info().Int64("sessions", n).Msg("reset interrupted sessions to stopped")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, event *types.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to publish event")
	}
}
