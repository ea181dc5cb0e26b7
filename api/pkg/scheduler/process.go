package scheduler

import (
	"context"
	"fmt"

	"github.com/conductorhq/conductor/api/pkg/types"
)

// processInput delivers queued user input to the session's agent.
func (s *Scheduler) processInput(ctx context.Context, job *InputJob) error {
	sess, err := s.deps.Store.GetSession(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("failed to resolve session %s: %w", job.SessionID, err)
	}

	target, err := s.resolveTarget(ctx, sess.ID)
	if err != nil {
		return err
	}

	if err := s.deps.Starter.SendInput(ctx, target, job.Input); err != nil {
		return fmt.Errorf("failed to send input to session %s: %w", sess.ID, err)
	}
	return nil
}

// processContinue sends a follow-up prompt to an existing session and
// flips it back to running.
func (s *Scheduler) processContinue(ctx context.Context, job *ContinueJob) error {
	sess, err := s.deps.Store.GetSession(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("failed to resolve session %s: %w", job.SessionID, err)
	}

	target, err := s.resolveTarget(ctx, sess.ID)
	if err != nil {
		return err
	}

	if err := s.deps.Starter.Continue(ctx, target, job.Prompt); err != nil {
		return s.failSession(ctx, sess.ID, fmt.Errorf("failed to continue session %s: %w", sess.ID, err))
	}
	return s.deps.Sessions.UpdateStatus(ctx, sess.ID, types.SessionStatusRunning, "")
}
