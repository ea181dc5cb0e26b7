// Package session exposes the session lifecycle: derived view status,
// queries, viewed-marking, archiving and the start-up reset.
package session

import (
	"github.com/conductorhq/conductor/api/pkg/types"
)

// DeriveViewStatus maps the persisted status to what callers see.
//
// The interesting case is the terminal states: a stopped or completed
// session reports completed_unviewed until the user looks at it. The
// overlay is computed from timestamps, never stored, so marking a
// session viewed collapses it on the very next read with no extra
// status write.
func DeriveViewStatus(s *types.Session) types.SessionViewStatus {
	switch s.Status {
	case types.SessionStatusPending:
		return types.ViewStatusInitializing
	case types.SessionStatusRunning:
		return types.ViewStatusRunning
	case types.SessionStatusFailed:
		return types.ViewStatusError
	case types.SessionStatusStopped, types.SessionStatusCompleted:
		if unviewed(s) {
			return types.ViewStatusCompletedUnviewed
		}
		return types.ViewStatusStopped
	default:
		return types.ViewStatusError
	}
}

// unviewed reports whether work finished after the user last looked:
// viewed-at absent, or strictly older than updated-at.
func unviewed(s *types.Session) bool {
	if s.LastViewedAt == nil {
		return true
	}
	return s.LastViewedAt.Before(s.UpdatedAt)
}
