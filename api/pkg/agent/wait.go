package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"

	"github.com/conductorhq/conductor/api/pkg/config"
)

// ErrPanelNotRegistered means the host never registered a panel for the
// session within the attempt ceiling. Distinct from transport or host
// errors so callers can report "registration never happened" precisely.
var ErrPanelNotRegistered = errors.New("panel not registered")

// WaitForPanel polls the registry until the session's panel shows up,
// bounded by the configured attempt ceiling and interval. It never waits
// indefinitely: when the ceiling is hit it fails loudly with
// ErrPanelNotRegistered.
func WaitForPanel(ctx context.Context, registry *PanelRegistry, cfg config.Agents, sessionID string) (string, error) {
	var panelID string

	err := retry.Do(
		func() error {
			id, ok := registry.Lookup(sessionID)
			if !ok {
				return ErrPanelNotRegistered
			}
			panelID = id
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.PanelWaitAttempts)),
		retry.Delay(cfg.PanelWaitInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, ErrPanelNotRegistered) {
			return "", fmt.Errorf("%w for session %s after %d attempts at %s",
				ErrPanelNotRegistered, sessionID, cfg.PanelWaitAttempts, cfg.PanelWaitInterval)
		}
		return "", err
	}
	return panelID, nil
}
