package agent

import "sync"

// PanelRegistry maps session ids to the panel ids an independent host
// component assigns asynchronously after session creation. The creation
// pipeline polls it (bounded, see WaitForPanel) to bridge the race
// between creating a session and the host registering its panel.
type PanelRegistry struct {
	mu     sync.RWMutex
	panels map[string]string
}

func NewPanelRegistry() *PanelRegistry {
	return &PanelRegistry{panels: make(map[string]string)}
}

// Register binds a panel id to a session. Re-registering overwrites: the
// host may recreate a panel for an existing session.
func (r *PanelRegistry) Register(sessionID, panelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panels[sessionID] = panelID
}

func (r *PanelRegistry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.panels, sessionID)
}

// Lookup returns the panel id registered for the session, if any.
func (r *PanelRegistry) Lookup(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	panelID, ok := r.panels[sessionID]
	return panelID, ok
}
