package pubsub

import (
	"fmt"

	"github.com/conductorhq/conductor/api/pkg/config"
)

type Provider string

const (
	ProviderMemory Provider = "inmemory"
	ProviderNats   Provider = "nats"
)

// New selects the queue backend from config. An external NATS URL wins;
// Provider=nats without a URL embeds a server; everything else gets the
// in-process fallback.
func New(cfg config.PubSub) (PubSub, error) {
	switch Provider(cfg.Provider) {
	case ProviderNats:
		if cfg.ServerURL != "" {
			return NewNats(cfg.ServerURL)
		}
		return NewInMemoryNats(cfg.StoreDir)
	case ProviderMemory, "":
		return NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown pubsub provider %q", cfg.Provider)
	}
}
