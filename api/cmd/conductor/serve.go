package conductor

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/conductorhq/conductor/api/pkg/agent"
	"github.com/conductorhq/conductor/api/pkg/config"
	"github.com/conductorhq/conductor/api/pkg/locks"
	"github.com/conductorhq/conductor/api/pkg/names"
	"github.com/conductorhq/conductor/api/pkg/notification"
	"github.com/conductorhq/conductor/api/pkg/pubsub"
	"github.com/conductorhq/conductor/api/pkg/scheduler"
	"github.com/conductorhq/conductor/api/pkg/session"
	"github.com/conductorhq/conductor/api/pkg/store"
	"github.com/conductorhq/conductor/api/pkg/workspace"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Start the conductor server",
		Example: "conductor serve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server config: %w", err)
			}
			return serve(cmd.Context(), &cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.ServerConfig) error {
	setLogLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	db, err := store.NewSQLStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	ps, err := pubsub.New(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("failed to start pubsub: %w", err)
	}

	registry := locks.NewRegistry()
	notifier := notification.New(ps)
	workspaces := workspace.NewManager(cfg.Workspaces, registry)
	sessions := session.NewService(cfg.Workspaces, db, workspaces, notifier, registry)

	// Rows persisted as running/pending are stale after a restart: no
	// subprocess state survived.
	if err := sessions.ResetInterrupted(ctx); err != nil {
		return err
	}

	sched := scheduler.New(cfg.Scheduler, cfg.Agents, scheduler.Deps{
		Store:      db,
		PubSub:     ps,
		Workspaces: workspaces,
		Resolver:   names.NewResolver(db),
		Starter:    &agent.UnattachedStarter{},
		Panels:     agent.NewPanelRegistry(),
		Sessions:   sessions,
		Notifier:   notifier,
		Locks:      registry,
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	log.Info().Msg("conductor is running")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
