package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	Store      Store
	PubSub     PubSub
	Scheduler  Scheduler
	Workspaces Workspaces
	Agents     Agents

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	err := envconfig.Process("", &cfg)
	if err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

type Store struct {
	// Provider is either postgres or sqlite. Single-node deployments
	// default to a local sqlite file.
	Provider string `envconfig:"STORE_PROVIDER" default:"sqlite"`

	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	Database string `envconfig:"POSTGRES_DATABASE" default:"conductor"`
	Username string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	SSL      bool   `envconfig:"POSTGRES_SSL" default:"false"`

	SQLitePath string `envconfig:"SQLITE_PATH" default:"conductor.db"`

	AutoMigrate bool `envconfig:"STORE_AUTO_MIGRATE" default:"true"`

	IdleConns       int           `envconfig:"STORE_IDLE_CONNS" default:"2"`
	MaxConns        int           `envconfig:"STORE_MAX_CONNS" default:"10"`
	MaxConnIdleTime time.Duration `envconfig:"STORE_MAX_CONN_IDLE_TIME" default:"5m"`
}

type PubSub struct {
	// Provider selects the job queue backend: nats (persistent, either
	// external or embedded) or inmemory (bounded in-process worker pool).
	Provider string `envconfig:"PUBSUB_PROVIDER" default:"inmemory"`

	// ServerURL points at an external NATS deployment. Empty with
	// Provider=nats embeds a nats-server in-process.
	ServerURL string `envconfig:"PUBSUB_SERVER_URL" default:""`
	// StoreDir is where the embedded JetStream server keeps its state.
	StoreDir string `envconfig:"PUBSUB_STORE_DIR" default:""`
}

type Scheduler struct {
	// CreateWorkers is the width of the create-session pool. 0 means
	// platform default: 1 where pseudo-terminal/file-descriptor limits
	// are strict (darwin), 5 elsewhere.
	CreateWorkers   int `envconfig:"SCHEDULER_CREATE_WORKERS" default:"0"`
	InputWorkers    int `envconfig:"SCHEDULER_INPUT_WORKERS" default:"10"`
	ContinueWorkers int `envconfig:"SCHEDULER_CONTINUE_WORKERS" default:"10"`
}

type Workspaces struct {
	// Folder is the subdirectory under a project root where worktrees
	// are created, unless the project overrides it.
	Folder string `envconfig:"WORKSPACES_FOLDER" default:"worktrees"`
	// DeleteBranchOnArchive removes the worktree's branch when the
	// owning session is archived.
	DeleteBranchOnArchive bool `envconfig:"WORKSPACES_DELETE_BRANCH_ON_ARCHIVE" default:"false"`
	// ReconcileTimeout bounds the post-processing steps of a rebase or
	// squash operation.
	ReconcileTimeout time.Duration `envconfig:"WORKSPACES_RECONCILE_TIMEOUT" default:"2m"`
}

type Agents struct {
	// Session creation bridges a race against asynchronous panel
	// registration done by the UI layer: the start call waits for the
	// panel with a capped polling loop, then fails loudly.
	PanelWaitAttempts int           `envconfig:"AGENTS_PANEL_WAIT_ATTEMPTS" default:"15"`
	PanelWaitInterval time.Duration `envconfig:"AGENTS_PANEL_WAIT_INTERVAL" default:"200ms"`
}
