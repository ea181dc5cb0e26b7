package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/conductorhq/conductor/api/pkg/config"
	"github.com/conductorhq/conductor/api/pkg/types"
)

// SQLStore implements Store on top of gorm. It runs against postgres in
// multi-user deployments and sqlite in single-node/local mode; the
// orchestration core only ever sees the Store interface.
type SQLStore struct {
	cfg config.Store

	gdb *gorm.DB
}

var _ Store = &SQLStore{}

func NewSQLStore(cfg config.Store) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Provider {
	case "postgres":
		dialector = postgres.Open(connectionString(cfg))
	case "sqlite", "":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.IdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	store := &SQLStore{
		cfg: cfg,
		gdb: gdb,
	}

	if cfg.AutoMigrate {
		if err := store.autoMigrate(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	log.Info().Str("provider", cfg.Provider).Msg("store ready")

	return store, nil
}

func connectionString(cfg config.Store) string {
	sslMode := "disable"
	if cfg.SSL {
		sslMode = "require"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		sslMode,
	)
}

func (s *SQLStore) autoMigrate() error {
	return s.gdb.WithContext(context.Background()).AutoMigrate(
		&types.Project{},
		&types.Session{},
		&types.SessionFolder{},
		&types.ExecutionDiff{},
	)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// touch is a shared helper for partial updates that must bump updated_at
// even when gorm would otherwise skip it.
func touch(values map[string]interface{}) map[string]interface{} {
	values["updated_at"] = time.Now()
	return values
}
