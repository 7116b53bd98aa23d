// Package storage selects the repository backend named in the configuration.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"affiliate-network-backend/internal/config"
	"affiliate-network-backend/internal/logger"
	"affiliate-network-backend/internal/repository"
	"affiliate-network-backend/internal/repository/memory"
	"affiliate-network-backend/internal/repository/postgres"
	"affiliate-network-backend/migrations"
)

// Backend exposes the repositories of one storage implementation.
type Backend struct {
	Users       repository.UserRepository
	Levels      repository.CommissionLevelRepository
	Commissions repository.CommissionRepository
	Payouts     repository.PayoutRepository
	Invites     repository.InviteRepository

	// Ping is nil for the in-memory backend.
	Ping func(ctx context.Context) error

	db *sql.DB
}

// Open connects to the configured backend. Postgres connections are pinged
// and migrated when auto_migrate is set.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Storage.Type {
	case "memory":
		logger.Warn("Using in-memory storage, data is lost on restart")
		return NewMemory(), nil
	case "postgres":
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Storage.AutoMigrate {
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database migrations applied")
	}

	return NewPostgres(db), nil
}

func NewPostgres(db *sql.DB) *Backend {
	store := postgres.NewStore(db)
	return &Backend{
		Users:       store.UserRepository,
		Levels:      store.CommissionLevelRepository,
		Commissions: store.CommissionRepository,
		Payouts:     store.PayoutRepository,
		Invites:     store.InviteRepository,
		Ping:        store.Ping,
		db:          db,
	}
}

func NewMemory() *Backend {
	store := memory.NewStore()
	return &Backend{
		Users:       store.UserRepository,
		Levels:      store.CommissionLevelRepository,
		Commissions: store.CommissionRepository,
		Payouts:     store.PayoutRepository,
		Invites:     store.InviteRepository,
	}
}

func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
