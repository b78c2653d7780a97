package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/buruapp/buru-server/internal/config"
	"github.com/buruapp/buru-server/internal/logger"
	"github.com/buruapp/buru-server/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdowner.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the database with the configured dialect.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	db, err := store.Open(ctx, store.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ApplySchema:  cfg.Database.ApplySchema,
	}, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	log.Info("Database initialized", "driver", cfg.Database.Driver, "dialect", db.Dialect().Name())

	return &StoreHandle{Store: db}, nil
}
