package pricing

import (
	"context"
	"fmt"

	"github.com/chrissnell/launchplanner/internal/database"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
)

// OpenStore opens the store selected by the pricing config section
func OpenStore(cfg config.PricingData, zl *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return OpenFileStore(cfg.DataDir)
	case database.BackendSQLite, database.BackendPostgres:
		return OpenGormStore(cfg.Backend, cfg.DSN, zl)
	}
	return nil, fmt.Errorf("unsupported pricing backend: %s", cfg.Backend)
}

// NewServiceFromConfig opens the configured store and, unless seeding is
// turned off, fills an empty store with the default plans
func NewServiceFromConfig(ctx context.Context, cfg config.PricingData, logger *zap.SugaredLogger) (*Service, error) {
	var zl *zap.Logger
	if logger != nil {
		zl = logger.Desugar()
	}
	store, err := OpenStore(cfg, zl)
	if err != nil {
		return nil, err
	}
	svc := NewService(store, logger)
	if cfg.Seed == nil || *cfg.Seed {
		if _, err := svc.Seed(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return svc, nil
}
