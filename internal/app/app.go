// Package app wires the configured services and controllers together and
// runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/launchplanner/internal/managers"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger

	// ready is closed once every controller has started
	ready chan struct{}
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		configProvider: configProvider,
		logger:         logger,
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the application has started its controllers
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Run starts the application and blocks until a shutdown signal arrives or
// ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	services, err := managers.NewServiceManager(ctx, cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			a.logger.Errorf("error closing services: %v", err)
		}
	}()

	cm, err := managers.NewControllerManager(ctx, &wg, a.configProvider, services, a.logger)
	if err != nil {
		return err
	}
	if err := cm.StartControllers(); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	a.logger.Info("Application started successfully")
	close(a.ready)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
