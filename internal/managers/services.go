package managers

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/launchplanner/internal/cache"
	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/diagnostics"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/internal/pricing"
	"github.com/chrissnell/launchplanner/internal/segmentation"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
)

// ServiceManager holds the long-lived components the controllers share
type ServiceManager struct {
	Cache      cache.Cache
	Keys       *keys.Manager
	Connectors *connectors.Set
	Prober     *diagnostics.Prober
	Agent      *segmentation.Agent
	Pricing    *pricing.Service

	logger *zap.SugaredLogger
}

// NewServiceManager builds every component from the loaded configuration
func NewServiceManager(ctx context.Context, cfg *config.ConfigData, logger *zap.SugaredLogger) (*ServiceManager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &ServiceManager{logger: logger}

	var err error
	s.Cache, err = cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create response cache: %w", err)
	}

	s.Keys, err = keys.NewManagerFromConfig(cfg.Keys, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("could not load API keys: %w", err)
	}

	client := connectors.NewClient(cfg.Connectors, s.Keys, logger,
		connectors.WithCache(s.Cache, config.ParseDurationOr(cfg.Cache.TTL, config.DefaultCacheTTL)))
	s.Connectors = connectors.NewSet(client)
	s.Prober = diagnostics.NewProber(s.Connectors, s.Keys, logger)

	opts := segmentation.OptionsFromConfig(cfg.Segmentation, client.Strict())
	if err := opts.Weights.Validate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid segmentation weights: %w", err)
	}
	s.Agent = segmentation.NewAgentFromSet(s.Connectors, opts, logger)

	s.Pricing, err = pricing.NewServiceFromConfig(ctx, cfg.Pricing, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("could not open pricing store: %w", err)
	}

	configured := 0
	for _, st := range s.Keys.Status() {
		if st.Total > 0 {
			configured++
		}
	}
	logger.Infow("services ready",
		"api_services_configured", configured,
		"strict", client.Strict(),
		"pricing_backend", cfg.Pricing.Backend)
	return s, nil
}

// Close releases the pricing store and the cache
func (s *ServiceManager) Close() error {
	var errs []error
	if s.Pricing != nil {
		errs = append(errs, s.Pricing.Close())
	}
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	return errors.Join(errs...)
}
