package managers

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chrissnell/launchplanner/internal/segmentation"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	cfg *config.ConfigData
}

func (p *staticProvider) LoadConfig() (*config.ConfigData, error)          { return p.cfg, nil }
func (p *staticProvider) GetControllers() ([]config.ControllerData, error) { return p.cfg.Controllers, nil }
func (p *staticProvider) GetController(t string) (*config.ControllerData, error) {
	for i := range p.cfg.Controllers {
		if p.cfg.Controllers[i].Type == t {
			return &p.cfg.Controllers[i], nil
		}
	}
	return nil, fmt.Errorf("controller %s not found", t)
}
func (p *staticProvider) UpdateController(string, *config.ControllerData) error { return config.ErrReadOnly }
func (p *staticProvider) IsReadOnly() bool                                      { return true }
func (p *staticProvider) Close() error                                          { return nil }

func testConfig(t *testing.T) *config.ConfigData {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.ConfigData{
		Keys: config.KeysData{
			EnvFile:    filepath.Join(dir, "missing.env"),
			ConfigJSON: filepath.Join(dir, "missing.json"),
		},
		Cache:   config.CacheData{Backend: "memory"},
		Pricing: config.PricingData{Backend: "file", DataDir: filepath.Join(dir, "pricing")},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewServiceManager(t *testing.T) {
	s, err := NewServiceManager(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.Cache)
	assert.NotNil(t, s.Keys)
	assert.NotNil(t, s.Prober)
	assert.NotNil(t, s.Agent)

	plans, err := s.Pricing.ListPlans(context.Background(), false)
	require.NoError(t, err)
	assert.NotEmpty(t, plans)
}

func TestNewServiceManagerRejectsBadWeights(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segmentation.Weights = config.WeightsData{MarketSize: 0.9, Engagement: 0.9}

	_, err := NewServiceManager(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, segmentation.ErrInvalidWeights)
}

func TestControllerManager(t *testing.T) {
	cfg := testConfig(t)
	s, err := NewServiceManager(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}

	cfg.Controllers = []config.ControllerData{
		{Type: "rest"},
		{Type: "management", ManagementAPI: &config.ManagementAPIData{AuthToken: "t"}},
		{Type: "keymonitor"},
	}
	cm, err := NewControllerManager(ctx, wg, &staticProvider{cfg: cfg}, s, nil)
	require.NoError(t, err)
	assert.Len(t, cm.(*controllerManager).controllers, 3)

	cfg.Controllers = []config.ControllerData{{Type: "wunderground"}}
	_, err = NewControllerManager(ctx, wg, &staticProvider{cfg: cfg}, s, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown controller type")
}
