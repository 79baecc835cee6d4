package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
keys:
  env-file: /etc/launchplanner/.env
  error-threshold: 5
connectors:
  timeout: 4s
  base-urls:
    census: http://localhost:9999
segmentation:
  target-price: 999
  weights:
    market-size: 0.4
    engagement: 0.2
    purchase-influence: 0.2
    price-fit: 0.2
controllers:
  - type: rest
    rest:
      port: 8090
  - type: management
    management:
      listen-addr: 0.0.0.0
      auth-token: secret
`

func TestParseYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "/etc/launchplanner/.env", cfg.Keys.EnvFile)
	assert.Equal(t, "config.json", cfg.Keys.ConfigJSON)
	assert.Equal(t, 5, cfg.Keys.ErrorThreshold)
	assert.Equal(t, "4s", cfg.Connectors.Timeout)
	assert.Equal(t, "http://localhost:9999", cfg.Connectors.BaseURLs["census"])
	assert.Equal(t, DefaultMaxAttempts, cfg.Connectors.MaxAttempts)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "file", cfg.Pricing.Backend)
	assert.Equal(t, 999.0, cfg.Segmentation.TargetPrice)
	assert.Equal(t, DefaultBrandShare, cfg.Segmentation.BrandShare)
	assert.InDelta(t, 0.4, cfg.Segmentation.Weights.MarketSize, 1e-9)

	require.Len(t, cfg.Controllers, 2)
	assert.Equal(t, 8090, cfg.Controllers[0].RESTServer.Port)
	assert.Equal(t, "secret", cfg.Controllers[1].ManagementAPI.AuthToken)
}

func TestParseYAMLDefaultsWeights(t *testing.T) {
	cfg, err := ParseYAML([]byte("connectors:\n  country: DE\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights, cfg.Segmentation.Weights)
	assert.Equal(t, "DE", cfg.Connectors.Country)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ConfigData)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *ConfigData) {},
		},
		{
			name: "weights must sum to one",
			mutate: func(c *ConfigData) {
				c.Segmentation.Weights = WeightsData{MarketSize: 0.5, Engagement: 0.5, PurchaseInfluence: 0.5}
			},
			wantErr: "must sum to 1",
		},
		{
			name: "negative weight",
			mutate: func(c *ConfigData) {
				c.Segmentation.Weights = WeightsData{MarketSize: 1.2, Engagement: -0.2}
			},
			wantErr: "must not be negative",
		},
		{
			name:    "redis needs an address",
			mutate:  func(c *ConfigData) { c.Cache.Backend = "redis" },
			wantErr: "redis-addr",
		},
		{
			name:    "postgres needs a dsn",
			mutate:  func(c *ConfigData) { c.Pricing.Backend = "postgres" },
			wantErr: "pricing.dsn",
		},
		{
			name:    "unknown pricing backend",
			mutate:  func(c *ConfigData) { c.Pricing.Backend = "mongo" },
			wantErr: "unsupported pricing backend",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *ConfigData) { c.Connectors.Timeout = "soon" },
			wantErr: "connectors.timeout",
		},
		{
			name:    "unknown controller",
			mutate:  func(c *ConfigData) { c.Controllers = []ControllerData{{Type: "ftp"}} },
			wantErr: "unknown controller type",
		},
		{
			name: "bad rest port",
			mutate: func(c *ConfigData) {
				c.Controllers = []ControllerData{{Type: "rest", RESTServer: &RESTServerData{Port: 70000}}}
			},
			wantErr: "invalid rest port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ConfigData{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDurationOr("2s", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("bogus", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("-5s", time.Minute))
}

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	p := NewYAMLProvider(path)
	defer p.Close()

	assert.True(t, p.IsReadOnly())

	mgmt, err := p.GetController("management")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", mgmt.ManagementAPI.ListenAddr)

	_, err = p.GetController("keymonitor")
	assert.Error(t, err)

	assert.ErrorIs(t, p.UpdateController("management", mgmt), ErrReadOnly)
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer p.Close()

	assert.False(t, p.IsReadOnly())

	// An empty database still loads, with defaults applied
	empty, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights, empty.Segmentation.Weights)
	assert.Empty(t, empty.Controllers)

	src, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, p.SaveConfig(src))

	loaded, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, src.Keys, loaded.Keys)
	assert.Equal(t, src.Segmentation, loaded.Segmentation)
	assert.Equal(t, src.Connectors.BaseURLs, loaded.Connectors.BaseURLs)
	require.Len(t, loaded.Controllers, 2)
	assert.Equal(t, "management", loaded.Controllers[0].Type)
	assert.Equal(t, "rest", loaded.Controllers[1].Type)
}

func TestSQLiteProviderUpdateController(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer p.Close()

	err = p.UpdateController("management", &ControllerData{
		ManagementAPI: &ManagementAPIData{Port: 8081, AuthToken: "first"},
	})
	require.NoError(t, err)

	err = p.UpdateController("management", &ControllerData{
		ManagementAPI: &ManagementAPIData{Port: 8081, AuthToken: "second"},
	})
	require.NoError(t, err)

	mgmt, err := p.GetController("management")
	require.NoError(t, err)
	assert.Equal(t, "management", mgmt.Type)
	assert.Equal(t, "second", mgmt.ManagementAPI.AuthToken)

	require.NoError(t, p.DeleteController("management"))
	assert.Error(t, p.DeleteController("management"))
}

func TestOpenProvider(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o600))
	p, err := OpenProvider(yamlPath, "")
	require.NoError(t, err)
	assert.True(t, p.IsReadOnly())

	p, err = OpenProvider(filepath.Join(dir, "config.db"), "sqlite")
	require.NoError(t, err)
	assert.False(t, p.IsReadOnly())
	require.NoError(t, p.Close())

	_, err = OpenProvider(yamlPath, "etcd")
	assert.Error(t, err)
}
