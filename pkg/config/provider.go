package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrReadOnly is returned by write operations on read-only providers
var ErrReadOnly = errors.New("configuration provider is read-only")

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetControllers() ([]ControllerData, error)
	GetController(controllerType string) (*ControllerData, error)

	// Configuration management
	UpdateController(controllerType string, controller *ControllerData) error
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Keys         KeysData         `json:"keys" yaml:"keys"`
	Connectors   ConnectorsData   `json:"connectors" yaml:"connectors"`
	Cache        CacheData        `json:"cache" yaml:"cache"`
	Pricing      PricingData      `json:"pricing" yaml:"pricing"`
	Segmentation SegmentationData `json:"segmentation" yaml:"segmentation"`
	Controllers  []ControllerData `json:"controllers,omitempty" yaml:"controllers,omitempty"`
}

// KeysData tells the key manager where to find API keys. Sources are merged
// with the process environment first, then EnvFile, then ConfigJSON.
type KeysData struct {
	EnvFile          string   `json:"env_file,omitempty" yaml:"env-file,omitempty"`
	ConfigJSON       string   `json:"config_json,omitempty" yaml:"config-json,omitempty"`
	ErrorThreshold   int      `json:"error_threshold,omitempty" yaml:"error-threshold,omitempty"`
	DisabledServices []string `json:"disabled_services,omitempty" yaml:"disabled-services,omitempty"`
}

// ConnectorsData holds settings shared by the vendor API connectors
type ConnectorsData struct {
	Timeout           string             `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxAttempts       int                `json:"max_attempts,omitempty" yaml:"max-attempts,omitempty"`
	RequestsPerSecond float64            `json:"requests_per_second,omitempty" yaml:"requests-per-second,omitempty"`
	Country           string             `json:"country,omitempty" yaml:"country,omitempty"`
	CensusYear        int                `json:"census_year,omitempty" yaml:"census-year,omitempty"`
	Strict            bool               `json:"strict,omitempty" yaml:"strict,omitempty"`
	BaseURLs          map[string]string  `json:"base_urls,omitempty" yaml:"base-urls,omitempty"`
	RateLimits        map[string]float64 `json:"rate_limits,omitempty" yaml:"rate-limits,omitempty"`
}

// CacheData selects the response cache backend
type CacheData struct {
	Backend       string `json:"backend,omitempty" yaml:"backend,omitempty"`
	TTL           string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis-addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis-password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis-db,omitempty"`
}

// PricingData selects the pricing plan store
type PricingData struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	DataDir string `json:"data_dir,omitempty" yaml:"data-dir,omitempty"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Seed    *bool  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// SegmentationData holds the segment model parameters
type SegmentationData struct {
	ProductCategory string      `json:"product_category,omitempty" yaml:"product-category,omitempty"`
	ProductQuery    string      `json:"product_query,omitempty" yaml:"product-query,omitempty"`
	TargetPrice     float64     `json:"target_price,omitempty" yaml:"target-price,omitempty"`
	BrandShare      float64     `json:"brand_share,omitempty" yaml:"brand-share,omitempty"`
	Weights         WeightsData `json:"weights" yaml:"weights"`
	Seed            uint64      `json:"seed,omitempty" yaml:"seed,omitempty"`
	SyntheticSize   int         `json:"synthetic_size,omitempty" yaml:"synthetic-size,omitempty"`
	Clusters        int         `json:"clusters,omitempty" yaml:"clusters,omitempty"`
	TopN            int         `json:"top_n,omitempty" yaml:"top-n,omitempty"`
}

// WeightsData holds the attractiveness score weights
type WeightsData struct {
	MarketSize        float64 `json:"market_size" yaml:"market-size"`
	Engagement        float64 `json:"engagement" yaml:"engagement"`
	PurchaseInfluence float64 `json:"purchase_influence" yaml:"purchase-influence"`
	PriceFit          float64 `json:"price_fit" yaml:"price-fit"`
}

// Sum returns the total of all weights
func (w WeightsData) Sum() float64 {
	return w.MarketSize + w.Engagement + w.PurchaseInfluence + w.PriceFit
}

// ControllerData holds the configuration for the controller backends
type ControllerData struct {
	Type          string             `json:"type,omitempty" yaml:"type,omitempty"`
	RESTServer    *RESTServerData    `json:"rest,omitempty" yaml:"rest,omitempty"`
	ManagementAPI *ManagementAPIData `json:"management,omitempty" yaml:"management,omitempty"`
	KeyMonitor    *KeyMonitorData    `json:"keymonitor,omitempty" yaml:"keymonitor,omitempty"`
}

type RESTServerData struct {
	Cert              string   `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key               string   `json:"key,omitempty" yaml:"key,omitempty"`
	Port              int      `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr        string   `json:"listen_addr,omitempty" yaml:"listen-addr,omitempty"`
	RequestsPerSecond float64  `json:"requests_per_second,omitempty" yaml:"requests-per-second,omitempty"`
	Burst             int      `json:"burst,omitempty" yaml:"burst,omitempty"`
	EnableCORS        bool     `json:"enable_cors,omitempty" yaml:"enable-cors,omitempty"`
	TrustedProxies    []string `json:"trusted_proxies,omitempty" yaml:"trusted-proxies,omitempty"`
}

type ManagementAPIData struct {
	Cert       string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen-addr,omitempty"`
	AuthToken  string `json:"auth_token,omitempty" yaml:"auth-token,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty" yaml:"enable-cors,omitempty"`
}

type KeyMonitorData struct {
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// Default values
const (
	DefaultTimeout           = 10 * time.Second
	DefaultMaxAttempts       = 3
	DefaultRequestsPerSecond = 5.0
	DefaultCountry           = "US"
	DefaultCensusYear        = 2022
	DefaultCacheTTL          = 6 * time.Hour
	DefaultTargetPrice       = 799.0
	DefaultBrandShare        = 0.28
	DefaultSyntheticSize     = 500
	DefaultClusters          = 4
	DefaultTopN              = 5
	DefaultKeyMonitorPeriod  = 30 * time.Minute
)

// DefaultWeights are the attractiveness score weights used when none are configured
var DefaultWeights = WeightsData{
	MarketSize:        0.30,
	Engagement:        0.25,
	PurchaseInfluence: 0.25,
	PriceFit:          0.20,
}

// ApplyDefaults fills in every unset value
func (c *ConfigData) ApplyDefaults() {
	if c.Keys.EnvFile == "" {
		c.Keys.EnvFile = ".env"
	}
	if c.Keys.ConfigJSON == "" {
		c.Keys.ConfigJSON = "config.json"
	}
	if c.Keys.ErrorThreshold <= 0 {
		c.Keys.ErrorThreshold = 3
	}

	if c.Connectors.Timeout == "" {
		c.Connectors.Timeout = DefaultTimeout.String()
	}
	if c.Connectors.MaxAttempts <= 0 {
		c.Connectors.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connectors.RequestsPerSecond <= 0 {
		c.Connectors.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Connectors.Country == "" {
		c.Connectors.Country = DefaultCountry
	}
	if c.Connectors.CensusYear == 0 {
		c.Connectors.CensusYear = DefaultCensusYear
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = DefaultCacheTTL.String()
	}

	if c.Pricing.Backend == "" {
		c.Pricing.Backend = "file"
	}
	if c.Pricing.DataDir == "" {
		c.Pricing.DataDir = "data"
	}

	s := &c.Segmentation
	if s.ProductCategory == "" {
		s.ProductCategory = "smartphone"
	}
	if s.ProductQuery == "" {
		s.ProductQuery = "Samsung Galaxy"
	}
	if s.TargetPrice <= 0 {
		s.TargetPrice = DefaultTargetPrice
	}
	if s.BrandShare <= 0 {
		s.BrandShare = DefaultBrandShare
	}
	if s.Weights.Sum() == 0 {
		s.Weights = DefaultWeights
	}
	if s.Seed == 0 {
		s.Seed = 42
	}
	if s.SyntheticSize <= 0 {
		s.SyntheticSize = DefaultSyntheticSize
	}
	if s.Clusters <= 0 {
		s.Clusters = DefaultClusters
	}
	if s.TopN <= 0 {
		s.TopN = DefaultTopN
	}
}

// Validate checks the configuration for values that cannot work
func (c *ConfigData) Validate() error {
	if _, err := time.ParseDuration(c.Connectors.Timeout); err != nil {
		return fmt.Errorf("invalid connectors.timeout %q: %w", c.Connectors.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache.ttl %q: %w", c.Cache.TTL, err)
	}

	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis-addr must be set for the redis cache backend")
		}
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}

	switch c.Pricing.Backend {
	case "file":
	case "sqlite", "postgres":
		if c.Pricing.DSN == "" {
			return fmt.Errorf("pricing.dsn must be set for the %s pricing backend", c.Pricing.Backend)
		}
	default:
		return fmt.Errorf("unsupported pricing backend: %s", c.Pricing.Backend)
	}

	w := c.Segmentation.Weights
	for name, v := range map[string]float64{
		"market-size":        w.MarketSize,
		"engagement":         w.Engagement,
		"purchase-influence": w.PurchaseInfluence,
		"price-fit":          w.PriceFit,
	} {
		if v < 0 {
			return fmt.Errorf("segmentation weight %s must not be negative", name)
		}
	}
	if math.Abs(w.Sum()-1) > 0.001 {
		return fmt.Errorf("segmentation weights must sum to 1, got %.3f", w.Sum())
	}
	if c.Segmentation.BrandShare > 1 {
		return fmt.Errorf("segmentation.brand-share must be a fraction, got %v", c.Segmentation.BrandShare)
	}

	for _, con := range c.Controllers {
		switch con.Type {
		case "rest", "restserver":
			if con.RESTServer != nil && (con.RESTServer.Port < 0 || con.RESTServer.Port > 65535) {
				return fmt.Errorf("invalid rest port %d", con.RESTServer.Port)
			}
		case "management":
			if con.ManagementAPI != nil && (con.ManagementAPI.Port < 0 || con.ManagementAPI.Port > 65535) {
				return fmt.Errorf("invalid management port %d", con.ManagementAPI.Port)
			}
		case "keymonitor":
			if con.KeyMonitor != nil && con.KeyMonitor.Interval != "" {
				if _, err := time.ParseDuration(con.KeyMonitor.Interval); err != nil {
					return fmt.Errorf("invalid keymonitor interval %q: %w", con.KeyMonitor.Interval, err)
				}
			}
		default:
			return fmt.Errorf("unknown controller type: %s", con.Type)
		}
	}

	return nil
}

// ParseDurationOr parses s and returns def when s is empty or invalid
func ParseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// findController returns the first controller of the given type
func findController(controllers []ControllerData, controllerType string) (*ControllerData, error) {
	for i := range controllers {
		if controllers[i].Type == controllerType {
			return &controllers[i], nil
		}
	}
	return nil, fmt.Errorf("controller %s not found", controllerType)
}

// OpenProvider opens the configuration source at filename with the named
// backend, "yaml" or "sqlite"
func OpenProvider(filename, backend string) (ConfigProvider, error) {
	switch backend {
	case "", "yaml":
		return NewYAMLProvider(filename), nil
	case "sqlite":
		p, err := NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", backend)
	}
}
