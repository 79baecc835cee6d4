// segment-report runs one segmentation analysis and prints the ranked
// segments with targeting recommendations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chrissnell/launchplanner/internal/cache"
	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/internal/log"
	"github.com/chrissnell/launchplanner/internal/market"
	"github.com/chrissnell/launchplanner/internal/segmentation"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

type options struct {
	cfgFile     string
	cfgBackend  string
	products    string
	query       string
	targetPrice float64
	clusters    int
	top         int
	strict      bool
	jsonOutput  bool
	timeout     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.cfgFile, "config", "", "Path to configuration source (optional)")
	flag.StringVar(&opts.cfgBackend, "config-backend", "yaml", "Configuration backend type: 'yaml' or 'sqlite'")
	flag.StringVar(&opts.products, "products", "", "JSON file of competitor products to use instead of a shopping search")
	flag.StringVar(&opts.query, "query", "", "Product search query (default: segmentation.product-query)")
	flag.Float64Var(&opts.targetPrice, "target-price", 0, "Launch price in USD (default: segmentation.target-price)")
	flag.IntVar(&opts.clusters, "clusters", 0, "Also cluster synthetic customers into this many segments")
	flag.IntVar(&opts.top, "top", 0, "Number of recommendations (default: segmentation.top-n)")
	flag.BoolVar(&opts.strict, "strict", false, "Refuse to fall back to built-in data when a source is unavailable")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Write the analysis as JSON")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Time limit for data collection")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	logger := log.Nop()
	if *debug {
		logger = log.GetSugaredLogger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, w io.Writer, logger *zap.SugaredLogger) error {
	cfg, err := loadConfig(opts.cfgFile, opts.cfgBackend)
	if err != nil {
		return err
	}
	if opts.strict {
		cfg.Connectors.Strict = true
	}

	req := segmentation.Request{
		Query:       opts.query,
		TargetPrice: opts.targetPrice,
		Clusters:    opts.clusters,
		TopN:        opts.top,
	}
	if opts.products != "" {
		req.Products, err = readProducts(opts.products)
		if err != nil {
			return err
		}
	}

	agent, closeFn, err := newAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	analysis, err := agent.Analyze(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}
	return writeReport(w, analysis)
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	if cfgFile == "" {
		cfg := &config.ConfigData{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	filename, _ := filepath.Abs(cfgFile)
	provider, err := config.OpenProvider(filename, cfgBackend)
	if err != nil {
		return nil, err
	}
	defer provider.Close()
	return provider.LoadConfig()
}

// newAgent wires a segmentation agent to live connectors the same way the
// server does
func newAgent(cfg *config.ConfigData, logger *zap.SugaredLogger) (*segmentation.Agent, func(), error) {
	ch, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create response cache: %w", err)
	}
	km, err := keys.NewManagerFromConfig(cfg.Keys, logger)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("could not load API keys: %w", err)
	}

	client := connectors.NewClient(cfg.Connectors, km, logger,
		connectors.WithCache(ch, config.ParseDurationOr(cfg.Cache.TTL, config.DefaultCacheTTL)))

	agentOpts := segmentation.OptionsFromConfig(cfg.Segmentation, client.Strict())
	if err := agentOpts.Weights.Validate(); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("invalid segmentation weights: %w", err)
	}
	return segmentation.NewAgentFromSet(connectors.NewSet(client), agentOpts, logger), func() { ch.Close() }, nil
}

// readProducts accepts either a JSON array of products or an object with a
// "products" array
func readProducts(path string) ([]market.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read products file: %w", err)
	}

	var products []market.Product
	if err := json.Unmarshal(data, &products); err == nil {
		return products, nil
	}

	var wrapped struct {
		Products []market.Product `json:"products"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("could not parse products file %s: %w", path, err)
	}
	return wrapped.Products, nil
}

func writeReport(w io.Writer, a *segmentation.Analysis) error {
	mode := "fallback allowed"
	if a.Strict {
		mode = "strict"
	}
	fmt.Fprintf(w, "Segmentation analysis %s (%s)\n", a.GeneratedAt.Format(time.RFC3339), mode)
	fmt.Fprintf(w, "Target price: $%.2f  Addressable users: %s\n", a.TargetPrice, humanize.Comma(int64(a.AddressableSize)))
	fmt.Fprintf(w, "Data sources: %v\n\n", a.Sources)
	if a.Clusters != nil {
		fmt.Fprintf(w, "Clustering: k=%d, %d iterations, inertia %.1f\n\n",
			a.Clusters.K, a.Clusters.Iterations, a.Clusters.Inertia)
	}
	return segmentation.Report(w, a.Segments, a.Top)
}
