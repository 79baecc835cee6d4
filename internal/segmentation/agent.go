package segmentation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/market"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DemographicSource supplies population and macro figures
type DemographicSource interface {
	AgeGenderPopulation(ctx context.Context) (market.PopulationTable, market.DataSource, error)
	MarketIndicators(ctx context.Context) (market.Indicators, error)
}

// SignalSource supplies social and search interest for a query
type SignalSource interface {
	InterestSignals(ctx context.Context, query string) (market.Signals, error)
}

// ProductSource supplies shopping listings for a query
type ProductSource interface {
	Products(ctx context.Context, query string, limit int) ([]market.Product, error)
}

// Number of shopping results requested per analysis
const productLimit = 40

// Options are the model parameters of an Agent
type Options struct {
	ProductQuery  string
	TargetPrice   float64
	BrandShare    float64
	Weights       Weights
	Strict        bool
	Seed          uint64
	SyntheticSize int
	TopN          int
}

// OptionsFromConfig builds Options from the segmentation config section
func OptionsFromConfig(cfg config.SegmentationData, strict bool) Options {
	return Options{
		ProductQuery:  cfg.ProductQuery,
		TargetPrice:   cfg.TargetPrice,
		BrandShare:    cfg.BrandShare,
		Weights:       WeightsFromConfig(cfg.Weights),
		Strict:        strict,
		Seed:          cfg.Seed,
		SyntheticSize: cfg.SyntheticSize,
		TopN:          cfg.TopN,
	}
}

// Request narrows a single analysis. Zero values fall back to the agent's
// options.
type Request struct {
	Query         string           `json:"query,omitempty"`
	Products      []market.Product `json:"products,omitempty"`
	TargetPrice   float64          `json:"target_price,omitempty"`
	Clusters      int              `json:"clusters,omitempty"`
	SyntheticSize int              `json:"synthetic_size,omitempty"`
	TopN          int              `json:"top_n,omitempty"`
}

// Analysis is the full output of the segmentation agent
type Analysis struct {
	Segments        []Segment         `json:"segments"`
	Top             []Recommendation  `json:"top"`
	Indicators      market.Indicators `json:"indicators"`
	Signals         *market.Signals   `json:"signals,omitempty"`
	Clusters        *ClusterResult    `json:"clusters,omitempty"`
	Sources         []string          `json:"sources"`
	Strict          bool              `json:"strict"`
	TargetPrice     float64           `json:"target_price"`
	AddressableSize float64           `json:"addressable_size"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// Agent gathers market data and turns it into ranked segments
type Agent struct {
	demo     DemographicSource
	signals  SignalSource
	products ProductSource
	opts     Options
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewAgent returns an agent over the given data sources. signals and
// products may be nil.
func NewAgent(demo DemographicSource, signals SignalSource, products ProductSource, opts Options, logger *zap.SugaredLogger) *Agent {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.TargetPrice <= 0 {
		opts.TargetPrice = config.DefaultTargetPrice
	}
	if opts.BrandShare <= 0 {
		opts.BrandShare = config.DefaultBrandShare
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}
	if opts.SyntheticSize <= 0 {
		opts.SyntheticSize = config.DefaultSyntheticSize
	}
	if opts.TopN <= 0 {
		opts.TopN = config.DefaultTopN
	}
	return &Agent{
		demo:     demo,
		signals:  signals,
		products: products,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// NewAgentFromSet wires an agent to live connectors
func NewAgentFromSet(set *connectors.Set, opts Options, logger *zap.SugaredLogger) *Agent {
	demo := connectors.NewDemographicConnector(set, logger).WithStrict(opts.Strict)
	return NewAgent(demo, connectors.NewSignalCollector(set, logger), set.SerpAPI, opts, logger)
}

// Options returns the agent's effective options
func (a *Agent) Options() Options {
	return a.opts
}

type gathered struct {
	pop        market.PopulationTable
	popSource  market.DataSource
	indicators market.Indicators
	signals    *market.Signals
	products   []market.Product
	prodSource market.DataSource
}

// gather fetches population, indicators, signals and products concurrently.
// Only population and indicator failures abort; the others are optional.
func (a *Agent) gather(ctx context.Context, req Request, wantProducts bool) (*gathered, error) {
	query := a.query(req)
	out := &gathered{prodSource: market.SourceUserSupply}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pop, src, err := a.demo.AgeGenderPopulation(gctx)
		if err != nil {
			return fmt.Errorf("population: %w", err)
		}
		out.pop, out.popSource = pop, src
		return nil
	})
	g.Go(func() error {
		ind, err := a.demo.MarketIndicators(gctx)
		if err != nil {
			return fmt.Errorf("market indicators: %w", err)
		}
		out.indicators = ind
		return nil
	})
	if a.signals != nil && query != "" {
		g.Go(func() error {
			sig, err := a.signals.InterestSignals(gctx, query)
			if err != nil {
				a.logger.Warnw("interest signals unavailable", "query", query, "error", err)
				return nil
			}
			out.signals = &sig
			return nil
		})
	}
	if wantProducts {
		out.products = req.Products
		if len(req.Products) == 0 && a.products != nil && query != "" {
			g.Go(func() error {
				products, err := a.products.Products(gctx, query, productLimit)
				if err != nil {
					a.logger.Warnw("product listings unavailable", "query", query, "error", err)
					return nil
				}
				out.products = products
				out.prodSource = market.SourceSerpAPI
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Agent) query(req Request) string {
	if req.Query != "" {
		return req.Query
	}
	return a.opts.ProductQuery
}

func (a *Agent) targetPrice(req Request) float64 {
	if req.TargetPrice > 0 {
		return req.TargetPrice
	}
	return a.opts.TargetPrice
}

// Demographic returns the ranked Gender x Age segments
func (a *Agent) Demographic(ctx context.Context, req Request) ([]Segment, error) {
	data, err := a.gather(ctx, req, false)
	if err != nil {
		return nil, err
	}
	segments, err := a.demographic(data, req)
	if err != nil {
		return nil, err
	}
	return Rank(segments, a.opts.Weights), nil
}

func (a *Agent) demographic(data *gathered, req Request) ([]Segment, error) {
	return DemographicSegments(DemographicInput{
		Population:       data.pop,
		PopulationSource: data.popSource,
		Indicators:       &data.indicators,
		Signals:          data.signals,
		TargetPrice:      a.targetPrice(req),
		BrandShare:       a.opts.BrandShare,
		Strict:           a.opts.Strict,
	})
}

// Behavioral returns the ranked behavioral segments
func (a *Agent) Behavioral(ctx context.Context, req Request) ([]Segment, error) {
	data, err := a.gather(ctx, req, true)
	if err != nil {
		return nil, err
	}
	demo, err := a.demographic(data, req)
	if err != nil {
		return nil, err
	}
	segments, err := a.behavioral(data, demo, req)
	if err != nil {
		return nil, err
	}
	return Rank(segments, a.opts.Weights), nil
}

func (a *Agent) behavioral(data *gathered, demo []Segment, req Request) ([]Segment, error) {
	return BehavioralSegments(BehavioralInput{
		Products:      data.products,
		ProductSource: data.prodSource,
		Addressable:   AddressableUsers(demo, a.opts.BrandShare),
		TargetPrice:   a.targetPrice(req),
		Signals:       data.signals,
		Strict:        a.opts.Strict,
	})
}

// Clusters generates synthetic customers from the live population, clusters
// them and returns the ranked cluster segments
func (a *Agent) Clusters(ctx context.Context, req Request) ([]Segment, *ClusterResult, error) {
	data, err := a.gather(ctx, req, false)
	if err != nil {
		return nil, nil, err
	}
	demo, err := a.demographic(data, req)
	if err != nil {
		return nil, nil, err
	}
	segments, res, err := a.clusters(data, demo, req)
	if err != nil {
		return nil, nil, err
	}
	return Rank(segments, a.opts.Weights), res, nil
}

func (a *Agent) clusters(data *gathered, demo []Segment, req Request) ([]Segment, *ClusterResult, error) {
	k := req.Clusters
	if k <= 0 {
		k = config.DefaultClusters
	}
	n := req.SyntheticSize
	if n <= 0 {
		n = a.opts.SyntheticSize
	}
	customers := GenerateCustomersFrom(data.pop, n, a.opts.Seed)
	res, err := Cluster(customers, k, a.opts.Seed)
	if err != nil {
		return nil, nil, err
	}
	return ClusterSegments(customers, res, AddressableUsers(demo, a.opts.BrandShare), a.targetPrice(req)), res, nil
}

// Analyze runs the whole pipeline: demographic and behavioral segments, plus
// clusters when req.Clusters is set, ranked together
func (a *Agent) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	data, err := a.gather(ctx, req, true)
	if err != nil {
		return nil, err
	}

	demo, err := a.demographic(data, req)
	if err != nil {
		return nil, err
	}
	behavioral, err := a.behavioral(data, demo, req)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		Indicators:      data.indicators,
		Signals:         data.signals,
		Strict:          a.opts.Strict,
		TargetPrice:     a.targetPrice(req),
		AddressableSize: AddressableUsers(demo, a.opts.BrandShare),
		GeneratedAt:     a.now(),
	}

	all := append(demo, behavioral...)
	if req.Clusters > 0 {
		clusters, res, err := a.clusters(data, demo, req)
		if err != nil {
			return nil, err
		}
		all = append(all, clusters...)
		analysis.Clusters = res
	}

	analysis.Segments = Rank(all, a.opts.Weights)
	topN := req.TopN
	if topN <= 0 {
		topN = a.opts.TopN
	}
	analysis.Top = Recommend(analysis.Segments, topN, analysis.TargetPrice)

	seen := map[string]bool{}
	for _, s := range analysis.Segments {
		for _, src := range s.DataSources {
			if !seen[src] {
				seen[src] = true
				analysis.Sources = append(analysis.Sources, src)
			}
		}
	}
	sort.Strings(analysis.Sources)

	a.logger.Infow("segmentation analysis complete",
		"segments", len(analysis.Segments),
		"top", analysis.Segments[0].Name,
		"sources", analysis.Sources,
		"strict", analysis.Strict)
	return analysis, nil
}
