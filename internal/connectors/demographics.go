package connectors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chrissnell/launchplanner/internal/market"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DemographicConnector combines Census, World Bank and FRED into the
// population and macro figures segmentation needs, falling back to the
// built-in tables when a live call fails
type DemographicConnector struct {
	census    *Census
	worldBank *WorldBank
	fred      *FRED
	country   string
	strict    bool
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewDemographicConnector builds a DemographicConnector from a connector set
func NewDemographicConnector(s *Set, logger *zap.SugaredLogger) *DemographicConnector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DemographicConnector{
		census:    s.Census,
		worldBank: s.WorldBank,
		fred:      s.FRED,
		country:   s.Client.Country(),
		strict:    s.Client.Strict(),
		logger:    logger,
		now:       time.Now,
	}
}

// WithStrict returns a copy of d with strict mode set
func (d *DemographicConnector) WithStrict(strict bool) *DemographicConnector {
	c := *d
	c.strict = strict
	return &c
}

// Strict reports whether fallbacks are disabled
func (d *DemographicConnector) Strict() bool {
	return d.strict
}

// AgeGenderPopulation returns the adult population by gender and age group.
// The US is read from the Census; other countries scale the US age
// distribution to their World Bank population.
func (d *DemographicConnector) AgeGenderPopulation(ctx context.Context) (market.PopulationTable, market.DataSource, error) {
	var (
		table  market.PopulationTable
		source market.DataSource
		err    error
	)

	if d.country == "US" {
		table, err = d.census.Population(ctx)
		source = market.SourceCensus
	} else {
		var pop float64
		pop, _, err = d.worldBank.Latest(ctx, d.country, IndicatorPopulation)
		if err == nil {
			table = FallbackPopulation().Scale(pop / FallbackUSPopulation)
			source = market.SourceWorldBank
		}
	}

	if err == nil {
		return table, source, nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}
	if d.strict {
		return nil, "", fmt.Errorf("population for %s: %w: %w", d.country, ErrNoLiveData, err)
	}

	d.logger.Warnw("using fallback population table", "country", d.country, "error", err)
	return FallbackPopulation(), market.SourceFallback, nil
}

type indicatorFetch struct {
	field  string
	source market.DataSource
	get    func(ctx context.Context) (float64, error)
}

// MarketIndicators fetches the macro indicators concurrently. Each value
// that cannot be fetched falls back on its own and is named in
// Indicators.Fallbacks.
func (d *DemographicConnector) MarketIndicators(ctx context.Context) (market.Indicators, error) {
	wb := func(code string) func(context.Context) (float64, error) {
		return func(ctx context.Context) (float64, error) {
			v, _, err := d.worldBank.Latest(ctx, d.country, code)
			return v, err
		}
	}
	fred := func(series string) func(context.Context) (float64, error) {
		return func(ctx context.Context) (float64, error) {
			o, err := d.fred.Latest(ctx, series)
			return o.Value, err
		}
	}

	fetches := []indicatorFetch{
		{"population", market.SourceWorldBank, wb(IndicatorPopulation)},
		{"gdp_per_capita", market.SourceWorldBank, wb(IndicatorGDPPerCapita)},
		{"internet_users_pct", market.SourceWorldBank, wb(IndicatorInternetUsers)},
		{"working_age_pct", market.SourceWorldBank, wb(IndicatorWorkingAge)},
		{"consumer_sentiment", market.SourceFRED, fred(SeriesConsumerSentiment)},
		{"disposable_income", market.SourceFRED, fred(SeriesDisposableIncome)},
		{"saving_rate", market.SourceFRED, fred(SeriesSavingRate)},
	}

	var (
		mu       sync.Mutex
		values   = make(map[string]float64)
		failures = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range fetches {
		f := f
		g.Go(func() error {
			v, err := f.get(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[f.field] = err
				return nil
			}
			values[f.field] = v
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return market.Indicators{}, err
	}

	ind := market.Indicators{Country: d.country, RetrievedAt: d.now()}
	seen := make(map[market.DataSource]bool)
	var missing []string
	for _, f := range fetches {
		v, ok := values[f.field]
		if ok {
			seen[f.source] = true
		} else {
			d.logger.Debugf("indicator %s unavailable: %v", f.field, failures[f.field])
			missing = append(missing, f.field)
			v = fallbackIndicators[f.field]
			seen[market.SourceFallback] = true
		}
		setIndicator(&ind, f.field, v)
	}

	if len(missing) > 0 {
		if d.strict {
			return market.Indicators{}, fmt.Errorf("indicators %s: %w", strings.Join(missing, ", "), ErrNoLiveData)
		}
		d.logger.Warnw("using fallback values for market indicators", "fields", missing)
		ind.Fallbacks = missing
	}

	for s := range seen {
		ind.Sources = append(ind.Sources, s)
	}
	sort.Slice(ind.Sources, func(i, j int) bool { return ind.Sources[i] < ind.Sources[j] })
	return ind, nil
}

// FallbackIndicators returns the built-in indicator values
func FallbackIndicators() market.Indicators {
	ind := market.Indicators{Country: "US", Sources: []market.DataSource{market.SourceFallback}}
	for field, v := range fallbackIndicators {
		setIndicator(&ind, field, v)
		ind.Fallbacks = append(ind.Fallbacks, field)
	}
	sort.Strings(ind.Fallbacks)
	return ind
}

func setIndicator(ind *market.Indicators, field string, v float64) {
	switch field {
	case "population":
		ind.Population = v
	case "gdp_per_capita":
		ind.GDPPerCapita = v
	case "internet_users_pct":
		ind.InternetUsersPct = v
	case "working_age_pct":
		ind.WorkingAgePct = v
	case "consumer_sentiment":
		ind.ConsumerSentiment = v
	case "disposable_income":
		ind.DisposableIncome = v
	case "saving_rate":
		ind.SavingRate = v
	}
}
