package connectors

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/chrissnell/launchplanner/internal/market"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReferenceCounts is the count at which each signal source counts as full
// interest
var ReferenceCounts = map[string]float64{
	"news":     10_000,
	"youtube":  1_000_000,
	"twitter":  100_000,
	"reddit":   100,
	"bing":     10_000_000,
	"facebook": 100_000_000,
}

type signalFunc func(ctx context.Context, query string) (float64, error)

// SignalCollector gathers social and search interest for a query
type SignalCollector struct {
	sources map[string]signalFunc
	logger  *zap.SugaredLogger
}

// NewSignalCollector wires the signal sources of a connector set
func NewSignalCollector(s *Set, logger *zap.SugaredLogger) *SignalCollector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SignalCollector{
		sources: map[string]signalFunc{
			"news":     s.News.ArticleCount,
			"youtube":  s.YouTube.SearchTotal,
			"twitter":  s.Twitter.RecentCount,
			"reddit":   s.Reddit.MentionCount,
			"bing":     s.Bing.EstimatedMatches,
			"facebook": s.Facebook.AudienceSize,
		},
		logger: logger,
	}
}

// InterestSignals queries every source concurrently. Sources that fail are
// listed in Signals.Errors. ErrNoData is returned when none answered.
func (c *SignalCollector) InterestSignals(ctx context.Context, query string) (market.Signals, error) {
	sig := market.Signals{
		Query:  query,
		Counts: make(map[string]float64),
		Errors: make(map[string]string),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, fn := range c.sources {
		name, fn := name, fn
		g.Go(func() error {
			n, err := fn(gctx, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sig.Errors[name] = err.Error()
				return nil
			}
			sig.Counts[name] = n
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return market.Signals{}, err
	}

	if len(sig.Errors) > 0 {
		failed := make([]string, 0, len(sig.Errors))
		for name := range sig.Errors {
			failed = append(failed, name)
		}
		sort.Strings(failed)
		c.logger.Debugw("some interest signals unavailable", "query", query, "sources", failed)
	}
	if len(sig.Errors) == 0 {
		sig.Errors = nil
	}

	if !sig.Available() {
		return sig, ErrNoData
	}
	sig.Index = InterestIndex(sig.Counts)
	return sig, nil
}

// InterestIndex is the mean of log10(1+count)/log10(1+reference) over the
// sources present, each term clipped to [0,1]
func InterestIndex(counts map[string]float64) float64 {
	var sum float64
	var n int
	for name, count := range counts {
		ref, ok := ReferenceCounts[name]
		if !ok || ref <= 0 {
			continue
		}
		if count < 0 {
			count = 0
		}
		sum += market.Clip01(math.Log10(1+count) / math.Log10(1+ref))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
