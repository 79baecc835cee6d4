// Package segmentation builds customer segments for a product launch, scores
// their attractiveness and ranks them.
package segmentation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/market"
	"github.com/chrissnell/launchplanner/pkg/config"
)

// ErrNoLiveData is returned in strict mode when a segment would have to be
// built from fallback tables
var ErrNoLiveData = connectors.ErrNoLiveData

// ErrInvalidWeights is returned by Weights.Validate
var ErrInvalidWeights = errors.New("invalid weights")

// Kind is the family a segment belongs to
type Kind string

const (
	KindDemographic Kind = "demographic"
	KindBehavioral  Kind = "behavioral"
	KindCluster     Kind = "cluster"
)

// Segment is a named group of prospective customers
type Segment struct {
	Name              string            `json:"name"`
	Kind              Kind              `json:"kind"`
	Gender            market.Gender     `json:"gender,omitempty"`
	AgeGroup          market.AgeGroup   `json:"age_group,omitempty"`
	Population        float64           `json:"population"`
	MarketSize        float64           `json:"market_size"`
	Share             float64           `json:"share"`
	Engagement        float64           `json:"engagement"`
	PurchaseInfluence float64           `json:"purchase_influence"`
	PriceFit          float64           `json:"price_fit"`
	Budget            float64           `json:"budget"`
	Score             float64           `json:"score"`
	Rank              int               `json:"rank"`
	Characteristics   map[string]string `json:"characteristics,omitempty"`
	Channels          []string          `json:"channels,omitempty"`
	Messaging         string            `json:"messaging,omitempty"`
	DataSources       []string          `json:"data_sources,omitempty"`
}

// Weights of the attractiveness score terms
type Weights struct {
	MarketSize        float64 `json:"market_size"`
	Engagement        float64 `json:"engagement"`
	PurchaseInfluence float64 `json:"purchase_influence"`
	PriceFit          float64 `json:"price_fit"`
}

// DefaultWeights favour market size slightly over the other terms
var DefaultWeights = Weights{
	MarketSize:        0.30,
	Engagement:        0.25,
	PurchaseInfluence: 0.25,
	PriceFit:          0.20,
}

// WeightsFromConfig converts configured weights, using the defaults when
// none are set
func WeightsFromConfig(w config.WeightsData) Weights {
	if w.Sum() == 0 {
		return DefaultWeights
	}
	return Weights{
		MarketSize:        w.MarketSize,
		Engagement:        w.Engagement,
		PurchaseInfluence: w.PurchaseInfluence,
		PriceFit:          w.PriceFit,
	}
}

// Validate checks that the weights are non-negative and sum to 1
func (w Weights) Validate() error {
	if w.MarketSize < 0 || w.Engagement < 0 || w.PurchaseInfluence < 0 || w.PriceFit < 0 {
		return fmt.Errorf("%w: must not be negative", ErrInvalidWeights)
	}
	sum := w.MarketSize + w.Engagement + w.PurchaseInfluence + w.PriceFit
	if math.Abs(sum-1) > 0.001 {
		return fmt.Errorf("%w: must sum to 1, got %.3f", ErrInvalidWeights, sum)
	}
	return nil
}

// Score computes the attractiveness of s. Market size is normalised by
// maxMarket; every term is clipped to [0,1] before weighting and the result
// is clipped again.
func Score(s Segment, maxMarket float64, w Weights) float64 {
	var market01 float64
	if maxMarket > 0 {
		market01 = market.Clip01(s.MarketSize / maxMarket)
	}
	score := w.MarketSize*market01 +
		w.Engagement*market.Clip01(s.Engagement) +
		w.PurchaseInfluence*market.Clip01(s.PurchaseInfluence) +
		w.PriceFit*market.Clip01(s.PriceFit)
	return market.Clip01(score)
}

// Rank scores every segment against the largest market size among them and
// sorts by score descending, then name. Rank numbers start at 1.
func Rank(segments []Segment, w Weights) []Segment {
	var maxMarket float64
	for _, s := range segments {
		maxMarket = math.Max(maxMarket, s.MarketSize)
	}

	for i := range segments {
		segments[i].Score = Score(segments[i], maxMarket, w)
	}
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].Score != segments[j].Score {
			return segments[i].Score > segments[j].Score
		}
		return segments[i].Name < segments[j].Name
	})
	for i := range segments {
		segments[i].Rank = i + 1
	}
	return segments
}

// PriceFit is 1 when price is within budget and falls linearly to 0 at
// twice the budget
func PriceFit(price, budget float64) float64 {
	if budget <= 0 {
		return 0
	}
	if price <= budget {
		return 1
	}
	return math.Max(0, 1-(price-budget)/budget)
}

func withShares(segments []Segment) []Segment {
	var total float64
	for _, s := range segments {
		total += s.MarketSize
	}
	for i := range segments {
		if total > 0 {
			segments[i].Share = segments[i].MarketSize / total
		}
	}
	return segments
}

func addSource(list []string, src market.DataSource) []string {
	for _, s := range list {
		if s == string(src) {
			return list
		}
	}
	return append(list, string(src))
}
