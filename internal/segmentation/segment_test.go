package segmentation

import (
	"errors"
	"testing"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/market"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		seg       Segment
		maxMarket float64
		want      float64
	}{
		{
			name:      "weighted sum",
			seg:       Segment{MarketSize: 50, Engagement: 0.5, PurchaseInfluence: 0.5, PriceFit: 1},
			maxMarket: 100,
			want:      0.6,
		},
		{
			name:      "no market reference",
			seg:       Segment{MarketSize: 50, Engagement: 0.5, PurchaseInfluence: 0.5, PriceFit: 1},
			maxMarket: 0,
			want:      0.45,
		},
		{
			name:      "inputs clipped",
			seg:       Segment{MarketSize: 200, Engagement: 2, PurchaseInfluence: -1, PriceFit: 1},
			maxMarket: 100,
			want:      0.75,
		},
		{
			name:      "perfect",
			seg:       Segment{MarketSize: 100, Engagement: 1, PurchaseInfluence: 1, PriceFit: 1},
			maxMarket: 100,
			want:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.seg, tt.maxMarket, DefaultWeights), 1e-9)
		})
	}
}

func TestScoreIsClipped(t *testing.T) {
	w := Weights{MarketSize: 1, Engagement: 1, PurchaseInfluence: 1, PriceFit: 1}
	s := Segment{MarketSize: 1, Engagement: 1, PurchaseInfluence: 1, PriceFit: 1}
	assert.Equal(t, 1.0, Score(s, 1, w))
}

func TestRank(t *testing.T) {
	segments := []Segment{
		{Name: "B", MarketSize: 10, Engagement: 0.5},
		{Name: "C", MarketSize: 5, Engagement: 0.1},
		{Name: "A", MarketSize: 10, Engagement: 0.5},
		{Name: "D", MarketSize: 20, Engagement: 0.9, PriceFit: 1},
	}
	ranked := Rank(segments, DefaultWeights)

	var names []string
	for i, s := range ranked {
		names = append(names, s.Name)
		assert.Equal(t, i+1, s.Rank)
	}
	assert.Equal(t, []string{"D", "A", "B", "C"}, names)
	assert.InDelta(t, 0.3+0.25*0.9+0.2, ranked[0].Score, 1e-9)
}

func TestPriceFit(t *testing.T) {
	tests := []struct {
		price, budget, want float64
	}{
		{500, 1000, 1},
		{1000, 1000, 1},
		{1500, 1000, 0.5},
		{2500, 1000, 0},
		{100, 0, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PriceFit(tt.price, tt.budget), 1e-9, "price %v budget %v", tt.price, tt.budget)
	}
}

func TestWeights(t *testing.T) {
	assert.NoError(t, DefaultWeights.Validate())
	assert.ErrorIs(t, Weights{MarketSize: 0.5}.Validate(), ErrInvalidWeights)
	assert.ErrorIs(t, Weights{MarketSize: 1.5, Engagement: -0.5}.Validate(), ErrInvalidWeights)

	assert.Equal(t, DefaultWeights, WeightsFromConfig(config.WeightsData{}))
	w := WeightsFromConfig(config.WeightsData{MarketSize: 0.4, Engagement: 0.2, PurchaseInfluence: 0.2, PriceFit: 0.2})
	assert.Equal(t, 0.4, w.MarketSize)
}

func findSegment(t *testing.T, segments []Segment, name string) Segment {
	t.Helper()
	for _, s := range segments {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("segment %q not found", name)
	return Segment{}
}

func TestDemographicSegments(t *testing.T) {
	pop := connectors.FallbackPopulation()
	in := DemographicInput{
		Population:       pop,
		PopulationSource: market.SourceCensus,
		Indicators:       &market.Indicators{ConsumerSentiment: 100, Sources: []market.DataSource{market.SourceFRED}},
		TargetPrice:      799,
		BrandShare:       0.28,
	}
	segments, err := DemographicSegments(in)
	require.NoError(t, err)
	require.Len(t, segments, 12)

	var shares float64
	for _, s := range segments {
		assert.Equal(t, KindDemographic, s.Kind)
		shares += s.Share
	}
	assert.InDelta(t, 1, shares, 1e-9)

	m := findSegment(t, segments, "Male 25-34")
	assert.InDelta(t, pop.Get(market.Male, market.Age25to34)*0.95*0.42*0.28, m.MarketSize, 1e-6)
	assert.Equal(t, []string{"census", "fred"}, m.DataSources)

	young := findSegment(t, segments, "Male 18-24")
	assert.InDelta(t, 0.87, young.Engagement, 1e-9)
	assert.InDelta(t, 0.55/1.15, young.PurchaseInfluence, 1e-9)
	assert.InDelta(t, 1-249.0/550.0, young.PriceFit, 1e-9)
	assert.InDelta(t, 0.84, findSegment(t, segments, "Female 18-24").Engagement, 1e-9)

	assert.Equal(t, 1.0, findSegment(t, segments, "Female 45-54").PurchaseInfluence)
	assert.Equal(t, 1.0, findSegment(t, segments, "Male 35-44").PriceFit)
}

func TestDemographicSegmentsSignalsAndSentiment(t *testing.T) {
	in := DemographicInput{
		Population:       connectors.FallbackPopulation(),
		PopulationSource: market.SourceCensus,
		Indicators:       &market.Indicators{ConsumerSentiment: 150},
		Signals:          &market.Signals{Counts: map[string]float64{"news": 1}, Index: 0.5},
		TargetPrice:      799,
	}
	segments, err := DemographicSegments(in)
	require.NoError(t, err)

	f := findSegment(t, segments, "Female 18-24")
	assert.InDelta(t, 0.7*0.84+0.3*0.5, f.Engagement, 1e-9)
	assert.Contains(t, f.DataSources, "signals")

	// Sentiment is capped at 1.2
	assert.InDelta(t, 0.55/1.15*1.2, findSegment(t, segments, "Male 18-24").PurchaseInfluence, 1e-9)
}

func TestDemographicSegmentsStrict(t *testing.T) {
	_, err := DemographicSegments(DemographicInput{
		Population:       connectors.FallbackPopulation(),
		PopulationSource: market.SourceFallback,
		Strict:           true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoLiveData))
	assert.Contains(t, err.Error(), `cannot create segment "Male 18-24"`)
}

func TestAddressableUsers(t *testing.T) {
	assert.Equal(t, 30.0, AddressableUsers([]Segment{
		{Kind: KindDemographic, MarketSize: 10},
		{Kind: KindDemographic, MarketSize: 20},
		{Kind: KindBehavioral, MarketSize: 1000},
	}, 0.28))

	segments, err := DemographicSegments(DemographicInput{PopulationSource: market.SourceFallback, TargetPrice: 799})
	require.NoError(t, err)
	assert.InDelta(t, AddressableUsers(segments, 0.28), AddressableUsers(nil, 0.28), 1e-3)
}
