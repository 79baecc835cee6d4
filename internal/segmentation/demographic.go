package segmentation

import (
	"fmt"
	"math"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/market"
	"github.com/chrissnell/launchplanner/pkg/config"
)

// Sentiment above this multiple of the baseline no longer raises purchase influence
const maxSentimentFactor = 1.2

// DemographicInput carries everything the Gender x Age model needs
type DemographicInput struct {
	Population       market.PopulationTable
	PopulationSource market.DataSource
	Indicators       *market.Indicators
	Signals          *market.Signals
	TargetPrice      float64
	BrandShare       float64
	Strict           bool
}

type ageProfile struct {
	channels  []string
	messaging string
}

var ageProfiles = map[market.AgeGroup]ageProfile{
	market.Age18to24: {
		channels:  []string{"TikTok", "Instagram", "YouTube", "Snapchat"},
		messaging: "Creator-grade camera and all-day battery for a life lived online",
	},
	market.Age25to34: {
		channels:  []string{"Instagram", "YouTube", "Podcasts", "Reddit"},
		messaging: "Flagship performance that keeps up with work and play",
	},
	market.Age35to44: {
		channels:  []string{"Facebook", "YouTube", "Streaming TV", "Search"},
		messaging: "Productivity, security and a camera for family moments",
	},
	market.Age45to54: {
		channels:  []string{"Facebook", "Search", "Email", "Carrier stores"},
		messaging: "Reliable premium quality with trade-in value",
	},
	market.Age55to64: {
		channels:  []string{"Facebook", "Television", "Email", "Carrier stores"},
		messaging: "Easy to use, big clear display, trusted brand",
	},
	market.Age65Plus: {
		channels:  []string{"Television", "Print", "Carrier stores", "Email"},
		messaging: "Simple setup, accessibility features and dependable support",
	},
}

// DemographicSegments builds one segment per gender and age group
func DemographicSegments(in DemographicInput) ([]Segment, error) {
	if in.Strict && in.PopulationSource == market.SourceFallback {
		name := segmentName(market.Genders[0], market.AgeGroups[0])
		return nil, fmt.Errorf("cannot create segment %q without real API data: %w", name, ErrNoLiveData)
	}

	pop := in.Population
	popSource := in.PopulationSource
	if pop == nil {
		pop = connectors.FallbackPopulation()
		popSource = market.SourceFallback
	}
	brandShare := in.BrandShare
	if brandShare <= 0 {
		brandShare = config.DefaultBrandShare
	}

	sentiment := 1.0
	if in.Indicators != nil && in.Indicators.ConsumerSentiment > 0 {
		sentiment = math.Min(in.Indicators.ConsumerSentiment/100, maxSentimentFactor)
	}

	var segments []Segment
	for _, g := range market.Genders {
		for _, ag := range market.AgeGroups {
			population := pop.Get(g, ag)
			adoption := connectors.SmartphoneAdoption[ag]
			upgrade := connectors.UpgradeRate[ag]
			income := connectors.IncomeIndex[ag]

			engagement := connectors.SocialMediaUsage[ag]
			if in.Signals != nil && in.Signals.Available() {
				engagement = 0.7*engagement + 0.3*in.Signals.Index
			}
			influence := income / connectors.MaxIncomeIndex * sentiment

			switch g {
			case market.Male:
				engagement += 0.03
			case market.Female:
				influence += 0.02
			}

			budget := income * 1000
			s := Segment{
				Name:              segmentName(g, ag),
				Kind:              KindDemographic,
				Gender:            g,
				AgeGroup:          ag,
				Population:        population,
				MarketSize:        population * adoption * upgrade * brandShare,
				Engagement:        market.Clip01(engagement),
				PurchaseInfluence: market.Clip01(influence),
				PriceFit:          PriceFit(in.TargetPrice, budget),
				Budget:            budget,
				Characteristics: map[string]string{
					"smartphone_adoption": fmt.Sprintf("%.0f%%", adoption*100),
					"upgrade_rate":        fmt.Sprintf("%.0f%%", upgrade*100),
					"social_media_usage":  fmt.Sprintf("%.0f%%", connectors.SocialMediaUsage[ag]*100),
					"income_index":        fmt.Sprintf("%.2f", income),
				},
				Channels:    append([]string(nil), ageProfiles[ag].channels...),
				Messaging:   ageProfiles[ag].messaging,
				DataSources: []string{string(popSource)},
			}
			if in.Indicators != nil {
				for _, src := range in.Indicators.Sources {
					s.DataSources = addSource(s.DataSources, src)
				}
			}
			if in.Signals != nil && in.Signals.Available() {
				s.DataSources = addSource(s.DataSources, "signals")
			}
			segments = append(segments, s)
		}
	}
	return withShares(segments), nil
}

func segmentName(g market.Gender, ag market.AgeGroup) string {
	return fmt.Sprintf("%s %s", g, ag)
}

// AddressableUsers sums the market sizes of demographic segments, or of the
// fallback population when there are none
func AddressableUsers(demographic []Segment, brandShare float64) float64 {
	var total float64
	for _, s := range demographic {
		if s.Kind == KindDemographic {
			total += s.MarketSize
		}
	}
	if total > 0 {
		return total
	}
	if brandShare <= 0 {
		brandShare = config.DefaultBrandShare
	}
	pop := connectors.FallbackPopulation()
	for _, ag := range market.AgeGroups {
		total += pop.AgeTotal(ag) * connectors.SmartphoneAdoption[ag] * connectors.UpgradeRate[ag] * brandShare
	}
	return total
}
