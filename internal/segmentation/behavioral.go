package segmentation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/chrissnell/launchplanner/internal/market"
)

// Profile describes a behavioral segment
type Profile struct {
	Name       string
	BaseShare  float64
	MinPrice   float64
	MaxPrice   float64
	Keywords   []string
	Engagement float64
	Influence  float64
	Channels   []string
	Messaging  string
}

// Profiles are the behavioral segments, their base shares summing to 1
var Profiles = []Profile{
	{
		Name:       "Tech Enthusiasts",
		BaseShare:  0.15,
		MinPrice:   900,
		MaxPrice:   2000,
		Keywords:   []string{"ultra", "foldable", "fold", "flagship", "5g", "pro"},
		Engagement: 0.85,
		Influence:  0.80,
		Channels:   []string{"YouTube reviews", "Reddit", "Tech press", "Launch events"},
		Messaging:  "First to the newest hardware: foldables, 200MP cameras and on-device AI",
	},
	{
		Name:       "Value Seekers",
		BaseShare:  0.30,
		MinPrice:   150,
		MaxPrice:   500,
		Keywords:   []string{"budget", "refurbished", "unlocked", "deal", "galaxy a"},
		Engagement: 0.55,
		Influence:  0.60,
		Channels:   []string{"Search", "Deal sites", "Carrier promotions", "Retail"},
		Messaging:  "Premium features without the premium price, plus trade-in credit",
	},
	{
		Name:       "Brand Loyalists",
		BaseShare:  0.20,
		MinPrice:   600,
		MaxPrice:   1200,
		Keywords:   []string{"samsung", "galaxy"},
		Engagement: 0.70,
		Influence:  0.75,
		Channels:   []string{"Samsung Members", "Email", "Samsung.com", "Carrier stores"},
		Messaging:  "Everything you love about Galaxy, now better, with loyalty upgrade offers",
	},
	{
		Name:       "Business Professionals",
		BaseShare:  0.12,
		MinPrice:   700,
		MaxPrice:   1500,
		Keywords:   []string{"business", "enterprise", "stylus", "security", "dual sim"},
		Engagement: 0.60,
		Influence:  0.85,
		Channels:   []string{"LinkedIn", "B2B resellers", "Industry events", "Email"},
		Messaging:  "Secure by design with Knox, S Pen productivity and DeX",
	},
	{
		Name:       "Content Creators",
		BaseShare:  0.13,
		MinPrice:   500,
		MaxPrice:   1300,
		Keywords:   []string{"camera", "video", "storage", "zoom"},
		Engagement: 0.90,
		Influence:  0.70,
		Channels:   []string{"Instagram", "TikTok", "YouTube", "Creator partnerships"},
		Messaging:  "Pro-grade video, zoom and storage for everything you shoot",
	},
	{
		Name:       "Mobile Gamers",
		BaseShare:  0.10,
		MinPrice:   400,
		MaxPrice:   1100,
		Keywords:   []string{"gaming", "battery", "display", "refresh"},
		Engagement: 0.88,
		Influence:  0.65,
		Channels:   []string{"Twitch", "Discord", "YouTube Gaming", "Esports sponsorships"},
		Messaging:  "High refresh display, vapor cooling and a battery that outlasts the session",
	},
}

// BehavioralInput carries the product listings and market figures for the
// behavioral model
type BehavioralInput struct {
	Products      []market.Product
	ProductSource market.DataSource
	Addressable   float64
	TargetPrice   float64
	Signals       *market.Signals
	Strict        bool
}

// Matches reports whether a product belongs to the profile's market: its
// price is in range, one of its features equals a keyword, or its title
// contains a keyword as whole words
func (p Profile) Matches(prod market.Product) bool {
	if p.inRange(prod.Price) {
		return true
	}
	words := titleWords(prod.Title)
	for _, kw := range p.Keywords {
		if containsPhrase(words, strings.Fields(strings.ToLower(kw))) {
			return true
		}
		for _, f := range prod.Features {
			if strings.EqualFold(f, kw) {
				return true
			}
		}
	}
	return false
}

// titleWords splits a title into lower-case words on anything that is not a
// letter or digit
func titleWords(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether phrase appears as consecutive words
func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		ok := true
		for j, kw := range phrase {
			if !wordMatches(words[i+j], kw) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// wordMatches compares one title word with one keyword. A trailing model
// number is allowed, so "fold6" matches "fold" and "a15" matches "a".
func wordMatches(word, kw string) bool {
	if !strings.HasPrefix(word, kw) {
		return false
	}
	for _, r := range word[len(kw):] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (p Profile) inRange(price float64) bool {
	return price >= p.MinPrice && price <= p.MaxPrice
}

// BehavioralSegments sizes each profile by how much of the product market
// fits it
func BehavioralSegments(in BehavioralInput) ([]Segment, error) {
	if len(in.Products) == 0 && in.Strict {
		return nil, fmt.Errorf("cannot create segment %q without real API data: %w", Profiles[0].Name, ErrNoLiveData)
	}

	source := in.ProductSource
	if len(in.Products) == 0 {
		source = market.SourceFallback
	}

	var totalBase, weighted float64
	fits := make([]float64, len(Profiles))
	matches := make([]int, len(Profiles))
	for i, p := range Profiles {
		totalBase += p.BaseShare
		if len(in.Products) > 0 {
			for _, prod := range in.Products {
				if p.Matches(prod) {
					matches[i]++
				}
			}
			fits[i] = float64(matches[i]) / float64(len(in.Products))
		}
		weighted += p.BaseShare * (0.5 + fits[i])
	}

	segments := make([]Segment, 0, len(Profiles))
	for i, p := range Profiles {
		share := p.BaseShare * (0.5 + fits[i])
		if weighted > 0 {
			share = share / weighted * totalBase
		}

		var prices []float64
		for _, prod := range in.Products {
			if p.inRange(prod.Price) {
				prices = append(prices, prod.Price)
			}
		}
		budget := market.Median(prices)
		if budget == 0 {
			budget = (p.MinPrice + p.MaxPrice) / 2
		}

		engagement := p.Engagement
		if in.Signals != nil && in.Signals.Available() {
			engagement = 0.7*engagement + 0.3*in.Signals.Index
		}

		s := Segment{
			Name:              p.Name,
			Kind:              KindBehavioral,
			Population:        in.Addressable * share,
			MarketSize:        in.Addressable * share,
			Share:             share,
			Engagement:        market.Clip01(engagement),
			PurchaseInfluence: p.Influence,
			PriceFit:          PriceFit(in.TargetPrice, budget),
			Budget:            budget,
			Characteristics: map[string]string{
				"price_range":      fmt.Sprintf("$%.0f-$%.0f", p.MinPrice, p.MaxPrice),
				"product_fit":      fmt.Sprintf("%.0f%%", fits[i]*100),
				"matched_products": fmt.Sprint(matches[i]),
				"keywords":         strings.Join(p.Keywords, ", "),
			},
			Channels:    append([]string(nil), p.Channels...),
			Messaging:   p.Messaging,
			DataSources: []string{string(source)},
		}
		if in.Signals != nil && in.Signals.Available() {
			s.DataSources = addSource(s.DataSources, "signals")
		}
		segments = append(segments, s)
	}
	return segments, nil
}
