// Package market holds the data types shared by the connectors that fetch
// market data and the segmentation code that consumes it.
package market

import (
	"sort"
	"time"
)

// AgeGroup is an adult age bucket
type AgeGroup string

const (
	Age18to24 AgeGroup = "18-24"
	Age25to34 AgeGroup = "25-34"
	Age35to44 AgeGroup = "35-44"
	Age45to54 AgeGroup = "45-54"
	Age55to64 AgeGroup = "55-64"
	Age65Plus AgeGroup = "65+"
)

// AgeGroups lists every age group from youngest to oldest
var AgeGroups = []AgeGroup{Age18to24, Age25to34, Age35to44, Age45to54, Age55to64, Age65Plus}

// AgeGroupOf returns the bucket for an age. Ages under 18 have no bucket.
func AgeGroupOf(age int) (AgeGroup, bool) {
	switch {
	case age < 18:
		return "", false
	case age <= 24:
		return Age18to24, true
	case age <= 34:
		return Age25to34, true
	case age <= 44:
		return Age35to44, true
	case age <= 54:
		return Age45to54, true
	case age <= 64:
		return Age55to64, true
	default:
		return Age65Plus, true
	}
}

// Gender as reported by the census tables
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
)

// Genders lists both genders in display order
var Genders = []Gender{Male, Female}

// DataSource names where a figure came from
type DataSource string

const (
	SourceCensus     DataSource = "census"
	SourceWorldBank  DataSource = "worldbank"
	SourceFRED       DataSource = "fred"
	SourceSerpAPI    DataSource = "serpapi"
	SourceFallback   DataSource = "fallback"
	SourceSynthetic  DataSource = "synthetic"
	SourceUserSupply DataSource = "request"
)

// PopulationTable holds adult population counts by gender and age group
type PopulationTable map[Gender]map[AgeGroup]float64

// Add accumulates n people into a cell
func (p PopulationTable) Add(g Gender, ag AgeGroup, n float64) {
	if p[g] == nil {
		p[g] = make(map[AgeGroup]float64)
	}
	p[g][ag] += n
}

// Get returns a cell, zero when missing
func (p PopulationTable) Get(g Gender, ag AgeGroup) float64 {
	return p[g][ag]
}

// Total sums every cell
func (p PopulationTable) Total() float64 {
	var total float64
	for _, byAge := range p {
		for _, n := range byAge {
			total += n
		}
	}
	return total
}

// AgeTotal sums both genders for an age group
func (p PopulationTable) AgeTotal(ag AgeGroup) float64 {
	var total float64
	for _, g := range Genders {
		total += p.Get(g, ag)
	}
	return total
}

// Scale returns a copy with every cell multiplied by f
func (p PopulationTable) Scale(f float64) PopulationTable {
	out := make(PopulationTable)
	for g, byAge := range p {
		for ag, n := range byAge {
			out.Add(g, ag, n*f)
		}
	}
	return out
}

// Indicators are the macro figures the segment model uses
type Indicators struct {
	Country           string       `json:"country"`
	Population        float64      `json:"population"`
	GDPPerCapita      float64      `json:"gdp_per_capita"`
	InternetUsersPct  float64      `json:"internet_users_pct"`
	WorkingAgePct     float64      `json:"working_age_pct"`
	ConsumerSentiment float64      `json:"consumer_sentiment"`
	DisposableIncome  float64      `json:"disposable_income"`
	SavingRate        float64      `json:"saving_rate"`
	Fallbacks         []string     `json:"fallbacks,omitempty"`
	Sources           []DataSource `json:"sources"`
	RetrievedAt       time.Time    `json:"retrieved_at"`
}

// Signals are social and search interest counts for a query
type Signals struct {
	Query  string             `json:"query"`
	Counts map[string]float64 `json:"counts"`
	Errors map[string]string  `json:"errors,omitempty"`
	// Index is the mean log-scaled interest over the sources that answered,
	// in [0,1]
	Index float64 `json:"index"`
}

// Available reports whether at least one source answered
func (s Signals) Available() bool {
	return len(s.Counts) > 0
}

// Product is a scraped product listing
type Product struct {
	Title    string     `json:"title"`
	Price    float64    `json:"price"`
	Rating   float64    `json:"rating,omitempty"`
	Reviews  int        `json:"reviews,omitempty"`
	Source   string     `json:"source,omitempty"`
	Features []string   `json:"features,omitempty"`
	Origin   DataSource `json:"origin,omitempty"`
}

// Median returns the median of xs without modifying it; zero for no values
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Clip01 clamps v into [0,1]
func Clip01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
