package connectors

import "github.com/chrissnell/launchplanner/internal/market"

// Fallback tables used when a live call fails and strict mode is off.
// Population figures are the US 2022 ACS 5-year B01001 totals; the rate
// tables are industry survey averages by age group.

// FallbackUSPopulation is the total US resident population in 2022
const FallbackUSPopulation = 333287557

// FallbackPopulation returns the US adult population by gender and age group
func FallbackPopulation() market.PopulationTable {
	p := market.PopulationTable{}
	for g, byAge := range fallbackPopulation {
		for ag, n := range byAge {
			p.Add(g, ag, n)
		}
	}
	return p
}

var fallbackPopulation = map[market.Gender]map[market.AgeGroup]float64{
	market.Male: {
		market.Age18to24: 15_612_000,
		market.Age25to34: 22_934_000,
		market.Age35to44: 21_318_000,
		market.Age45to54: 20_215_000,
		market.Age55to64: 20_624_000,
		market.Age65Plus: 24_914_000,
	},
	market.Female: {
		market.Age18to24: 14_938_000,
		market.Age25to34: 22_307_000,
		market.Age35to44: 21_327_000,
		market.Age45to54: 20_619_000,
		market.Age55to64: 21_788_000,
		market.Age65Plus: 30_468_000,
	},
}

// SmartphoneAdoption is the share of each age group owning a smartphone
var SmartphoneAdoption = map[market.AgeGroup]float64{
	market.Age18to24: 0.96,
	market.Age25to34: 0.95,
	market.Age35to44: 0.94,
	market.Age45to54: 0.89,
	market.Age55to64: 0.83,
	market.Age65Plus: 0.61,
}

// UpgradeRate is the share of owners replacing their phone each year
var UpgradeRate = map[market.AgeGroup]float64{
	market.Age18to24: 0.45,
	market.Age25to34: 0.42,
	market.Age35to44: 0.38,
	market.Age45to54: 0.33,
	market.Age55to64: 0.28,
	market.Age65Plus: 0.22,
}

// SocialMediaUsage is the share of each age group active on social media
var SocialMediaUsage = map[market.AgeGroup]float64{
	market.Age18to24: 0.84,
	market.Age25to34: 0.81,
	market.Age35to44: 0.73,
	market.Age45to54: 0.70,
	market.Age55to64: 0.59,
	market.Age65Plus: 0.45,
}

// IncomeIndex is household income relative to the national median
var IncomeIndex = map[market.AgeGroup]float64{
	market.Age18to24: 0.55,
	market.Age25to34: 0.90,
	market.Age35to44: 1.10,
	market.Age45to54: 1.15,
	market.Age55to64: 1.00,
	market.Age65Plus: 0.75,
}

// MaxIncomeIndex is the largest value in IncomeIndex
const MaxIncomeIndex = 1.15

// Indicator fallbacks, keyed by the Indicators field they fill
var fallbackIndicators = map[string]float64{
	"population":         FallbackUSPopulation,
	"gdp_per_capita":     76_330,
	"internet_users_pct": 91.8,
	"working_age_pct":    64.9,
	"consumer_sentiment": 69.7,
	"disposable_income":  17_150,
	"saving_rate":        4.1,
}
