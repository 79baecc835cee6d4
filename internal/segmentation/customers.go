package segmentation

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/market"
)

const (
	minCustomerAge = 18
	maxCustomerAge = 80
	medianIncome   = 55_000.0
	incomeSigma    = 0.5
)

// Customer is a synthetic prospective buyer
type Customer struct {
	ID               string        `json:"id"`
	Age              int           `json:"age"`
	Gender           market.Gender `json:"gender"`
	Income           float64       `json:"income"`
	TechAffinity     float64       `json:"tech_affinity"`
	PriceSensitivity float64       `json:"price_sensitivity"`
	BrandLoyalty     float64       `json:"brand_loyalty"`
	SocialActivity   float64       `json:"social_activity"`
}

// GenerateCustomers draws n customers from the fallback US population
func GenerateCustomers(n int, seed uint64) []Customer {
	return GenerateCustomersFrom(connectors.FallbackPopulation(), n, seed)
}

// GenerateCustomersFrom draws n customers whose ages and genders follow pop.
// The same seed always yields the same customers.
func GenerateCustomersFrom(pop market.PopulationTable, n int, seed uint64) []Customer {
	if n <= 0 {
		return nil
	}
	if pop.Total() <= 0 {
		pop = connectors.FallbackPopulation()
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	type cell struct {
		g      market.Gender
		ag     market.AgeGroup
		cumSum float64
	}
	var (
		cells []cell
		total float64
	)
	for _, g := range market.Genders {
		for _, ag := range market.AgeGroups {
			total += pop.Get(g, ag)
			cells = append(cells, cell{g: g, ag: ag, cumSum: total})
		}
	}

	customers := make([]Customer, n)
	for i := range customers {
		x := r.Float64() * total
		c := cells[len(cells)-1]
		for _, candidate := range cells {
			if x < candidate.cumSum {
				c = candidate
				break
			}
		}

		lo, hi := ageBounds(c.ag)
		age := lo + r.IntN(hi-lo+1)
		youth := 1 - float64(age-minCustomerAge)/float64(maxCustomerAge-minCustomerAge)

		income := medianIncome * connectors.IncomeIndex[c.ag] * math.Exp(incomeSigma*r.NormFloat64())
		income = math.Round(income)

		customers[i] = Customer{
			ID:               fmt.Sprintf("C%05d", i+1),
			Age:              age,
			Gender:           c.g,
			Income:           income,
			TechAffinity:     market.Clip01(0.25 + 0.6*youth + 0.15*r.NormFloat64()),
			PriceSensitivity: market.Clip01(0.8 - 0.5*math.Min(income/150_000, 1) + 0.1*r.NormFloat64()),
			BrandLoyalty:     market.Clip01(0.7 - 0.4*youth + 0.15*r.NormFloat64()),
			SocialActivity:   market.Clip01(connectors.SocialMediaUsage[c.ag] + 0.12*r.NormFloat64()),
		}
	}
	return customers
}

func ageBounds(ag market.AgeGroup) (int, int) {
	switch ag {
	case market.Age18to24:
		return 18, 24
	case market.Age25to34:
		return 25, 34
	case market.Age35to44:
		return 35, 44
	case market.Age45to54:
		return 45, 54
	case market.Age55to64:
		return 55, 64
	}
	return 65, maxCustomerAge
}
