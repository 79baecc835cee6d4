package segmentation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/chrissnell/launchplanner/internal/market"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const maxIterations = 100

// A centroid must sit this many standard deviations above the mean on its
// strongest feature to earn that feature's label
const labelThreshold = 0.25

// ClusterFeatures names the columns of the clustering matrix
var ClusterFeatures = []string{"age", "income", "tech_affinity", "price_sensitivity", "brand_loyalty", "social_activity"}

var featureLabels = map[string]string{
	"tech_affinity":     "Tech Enthusiasts",
	"price_sensitivity": "Value Seekers",
	"brand_loyalty":     "Brand Loyalists",
	"social_activity":   "Content Creators",
	"income":            "Business Professionals",
}

const mainstreamLabel = "Mainstream Users"

// ClusterResult is the outcome of k-means over a customer set
type ClusterResult struct {
	K           int         `json:"k"`
	Features    []string    `json:"features"`
	Centroids   [][]float64 `json:"centroids"`
	Standard    [][]float64 `json:"standardized_centroids"`
	Assignments []int       `json:"assignments"`
	Sizes       []int       `json:"sizes"`
	Labels      []string    `json:"labels"`
	Inertia     float64     `json:"inertia"`
	Iterations  int         `json:"iterations"`
}

func customerMatrix(customers []Customer) *mat.Dense {
	m := mat.NewDense(len(customers), len(ClusterFeatures), nil)
	for i, c := range customers {
		m.SetRow(i, []float64{
			float64(c.Age), c.Income, c.TechAffinity, c.PriceSensitivity, c.BrandLoyalty, c.SocialActivity,
		})
	}
	return m
}

// standardize rescales every column to zero mean and unit deviation and
// returns the column means and deviations
func standardize(m *mat.Dense) (*mat.Dense, []float64, []float64) {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	means := make([]float64, cols)
	stds := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		means[j], stds[j] = stat.MeanStdDev(col, nil)
		if stds[j] == 0 || math.IsNaN(stds[j]) {
			stds[j] = 1
		}
		for i := 0; i < rows; i++ {
			out.Set(i, j, (col[i]-means[j])/stds[j])
		}
	}
	return out, means, stds
}

// Cluster groups customers with k-means over standardised features,
// seeding centroids with k-means++
func Cluster(customers []Customer, k int, seed uint64) (*ClusterResult, error) {
	if k <= 0 {
		return nil, errors.New("cluster count must be positive")
	}
	if k > len(customers) {
		return nil, fmt.Errorf("cannot form %d clusters from %d customers", k, len(customers))
	}

	data, means, stds := standardize(customerMatrix(customers))
	n, dims := data.Dims()
	r := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))

	centroids := seedCentroids(data, k, r)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}

	var iter int
	for iter = 1; iter <= maxIterations; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best, _ := nearest(data.RawRowView(i), centroids)
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i := 0; i < n; i++ {
			floats.Add(sums[assign[i]], data.RawRowView(i))
			counts[assign[i]]++
		}
		for c := range centroids {
			// An empty cluster keeps its previous centroid
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}
	}
	if iter > maxIterations {
		iter = maxIterations
	}

	res := &ClusterResult{
		K:           k,
		Features:    append([]string(nil), ClusterFeatures...),
		Assignments: assign,
		Sizes:       make([]int, k),
		Iterations:  iter,
	}
	for i := 0; i < n; i++ {
		res.Sizes[assign[i]]++
		d := floats.Distance(data.RawRowView(i), centroids[assign[i]], 2)
		res.Inertia += d * d
	}
	for _, c := range centroids {
		orig := make([]float64, dims)
		for j := range c {
			orig[j] = c[j]*stds[j] + means[j]
		}
		res.Standard = append(res.Standard, c)
		res.Centroids = append(res.Centroids, orig)
		res.Labels = append(res.Labels, labelCentroid(c))
	}
	return res, nil
}

// seedCentroids picks k starting centroids with k-means++: each one is drawn
// with probability proportional to its squared distance from the nearest
// centroid already chosen
func seedCentroids(data *mat.Dense, k int, r *rand.Rand) [][]float64 {
	n, _ := data.Dims()
	centroids := [][]float64{copyRow(data, r.IntN(n))}
	dist := make([]float64, n)
	for len(centroids) < k {
		for i := 0; i < n; i++ {
			_, d := nearest(data.RawRowView(i), centroids)
			dist[i] = d * d
		}
		total := floats.Sum(dist)
		next := r.IntN(n)
		if total > 0 {
			x := r.Float64() * total
			for i, d := range dist {
				if x < d {
					next = i
					break
				}
				x -= d
			}
		}
		centroids = append(centroids, copyRow(data, next))
	}
	return centroids
}

func nearest(p []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(p, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func copyRow(m *mat.Dense, i int) []float64 {
	return append([]float64(nil), m.RawRowView(i)...)
}

func labelCentroid(standard []float64) string {
	label, best := mainstreamLabel, labelThreshold
	for j, name := range ClusterFeatures {
		l, ok := featureLabels[name]
		if !ok {
			continue
		}
		if standard[j] > best {
			label, best = l, standard[j]
		}
	}
	return label
}

// ClusterSegments turns clusters into segments sized against the
// addressable market
func ClusterSegments(customers []Customer, res *ClusterResult, addressable, targetPrice float64) []Segment {
	if res == nil || len(customers) == 0 {
		return nil
	}

	type acc struct {
		income, tech, price, loyalty, social, age float64
	}
	sums := make([]acc, res.K)
	for i, c := range customers {
		a := &sums[res.Assignments[i]]
		a.income += c.Income
		a.tech += c.TechAffinity
		a.price += c.PriceSensitivity
		a.loyalty += c.BrandLoyalty
		a.social += c.SocialActivity
		a.age += float64(c.Age)
	}

	var segments []Segment
	for c := 0; c < res.K; c++ {
		size := res.Sizes[c]
		if size == 0 {
			continue
		}
		f := 1 / float64(size)
		a := sums[c]
		share := float64(size) / float64(len(customers))
		meanIncome := a.income * f
		budget := 1000 * meanIncome / medianIncome * (1.2 - 0.4*a.price*f)

		ag, _ := market.AgeGroupOf(int(math.Round(a.age * f)))
		segments = append(segments, Segment{
			Name:              fmt.Sprintf("%s (cluster %d)", res.Labels[c], c+1),
			Kind:              KindCluster,
			AgeGroup:          ag,
			Population:        addressable * share,
			MarketSize:        addressable * share,
			Share:             share,
			Engagement:        market.Clip01(0.5*a.social*f + 0.5*a.tech*f),
			PurchaseInfluence: market.Clip01(0.5*a.loyalty*f + 0.5*math.Min(meanIncome/100_000, 1)),
			PriceFit:          PriceFit(targetPrice, budget),
			Budget:            budget,
			Characteristics: map[string]string{
				"customers":         fmt.Sprint(size),
				"mean_age":          fmt.Sprintf("%.1f", a.age*f),
				"mean_income":       fmt.Sprintf("$%.0f", meanIncome),
				"tech_affinity":     fmt.Sprintf("%.2f", a.tech*f),
				"price_sensitivity": fmt.Sprintf("%.2f", a.price*f),
				"brand_loyalty":     fmt.Sprintf("%.2f", a.loyalty*f),
				"social_activity":   fmt.Sprintf("%.2f", a.social*f),
			},
			Channels:    append([]string(nil), clusterChannels[res.Labels[c]]...),
			Messaging:   clusterMessaging[res.Labels[c]],
			DataSources: []string{string(market.SourceSynthetic)},
		})
	}
	return segments
}

var clusterChannels = map[string][]string{
	"Tech Enthusiasts":       {"YouTube reviews", "Reddit", "Tech press"},
	"Value Seekers":          {"Search", "Deal sites", "Carrier promotions"},
	"Brand Loyalists":        {"Samsung Members", "Email", "Samsung.com"},
	"Content Creators":       {"Instagram", "TikTok", "YouTube"},
	"Business Professionals": {"LinkedIn", "B2B resellers", "Email"},
	mainstreamLabel:          {"Television", "Carrier stores", "Search"},
}

var clusterMessaging = map[string]string{
	"Tech Enthusiasts":       "The most advanced Galaxy yet",
	"Value Seekers":          "Flagship features at a price that makes sense",
	"Brand Loyalists":        "Upgrade within the Galaxy you already know",
	"Content Creators":       "Shoot, edit and share in pro quality",
	"Business Professionals": "Secure productivity wherever work happens",
	mainstreamLabel:          "A dependable phone that does everything well",
}
