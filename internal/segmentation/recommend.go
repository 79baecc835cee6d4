package segmentation

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// Recommendation is a targeting suggestion for one top segment
type Recommendation struct {
	Rank       int      `json:"rank"`
	Segment    string   `json:"segment"`
	Kind       Kind     `json:"kind"`
	Score      float64  `json:"score"`
	MarketSize float64  `json:"market_size"`
	PricePoint float64  `json:"price_point"`
	Channels   []string `json:"channels"`
	Messaging  string   `json:"messaging"`
	Rationale  string   `json:"rationale"`
}

// Recommend returns suggestions for the n best ranked segments. Segments
// must already be ranked.
func Recommend(segments []Segment, n int, targetPrice float64) []Recommendation {
	if n > len(segments) {
		n = len(segments)
	}
	recs := make([]Recommendation, 0, n)
	for _, s := range segments[:n] {
		recs = append(recs, Recommendation{
			Rank:       s.Rank,
			Segment:    s.Name,
			Kind:       s.Kind,
			Score:      s.Score,
			MarketSize: s.MarketSize,
			PricePoint: PricePoint(targetPrice, s.Budget),
			Channels:   s.Channels,
			Messaging:  s.Messaging,
			Rationale:  rationale(s),
		})
	}
	return recs
}

// PricePoint suggests a retail price: the target when the segment can
// afford it, otherwise the budget rounded down to the next $X99
func PricePoint(target, budget float64) float64 {
	if budget <= 0 || target <= budget {
		return target
	}
	p := math.Floor(budget/100)*100 - 1
	if p < 99 {
		p = 99
	}
	return p
}

func rationale(s Segment) string {
	var strengths []string
	if s.Engagement >= 0.75 {
		strengths = append(strengths, "highly engaged")
	}
	if s.PurchaseInfluence >= 0.75 {
		strengths = append(strengths, "strong purchasing power")
	}
	if s.PriceFit >= 0.99 {
		strengths = append(strengths, "target price within budget")
	} else if s.PriceFit < 0.5 {
		strengths = append(strengths, "price sensitive at the target price")
	}
	if len(strengths) == 0 {
		strengths = append(strengths, "balanced profile")
	}
	return fmt.Sprintf("%s potential buyers; %s", humanize.Comma(int64(s.MarketSize)), strings.Join(strengths, ", "))
}

// Report writes a ranked segment table followed by the recommendations
func Report(w io.Writer, segments []Segment, recs []Recommendation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSEGMENT\tKIND\tMARKET SIZE\tSHARE\tENGAGEMENT\tINFLUENCE\tPRICE FIT\tSCORE")
	for _, s := range segments {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f%%\t%.2f\t%.2f\t%.2f\t%.3f\n",
			s.Rank, s.Name, s.Kind, humanize.Comma(int64(s.MarketSize)), s.Share*100,
			s.Engagement, s.PurchaseInfluence, s.PriceFit, s.Score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(recs) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nRecommendations")
	for _, r := range recs {
		fmt.Fprintf(w, "\n%d. %s (score %.3f)\n", r.Rank, r.Segment, r.Score)
		fmt.Fprintf(w, "   Price point: $%s\n", humanize.CommafWithDigits(r.PricePoint, 2))
		fmt.Fprintf(w, "   Messaging:   %s\n", r.Messaging)
		fmt.Fprintf(w, "   Channels:    %s\n", strings.Join(r.Channels, ", "))
		if _, err := fmt.Fprintf(w, "   Why:         %s\n", r.Rationale); err != nil {
			return err
		}
	}
	return nil
}
