package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/internal/market"
)

// DefaultSerpAPIURL is the SerpApi root
const DefaultSerpAPIURL = "https://serpapi.com"

// SerpAPI scrapes Google Shopping listings
type SerpAPI struct {
	client  *Client
	BaseURL string
}

// NewSerpAPI returns a SerpAPI connector
func NewSerpAPI(c *Client) *SerpAPI {
	return &SerpAPI{client: c, BaseURL: c.BaseURL(string(keys.SerpAPI), DefaultSerpAPIURL)}
}

type shoppingResult struct {
	Title          string   `json:"title"`
	Price          string   `json:"price"`
	ExtractedPrice float64  `json:"extracted_price"`
	Rating         float64  `json:"rating"`
	Reviews        int      `json:"reviews"`
	Source         string   `json:"source"`
	Extensions     []string `json:"extensions"`
}

// Products returns up to limit Google Shopping listings for query. Listings
// without a price are dropped.
func (s *SerpAPI) Products(ctx context.Context, query string, limit int) ([]market.Product, error) {
	if limit <= 0 {
		limit = 40
	}
	req := Request{
		Service: keys.SerpAPI,
		URL:     s.BaseURL + "/search.json",
		Query: url.Values{
			"engine": {"google_shopping"},
			"q":      {query},
			"gl":     {"us"},
			"hl":     {"en"},
			"num":    {strconv.Itoa(limit)},
		},
		Key:        KeyQuery,
		KeyParam:   "api_key",
		ParseError: parseSerpAPIError,
	}

	var resp struct {
		ShoppingResults []shoppingResult `json:"shopping_results"`
	}
	if err := s.client.GetJSON(ctx, req, &resp); err != nil {
		return nil, err
	}

	products := make([]market.Product, 0, len(resp.ShoppingResults))
	for _, r := range resp.ShoppingResults {
		price := r.ExtractedPrice
		if price == 0 {
			price = ParsePrice(r.Price)
		}
		if price <= 0 {
			continue
		}
		products = append(products, market.Product{
			Title:    r.Title,
			Price:    price,
			Rating:   r.Rating,
			Reviews:  r.Reviews,
			Source:   r.Source,
			Features: market.ExtractFeatures(append([]string{r.Title}, r.Extensions...)...),
			Origin:   market.SourceSerpAPI,
		})
		if len(products) == limit {
			break
		}
	}
	return products, nil
}

// Account is the SerpApi account summary
type Account struct {
	Email             string `json:"account_email"`
	PlanName          string `json:"plan_name"`
	SearchesPerMonth  int    `json:"searches_per_month"`
	PlanSearchesLeft  int    `json:"plan_searches_left"`
	TotalSearchesLeft int    `json:"total_searches_left"`
	ThisMonthUsage    int    `json:"this_month_usage"`
	HourlyRateLimit   int    `json:"account_rate_limit_per_hour"`
}

// Account returns the account summary for key, which does not spend a search
func (s *SerpAPI) Account(ctx context.Context, key string) (Account, error) {
	req := Request{
		Service:    keys.SerpAPI,
		URL:        s.BaseURL + "/account.json",
		Key:        KeyQuery,
		KeyParam:   "api_key",
		FixedKey:   key,
		ParseError: parseSerpAPIError,
	}
	var acct Account
	err := s.client.GetJSON(ctx, req, &acct)
	return acct, err
}

// Probe checks the account for key and fails when no searches are left
func (s *SerpAPI) Probe(ctx context.Context, key string) error {
	acct, err := s.Account(ctx, key)
	if err != nil {
		return err
	}
	if acct.TotalSearchesLeft <= 0 && acct.SearchesPerMonth > 0 {
		return &APIError{Service: keys.SerpAPI, Kind: KindQuotaExceeded, Message: "no searches left this month"}
	}
	return nil
}

// ParsePrice reads a display price such as "$1,099.99" or "799 USD"
func ParsePrice(s string) float64 {
	var b strings.Builder
	seenDigit := false
scan:
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == '.' && seenDigit:
			b.WriteRune(r)
		case r == ',':
		case seenDigit:
			break scan
		}
	}
	v, err := strconv.ParseFloat(strings.TrimRight(b.String(), "."), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseSerpAPIError reads {"error": "..."}, which SerpApi sends with 200 or
// 4xx statuses
func parseSerpAPIError(status int, body []byte) *APIError {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		if status >= 400 {
			return &APIError{Message: snippet(body)}
		}
		return nil
	}

	apiErr := &APIError{Message: e.Error}
	lower := strings.ToLower(e.Error)
	switch {
	case strings.Contains(lower, "hasn't returned any results"):
		// An empty result set is reported as an error
		return nil
	case strings.Contains(lower, "invalid api key"), strings.Contains(lower, "api key"):
		apiErr.Kind = KindUnauthorized
	case strings.Contains(lower, "run out of searches"), strings.Contains(lower, "plan"):
		apiErr.Kind = KindQuotaExceeded
	case strings.Contains(lower, "hourly"), strings.Contains(lower, "too many"):
		apiErr.Kind = KindRateLimited
	}
	return apiErr
}
