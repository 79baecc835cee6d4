package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// DefaultBingURL is the Bing Web Search API root
const DefaultBingURL = "https://api.bing.microsoft.com/v7.0"

// Bing reads web search match estimates
type Bing struct {
	client  *Client
	BaseURL string
}

// NewBing returns a Bing connector
func NewBing(c *Client) *Bing {
	return &Bing{client: c, BaseURL: c.BaseURL(string(keys.Bing), DefaultBingURL)}
}

func (b *Bing) request(query, count, key string) Request {
	return Request{
		Service:    keys.Bing,
		URL:        b.BaseURL + "/search",
		Query:      url.Values{"q": {query}, "count": {count}, "mkt": {"en-US"}},
		Key:        KeyHeader,
		KeyParam:   "Ocp-Apim-Subscription-Key",
		FixedKey:   key,
		ParseError: parseBingError,
	}
}

// EstimatedMatches returns Bing's estimate of pages matching query
func (b *Bing) EstimatedMatches(ctx context.Context, query string) (float64, error) {
	var resp struct {
		WebPages struct {
			TotalEstimatedMatches int64 `json:"totalEstimatedMatches"`
		} `json:"webPages"`
	}
	if err := b.client.GetJSON(ctx, b.request(query, "1", ""), &resp); err != nil {
		return 0, err
	}
	return float64(resp.WebPages.TotalEstimatedMatches), nil
}

// Probe runs a one-result search with the given key
func (b *Bing) Probe(ctx context.Context, key string) error {
	return b.client.GetJSON(ctx, b.request("samsung", "1", key), nil)
}

// parseBingError reads {"error":{"code","message"}}. Quota exhaustion comes
// back as 403 "Out of call volume quota".
func parseBingError(status int, body []byte) *APIError {
	if status < 400 {
		return nil
	}
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return &APIError{Message: snippet(body)}
	}

	apiErr := &APIError{Code: e.Error.Code, Message: e.Error.Message}
	lower := strings.ToLower(e.Error.Message)
	switch {
	case strings.Contains(lower, "quota"):
		apiErr.Kind = KindQuotaExceeded
	case strings.Contains(lower, "rate limit"), status == 429:
		apiErr.Kind = KindRateLimited
	case strings.Contains(lower, "subscription key"), strings.Contains(lower, "access denied"):
		apiErr.Kind = KindUnauthorized
	}
	return apiErr
}
