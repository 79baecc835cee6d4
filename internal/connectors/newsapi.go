package connectors

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// DefaultNewsAPIURL is the NewsAPI root
const DefaultNewsAPIURL = "https://newsapi.org/v2"

// NewsAPI reads article counts
type NewsAPI struct {
	client  *Client
	BaseURL string
}

// NewNewsAPI returns a NewsAPI connector
func NewNewsAPI(c *Client) *NewsAPI {
	return &NewsAPI{client: c, BaseURL: c.BaseURL(string(keys.NewsAPI), DefaultNewsAPIURL)}
}

type newsResponse struct {
	Status       string `json:"status"`
	TotalResults int64  `json:"totalResults"`
}

// ArticleCount returns the number of articles mentioning query
func (n *NewsAPI) ArticleCount(ctx context.Context, query string) (float64, error) {
	req := Request{
		Service: keys.NewsAPI,
		URL:     n.BaseURL + "/everything",
		Query: url.Values{
			"q":        {query},
			"language": {"en"},
			"pageSize": {"1"},
		},
		Key:        KeyHeader,
		KeyParam:   "X-Api-Key",
		ParseError: parseNewsAPIError,
	}

	var resp newsResponse
	if err := n.client.GetJSON(ctx, req, &resp); err != nil {
		return 0, err
	}
	return float64(resp.TotalResults), nil
}

// Probe fetches one US top headline with the given key
func (n *NewsAPI) Probe(ctx context.Context, key string) error {
	req := Request{
		Service:    keys.NewsAPI,
		URL:        n.BaseURL + "/top-headlines",
		Query:      url.Values{"country": {"us"}, "pageSize": {"1"}},
		Key:        KeyHeader,
		KeyParam:   "X-Api-Key",
		FixedKey:   key,
		ParseError: parseNewsAPIError,
	}
	return n.client.GetJSON(ctx, req, nil)
}

// parseNewsAPIError reads {"status":"error","code":"apiKeyInvalid","message":"..."}
func parseNewsAPIError(status int, body []byte) *APIError {
	var e struct {
		Status  string `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		if status >= 400 {
			return &APIError{Message: snippet(body)}
		}
		return nil
	}
	if e.Status != "error" && status < 400 {
		return nil
	}

	apiErr := &APIError{Code: e.Code, Message: e.Message}
	switch e.Code {
	case "apiKeyDisabled", "apiKeyInvalid", "apiKeyMissing":
		apiErr.Kind = KindUnauthorized
	case "apiKeyExhausted", "maximumResultsReached":
		apiErr.Kind = KindQuotaExceeded
	case "rateLimited":
		apiErr.Kind = KindRateLimited
	case "parameterInvalid", "parametersMissing", "parametersIncompatible", "sourcesTooMany", "sourceDoesNotExist":
		apiErr.Kind = KindBadRequest
	case "unexpectedError":
		apiErr.Kind = KindServer
	}
	return apiErr
}
