package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// DefaultTwitterURL is the Twitter (X) API v2 root
const DefaultTwitterURL = "https://api.twitter.com/2"

// Twitter reads recent tweet counts
type Twitter struct {
	client  *Client
	BaseURL string
}

// NewTwitter returns a Twitter connector
func NewTwitter(c *Client) *Twitter {
	return &Twitter{client: c, BaseURL: c.BaseURL(string(keys.Twitter), DefaultTwitterURL)}
}

// RecentCount returns the number of tweets matching query over the last
// seven days
func (t *Twitter) RecentCount(ctx context.Context, query string) (float64, error) {
	req := Request{
		Service:    keys.Twitter,
		URL:        t.BaseURL + "/tweets/counts/recent",
		Query:      url.Values{"query": {query}, "granularity": {"day"}},
		Key:        KeyBearer,
		ParseError: parseTwitterError,
	}

	var resp struct {
		Meta struct {
			TotalTweetCount int64 `json:"total_tweet_count"`
		} `json:"meta"`
	}
	if err := t.client.GetJSON(ctx, req, &resp); err != nil {
		return 0, err
	}
	return float64(resp.Meta.TotalTweetCount), nil
}

// Probe runs a minimal recent search with the given bearer token
func (t *Twitter) Probe(ctx context.Context, key string) error {
	req := Request{
		Service:    keys.Twitter,
		URL:        t.BaseURL + "/tweets/search/recent",
		Query:      url.Values{"query": {"samsung"}, "max_results": {"10"}},
		Key:        KeyBearer,
		FixedKey:   key,
		ParseError: parseTwitterError,
	}
	return t.client.GetJSON(ctx, req, nil)
}

// parseTwitterError reads the v2 problem document {"title","detail","type"}
// and the older {"errors":[{"message","code"}]} form
func parseTwitterError(status int, body []byte) *APIError {
	if status < 400 {
		return nil
	}
	var e struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Type   string `json:"type"`
		Reason string `json:"reason"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return &APIError{Message: snippet(body)}
	}

	msg := e.Detail
	if msg == "" && len(e.Errors) > 0 {
		msg = e.Errors[0].Message
	}
	if msg == "" {
		msg = e.Title
	}
	apiErr := &APIError{Code: e.Reason, Message: msg}
	if apiErr.Code == "" {
		apiErr.Code = e.Title
	}

	switch {
	case status == 429:
		apiErr.Kind = KindRateLimited
	case e.Reason == "client-not-enrolled", strings.Contains(strings.ToLower(msg), "usage cap"):
		apiErr.Kind = KindQuotaExceeded
	}
	return apiErr
}
