package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// DefaultYouTubeURL is the YouTube Data API v3 root
const DefaultYouTubeURL = "https://www.googleapis.com/youtube/v3"

// YouTube reads video search totals
type YouTube struct {
	client  *Client
	BaseURL string
}

// NewYouTube returns a YouTube connector
func NewYouTube(c *Client) *YouTube {
	return &YouTube{client: c, BaseURL: c.BaseURL(string(keys.YouTube), DefaultYouTubeURL)}
}

func (y *YouTube) searchRequest(query, key string) Request {
	return Request{
		Service: keys.YouTube,
		URL:     y.BaseURL + "/search",
		Query: url.Values{
			"part":       {"snippet"},
			"q":          {query},
			"type":       {"video"},
			"maxResults": {"1"},
		},
		Key:        KeyQuery,
		KeyParam:   "key",
		FixedKey:   key,
		ParseError: parseGoogleError,
	}
}

// SearchTotal returns the estimated number of videos matching query
func (y *YouTube) SearchTotal(ctx context.Context, query string) (float64, error) {
	var resp struct {
		PageInfo struct {
			TotalResults int64 `json:"totalResults"`
		} `json:"pageInfo"`
	}
	if err := y.client.GetJSON(ctx, y.searchRequest(query, ""), &resp); err != nil {
		return 0, err
	}
	return float64(resp.PageInfo.TotalResults), nil
}

// Probe runs a one-result search with the given key
func (y *YouTube) Probe(ctx context.Context, key string) error {
	return y.client.GetJSON(ctx, y.searchRequest("samsung", key), nil)
}

// parseGoogleError reads the Google API error envelope
// {"error":{"code":403,"message":"...","errors":[{"reason":"quotaExceeded"}]}}
func parseGoogleError(status int, body []byte) *APIError {
	if status < 400 {
		return nil
	}
	var e struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
			Details []struct {
				Reason string `json:"reason"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return &APIError{Message: snippet(body)}
	}

	reason := ""
	if len(e.Error.Errors) > 0 {
		reason = e.Error.Errors[0].Reason
	} else if len(e.Error.Details) > 0 {
		reason = e.Error.Details[0].Reason
	}

	apiErr := &APIError{Code: reason, Message: e.Error.Message}
	if apiErr.Code == "" && e.Error.Code != 0 {
		apiErr.Code = strconv.Itoa(e.Error.Code)
	}
	switch reason {
	case "keyInvalid", "API_KEY_INVALID", "accessNotConfigured", "forbidden", "ipRefererBlocked", "keyExpired":
		apiErr.Kind = KindUnauthorized
	case "quotaExceeded", "dailyLimitExceeded":
		apiErr.Kind = KindQuotaExceeded
	case "rateLimitExceeded", "userRateLimitExceeded":
		apiErr.Kind = KindRateLimited
	case "invalidParameter", "badRequest", "invalidSearchFilter":
		apiErr.Kind = KindBadRequest
	}
	return apiErr
}
