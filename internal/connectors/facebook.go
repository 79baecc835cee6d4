package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// Graph API roots
const (
	DefaultFacebookURL  = "https://graph.facebook.com/v18.0"
	DefaultInstagramURL = "https://graph.instagram.com"
)

// Facebook reads the Graph API
type Facebook struct {
	client  *Client
	BaseURL string
}

// NewFacebook returns a Facebook connector
func NewFacebook(c *Client) *Facebook {
	return &Facebook{client: c, BaseURL: c.BaseURL(string(keys.Facebook), DefaultFacebookURL)}
}

// Interest is an ad-targeting interest with its audience estimate
type Interest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	AudienceLow  int64    `json:"audience_size_lower_bound"`
	AudienceHigh int64    `json:"audience_size_upper_bound"`
	Path         []string `json:"path"`
	Topic        string   `json:"topic"`
}

// Audience is the midpoint of the audience bounds
func (i Interest) Audience() float64 {
	if i.AudienceHigh == 0 {
		return float64(i.AudienceLow)
	}
	return float64(i.AudienceLow+i.AudienceHigh) / 2
}

// Interests searches ad interests matching query
func (f *Facebook) Interests(ctx context.Context, query string) ([]Interest, error) {
	req := Request{
		Service: keys.Facebook,
		URL:     f.BaseURL + "/search",
		Query: url.Values{
			"type":  {"adinterest"},
			"q":     {query},
			"limit": {"25"},
		},
		Key:        KeyQuery,
		KeyParam:   "access_token",
		ParseError: parseGraphError,
	}

	var resp struct {
		Data []Interest `json:"data"`
	}
	if err := f.client.GetJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// AudienceSize returns the largest audience among interests matching query
func (f *Facebook) AudienceSize(ctx context.Context, query string) (float64, error) {
	interests, err := f.Interests(ctx, query)
	if err != nil {
		return 0, err
	}
	var best float64
	for _, i := range interests {
		if a := i.Audience(); a > best {
			best = a
		}
	}
	return best, nil
}

// Probe calls /me with the given token
func (f *Facebook) Probe(ctx context.Context, key string) error {
	return graphMe(ctx, f.client, keys.Facebook, f.BaseURL, key)
}

// Instagram reads the Instagram Graph API
type Instagram struct {
	client  *Client
	BaseURL string
}

// NewInstagram returns an Instagram connector
func NewInstagram(c *Client) *Instagram {
	return &Instagram{client: c, BaseURL: c.BaseURL(string(keys.Instagram), DefaultInstagramURL)}
}

// Probe calls /me with the given token
func (i *Instagram) Probe(ctx context.Context, key string) error {
	return graphMe(ctx, i.client, keys.Instagram, i.BaseURL, key)
}

func graphMe(ctx context.Context, c *Client, s keys.Service, baseURL, key string) error {
	req := Request{
		Service:    s,
		URL:        baseURL + "/me",
		Query:      url.Values{"fields": {"id,name"}},
		Key:        KeyQuery,
		KeyParam:   "access_token",
		FixedKey:   key,
		ParseError: parseGraphError,
	}
	if s == keys.Instagram {
		req.Query.Set("fields", "id,username")
	}
	return c.GetJSON(ctx, req, nil)
}

// parseGraphError reads {"error":{"message","type","code","error_subcode"}}
func parseGraphError(status int, body []byte) *APIError {
	var e struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
			Subcode int    `json:"error_subcode"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == nil {
		if status >= 400 {
			return &APIError{Message: snippet(body)}
		}
		return nil
	}

	apiErr := &APIError{Code: strconv.Itoa(e.Error.Code), Message: e.Error.Message}
	switch code := e.Error.Code; {
	case code == 4 || code == 17 || code == 32 || code == 613:
		apiErr.Kind = KindRateLimited
	case code == 190 || code == 102 || code == 10 || (code >= 200 && code <= 299):
		apiErr.Kind = KindUnauthorized
	case code == 100:
		apiErr.Kind = KindBadRequest
	case code == 1 || code == 2:
		apiErr.Kind = KindServer
	case strings.EqualFold(e.Error.Type, "OAuthException"):
		apiErr.Kind = KindUnauthorized
	}
	return apiErr
}
