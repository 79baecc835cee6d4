package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// Reddit API roots. Tokens come from the www host, searches go to oauth.
const (
	DefaultRedditAuthURL = "https://www.reddit.com"
	DefaultRedditURL     = "https://oauth.reddit.com"
)

// redditSearchLimit is the most results one search returns
const redditSearchLimit = 100

type redditToken struct {
	value   string
	expires time.Time
}

// Reddit searches posts using application-only OAuth. Keys are
// "client_id:client_secret" pairs.
type Reddit struct {
	client  *Client
	AuthURL string
	BaseURL string

	mu     sync.Mutex
	tokens map[string]redditToken
	now    func() time.Time
}

// NewReddit returns a Reddit connector
func NewReddit(c *Client) *Reddit {
	return &Reddit{
		client:  c,
		AuthURL: c.BaseURL(string(keys.Reddit), DefaultRedditAuthURL),
		BaseURL: c.BaseURL("reddit_oauth", DefaultRedditURL),
		tokens:  make(map[string]redditToken),
		now:     time.Now,
	}
}

// Token exchanges credentials for an access token. An empty credential
// takes the next key from the key provider. Tokens are reused until shortly
// before they expire.
func (r *Reddit) Token(ctx context.Context, credential string) (string, error) {
	r.mu.Lock()
	tok, ok := r.tokens[credential]
	r.mu.Unlock()
	if ok && r.now().Before(tok.expires) {
		return tok.value, nil
	}

	req := Request{
		Service:    keys.Reddit,
		Method:     http.MethodPost,
		URL:        r.AuthURL + "/api/v1/access_token",
		Form:       url.Values{"grant_type": {"client_credentials"}},
		Key:        KeyBasic,
		FixedKey:   credential,
		ParseError: parseRedditError,
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := r.client.GetJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &APIError{Service: keys.Reddit, Kind: KindUnauthorized, Message: "no access token in response"}
	}

	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = time.Minute
	}
	r.mu.Lock()
	r.tokens[credential] = redditToken{value: resp.AccessToken, expires: r.now().Add(ttl - 30*time.Second)}
	r.mu.Unlock()
	return resp.AccessToken, nil
}

// MentionCount returns the number of recent posts matching query, at most 100
func (r *Reddit) MentionCount(ctx context.Context, query string) (float64, error) {
	token, err := r.Token(ctx, "")
	if err != nil {
		return 0, err
	}

	req := Request{
		Service: keys.Reddit,
		URL:     r.BaseURL + "/search",
		Query: url.Values{
			"q":     {query},
			"limit": {"100"},
			"sort":  {"new"},
			"t":     {"month"},
			"type":  {"link"},
		},
		Key:        KeyBearer,
		FixedKey:   token,
		ParseError: parseRedditError,
	}

	var resp struct {
		Data struct {
			Dist     int               `json:"dist"`
			Children []json.RawMessage `json:"children"`
		} `json:"data"`
	}
	if err := r.client.GetJSON(ctx, req, &resp); err != nil {
		return 0, err
	}

	n := len(resp.Data.Children)
	if n > redditSearchLimit {
		n = redditSearchLimit
	}
	return float64(n), nil
}

// Probe obtains a fresh token with the given credential
func (r *Reddit) Probe(ctx context.Context, key string) error {
	r.mu.Lock()
	delete(r.tokens, key)
	r.mu.Unlock()
	_, err := r.Token(ctx, key)
	return err
}

// parseRedditError reads {"error": "invalid_grant"} token failures and the
// {"message": "Unauthorized", "error": 401} form
func parseRedditError(status int, body []byte) *APIError {
	var e struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == nil {
		if status >= 400 {
			return &APIError{Message: snippet(body)}
		}
		return nil
	}

	apiErr := &APIError{Message: e.Message}
	switch v := e.Error.(type) {
	case string:
		apiErr.Code = v
		if apiErr.Message == "" {
			apiErr.Message = v
		}
		if v == "invalid_grant" || v == "unauthorized_client" || v == "invalid_client" {
			apiErr.Kind = KindUnauthorized
		}
	case float64:
		apiErr.Code = strconv.Itoa(int(v))
	}
	return apiErr
}
