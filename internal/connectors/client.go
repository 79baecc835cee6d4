// Package connectors wraps the vendor HTTP APIs the launch planner reads
// market data from. Every call goes through Client, which attaches a rotated
// API key, rate limits per service, retries transient failures and caches
// successful responses.
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chrissnell/launchplanner/internal/cache"
	"github.com/chrissnell/launchplanner/internal/constants"
	"github.com/chrissnell/launchplanner/internal/controllers"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxBodySize caps how much of a vendor response is read
const maxBodySize = 8 << 20

// KeyProvider hands out API keys and receives feedback about them.
// *keys.Manager implements it.
type KeyProvider interface {
	Key(s keys.Service) (string, error)
	ReportFailure(s keys.Service, key string, cause error)
	ReportSuccess(s keys.Service, key string)
}

// KeyPlacement says where a request carries its API key
type KeyPlacement int

const (
	KeyNone KeyPlacement = iota
	// KeyQuery puts the key in the query parameter named by KeyParam
	KeyQuery
	// KeyBearer sends "Authorization: Bearer <key>"
	KeyBearer
	// KeyHeader puts the key in the header named by KeyParam
	KeyHeader
	// KeyBasic splits an "id:secret" key into HTTP basic auth
	KeyBasic
)

// Request describes one vendor API call
type Request struct {
	Service keys.Service
	Method  string
	URL     string
	Query   url.Values
	Header  http.Header
	// Form is sent as an application/x-www-form-urlencoded body
	Form url.Values

	Key      KeyPlacement
	KeyParam string
	// FixedKey bypasses the key provider. Failures are not reported.
	FixedKey string
	// OptionalKey sends the request without a key when none is configured
	OptionalKey bool
	NoCache     bool

	// ParseError inspects every response and returns a classified error
	// when the vendor reports one. Non-2xx responses it does not recognise
	// are classified by status code.
	ParseError func(status int, body []byte) *APIError
}

func (r Request) cacheable() bool {
	return !r.NoCache && r.FixedKey == "" && (r.Method == "" || r.Method == http.MethodGet)
}

func (r Request) cacheKey() string {
	return string(r.Service) + " " + r.URL + "?" + r.Query.Encode()
}

// Client is the shared HTTP base of every connector
type Client struct {
	httpClient  *http.Client
	keys        KeyProvider
	cache       cache.Cache
	cacheTTL    time.Duration
	logger      *zap.SugaredLogger
	baseURLs    map[string]string
	rates       map[string]float64
	defaultRate float64
	maxAttempts int
	interval    time.Duration
	strict      bool
	country     string
	censusYear  int

	mu       sync.Mutex
	limiters map[keys.Service]*rate.Limiter
}

// ClientOption customises a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryInterval sets the initial backoff interval
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.interval = d
	}
}

// WithCache sets the response cache and its TTL
func WithCache(ch cache.Cache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = ch
		c.cacheTTL = ttl
	}
}

// NewClient builds a Client from the connector configuration
func NewClient(cfg config.ConnectorsData, kp KeyProvider, logger *zap.SugaredLogger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &Client{
		httpClient:  controllers.NewHTTPClient(config.ParseDurationOr(cfg.Timeout, config.DefaultTimeout)),
		keys:        kp,
		cache:       cache.Nop{},
		cacheTTL:    config.DefaultCacheTTL,
		logger:      logger,
		baseURLs:    cfg.BaseURLs,
		rates:       cfg.RateLimits,
		defaultRate: cfg.RequestsPerSecond,
		maxAttempts: cfg.MaxAttempts,
		interval:    250 * time.Millisecond,
		strict:      cfg.Strict,
		country:     strings.ToUpper(cfg.Country),
		censusYear:  cfg.CensusYear,
		limiters:    make(map[keys.Service]*rate.Limiter),
	}
	if c.defaultRate <= 0 {
		c.defaultRate = config.DefaultRequestsPerSecond
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = config.DefaultMaxAttempts
	}
	if c.country == "" {
		c.country = config.DefaultCountry
	}
	if c.censusYear == 0 {
		c.censusYear = config.DefaultCensusYear
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.Nop{}
	}
	return c
}

// Strict reports whether fallbacks are disabled
func (c *Client) Strict() bool {
	return c.strict
}

// Country is the ISO country code market data is fetched for
func (c *Client) Country() string {
	return c.country
}

// BaseURL returns the configured override for name, or def
func (c *Client) BaseURL(name, def string) string {
	if u, ok := c.baseURLs[name]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return def
}

func (c *Client) limiter(s keys.Service) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.limiters[s]; ok {
		return l
	}
	rps := c.defaultRate
	if r, ok := c.rates[string(s)]; ok && r > 0 {
		rps = r
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	c.limiters[s] = l
	return l
}

// GetJSON performs req and decodes the JSON response into out
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Service: req.Service, Kind: KindDecode, Message: "error decoding response", Err: err}
	}
	return nil
}

// Do performs req with key rotation, rate limiting, retries and caching and
// returns the raw response body
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	cacheKey := ""
	if req.cacheable() {
		cacheKey = req.cacheKey()
		var cached []byte
		hit, err := c.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warnf("cache read for %s failed: %v", req.Service, err)
		} else if hit {
			c.logger.Debugf("cache hit for %s %s", req.Service, req.URL)
			return cached, nil
		}
	}

	var (
		body     []byte
		lastErr  error
		tried    = make(map[string]bool)
		reported = make(map[string]bool)
	)

	operation := func() error {
		key, fromProvider, err := c.pickKey(req)
		if err != nil {
			// Another key was already tried; surface the failure that got us here
			if lastErr != nil {
				return backoff.Permanent(lastErr)
			}
			return backoff.Permanent(err)
		}
		if k := KindOf(lastErr); fromProvider && tried[key] && k.KeyProblem() && !k.Transient() {
			return backoff.Permanent(lastErr)
		}
		tried[key] = true

		if err := c.limiter(req.Service).Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		b, err := c.send(ctx, req, key)
		if err != nil {
			lastErr = err
			kind := KindOf(err)
			// A burst of retries against one key counts as a single failure
			if fromProvider && kind.KeyProblem() && !reported[key] {
				c.keys.ReportFailure(req.Service, key, err)
				reported[key] = true
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if kind.Transient() || (fromProvider && kind.KeyProblem()) {
				c.logger.Debugf("%s request failed, will retry: %v", req.Service, err)
				return err
			}
			return backoff.Permanent(err)
		}

		if fromProvider {
			c.keys.ReportSuccess(req.Service, key)
		}
		body = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)

	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}

	if cacheKey != "" {
		if err := c.cache.Set(ctx, cacheKey, body, c.cacheTTL); err != nil {
			c.logger.Warnf("cache write for %s failed: %v", req.Service, err)
		}
	}
	return body, nil
}

// pickKey returns the key to use for this attempt and whether it came from
// the key provider
func (c *Client) pickKey(req Request) (string, bool, error) {
	if req.Key == KeyNone {
		return "", false, nil
	}
	if req.FixedKey != "" {
		return req.FixedKey, false, nil
	}
	if c.keys == nil {
		if req.OptionalKey {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%s: %w", req.Service, ErrNoKey)
	}

	key, err := c.keys.Key(req.Service)
	if err != nil {
		if req.OptionalKey && errors.Is(err, keys.ErrNoKey) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%s: %w", req.Service, err)
	}
	return key, true, nil
}

func (c *Client) send(ctx context.Context, req Request, key string) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	q := url.Values{}
	for k, v := range req.Query {
		q[k] = append([]string(nil), v...)
	}
	if key != "" && req.Key == KeyQuery {
		q.Set(req.KeyParam, key)
	}

	fullURL := req.URL
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}

	var bodyReader io.Reader
	if req.Form != nil {
		bodyReader = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("User-Agent", constants.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.Form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if key != "" {
		switch req.Key {
		case KeyBearer:
			httpReq.Header.Set("Authorization", "Bearer "+key)
		case KeyHeader:
			httpReq.Header.Set(req.KeyParam, key)
		case KeyBasic:
			id, secret, _ := strings.Cut(key, ":")
			httpReq.SetBasicAuth(id, secret)
		}
	}

	c.logger.Debugf("%s %s %s (key %s)", req.Service, method, req.URL, keys.Mask(key))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{Service: req.Service, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &APIError{Service: req.Service, StatusCode: resp.StatusCode, Kind: KindNetwork, Err: err}
	}

	if req.ParseError != nil {
		if apiErr := req.ParseError(resp.StatusCode, body); apiErr != nil {
			apiErr.Service = req.Service
			if apiErr.StatusCode == 0 {
				apiErr.StatusCode = resp.StatusCode
			}
			if apiErr.Kind == KindUnknown {
				apiErr.Kind = classifyStatus(resp.StatusCode)
			}
			return nil, apiErr
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Service:    req.Service,
			StatusCode: resp.StatusCode,
			Kind:       classifyStatus(resp.StatusCode),
			Message:    snippet(body),
		}
	}

	return body, nil
}

// snippet trims a response body for use in an error message
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
