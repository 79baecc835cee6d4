package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrissnell/launchplanner/internal/cache"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSource map[keys.Service][]string

func (s testSource) Name() string                             { return "test" }
func (s testSource) Priority() int                            { return keys.PriorityEnvironment }
func (s testSource) Load() (map[keys.Service][]string, error) { return s, nil }

func newTestManager(t *testing.T, k map[keys.Service][]string) *keys.Manager {
	t.Helper()
	m, err := keys.NewManager([]keys.Source{testSource(k)})
	require.NoError(t, err)
	return m
}

// newTestClient points every connector at srv
func newTestClient(t *testing.T, srv *httptest.Server, km KeyProvider, opts ...ClientOption) *Client {
	t.Helper()
	base := map[string]string{}
	for _, name := range []string{"census", "worldbank", "fred", "youtube", "newsapi", "serpapi",
		"facebook", "instagram", "bing", "twitter", "reddit", "reddit_oauth"} {
		base[name] = srv.URL
	}
	cfg := config.ConnectorsData{
		Timeout:           "2s",
		RequestsPerSecond: 1000,
		BaseURLs:          base,
	}
	opts = append([]ClientOption{WithRetryInterval(time.Millisecond)}, opts...)
	return NewClient(cfg, km, nil, opts...)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	var out struct{ OK bool }
	err := c.GetJSON(context.Background(), Request{Service: WorldBankService, URL: srv.URL + "/x"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	err := c.GetJSON(context.Background(), Request{Service: WorldBankService, URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCodeOf(err))
	assert.Equal(t, int32(config.DefaultMaxAttempts), calls.Load())
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	err := c.GetJSON(context.Background(), Request{Service: WorldBankService, URL: srv.URL}, nil)
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRotatesPastRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "good-key-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	km := newTestManager(t, map[keys.Service][]string{keys.FRED: {"bad-key-1234", "good-key-123"}})
	c := newTestClient(t, srv, km)

	req := Request{Service: keys.FRED, URL: srv.URL, Key: KeyQuery, KeyParam: "api_key", NoCache: true}
	require.NoError(t, c.GetJSON(context.Background(), req, nil))

	states := km.Keys(keys.FRED)
	assert.Equal(t, 1, states[0].ErrorCount)
	assert.Equal(t, 0, states[1].ErrorCount)
}

func TestClientSingleRejectedKeyIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	km := newTestManager(t, map[keys.Service][]string{keys.Bing: {"only-bing-key"}})
	c := newTestClient(t, srv, km)

	req := Request{Service: keys.Bing, URL: srv.URL, Key: KeyHeader, KeyParam: "Ocp-Apim-Subscription-Key"}
	err := c.GetJSON(context.Background(), req, nil)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, km.Keys(keys.Bing)[0].ErrorCount)
}

func TestClientRateLimitBurstKeepsKeyActive(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	km := newTestManager(t, map[keys.Service][]string{keys.FRED: {"abcdefabcdefabcdefabcdefabcdef12"}})
	c := newTestClient(t, srv, km)

	req := Request{Service: keys.FRED, URL: srv.URL, Key: KeyQuery, KeyParam: "api_key", NoCache: true}
	err := c.GetJSON(context.Background(), req, nil)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, int32(config.DefaultMaxAttempts), calls.Load())

	states := km.Keys(keys.FRED)
	require.Len(t, states, 1)
	assert.True(t, states[0].Active)
	assert.Equal(t, 1, states[0].ErrorCount)

	key, err := km.Key(keys.FRED)
	require.NoError(t, err)
	assert.Equal(t, "abcdefabcdefabcdefabcdefabcdef12", key)
}

func TestClientMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, newTestManager(t, nil))
	err := c.GetJSON(context.Background(), Request{Service: keys.Twitter, URL: srv.URL, Key: KeyBearer}, nil)
	assert.True(t, errors.Is(err, ErrNoKey))
}

func TestClientOptionalKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("key"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, newTestManager(t, nil))
	req := Request{Service: keys.Census, URL: srv.URL, Key: KeyQuery, KeyParam: "key", OptionalKey: true}
	assert.NoError(t, c.GetJSON(context.Background(), req, nil))
}

func TestClientCachesResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"n": 7}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil, WithCache(cache.NewMemoryCache(), time.Hour))
	req := Request{Service: WorldBankService, URL: srv.URL + "/cached"}

	for i := 0; i < 3; i++ {
		var out struct{ N int }
		require.NoError(t, c.GetJSON(context.Background(), req, &out))
		assert.Equal(t, 7, out.N)
	}
	assert.Equal(t, int32(1), calls.Load())

	req.NoCache = true
	require.NoError(t, c.GetJSON(context.Background(), req, nil))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	var out map[string]any
	err := c.GetJSON(context.Background(), Request{Service: WorldBankService, URL: srv.URL}, &out)
	assert.Equal(t, KindDecode, KindOf(err))
}

func TestClientKeyPlacement(t *testing.T) {
	tests := []struct {
		name      string
		placement KeyPlacement
		param     string
		check     func(t *testing.T, r *http.Request)
	}{
		{"query", KeyQuery, "key", func(t *testing.T, r *http.Request) {
			assert.Equal(t, "secret-value", r.URL.Query().Get("key"))
		}},
		{"bearer", KeyBearer, "", func(t *testing.T, r *http.Request) {
			assert.Equal(t, "Bearer secret-value", r.Header.Get("Authorization"))
		}},
		{"header", KeyHeader, "X-Api-Key", func(t *testing.T, r *http.Request) {
			assert.Equal(t, "secret-value", r.Header.Get("X-Api-Key"))
		}},
		{"basic", KeyBasic, "", func(t *testing.T, r *http.Request) {
			id, secret, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "secret", id)
			assert.Equal(t, "value", secret)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.check(t, r)
				assert.Contains(t, r.Header.Get("User-Agent"), "launchplanner/")
				w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			key := "secret-value"
			if tt.placement == KeyBasic {
				key = "secret:value"
			}
			c := newTestClient(t, srv, nil)
			req := Request{Service: keys.NewsAPI, URL: srv.URL, Key: tt.placement, KeyParam: tt.param, FixedKey: key}
			require.NoError(t, c.GetJSON(context.Background(), req, nil))
		})
	}
}

func TestKind(t *testing.T) {
	assert.True(t, KindRateLimited.Transient())
	assert.True(t, KindServer.Transient())
	assert.True(t, KindNetwork.Transient())
	assert.False(t, KindUnauthorized.Transient())
	assert.False(t, KindQuotaExceeded.Transient())

	assert.True(t, KindQuotaExceeded.KeyProblem())
	assert.False(t, KindServer.KeyProblem())

	assert.Equal(t, "quota_exceeded", KindQuotaExceeded.String())
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))

	err := &APIError{Service: keys.YouTube, StatusCode: 403, Code: "quotaExceeded", Message: "daily quota", Kind: KindQuotaExceeded}
	assert.Equal(t, "youtube: quota_exceeded (HTTP 403, quotaExceeded): daily quota", err.Error())
}

func TestClassifyStatus(t *testing.T) {
	tests := map[int]Kind{
		401: KindUnauthorized,
		403: KindUnauthorized,
		402: KindQuotaExceeded,
		404: KindNotFound,
		422: KindBadRequest,
		429: KindRateLimited,
		500: KindServer,
		503: KindServer,
		200: KindUnknown,
	}
	for status, want := range tests {
		assert.Equal(t, want, classifyStatus(status), "status %d", status)
	}
}
