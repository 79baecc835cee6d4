package diagnostics

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/launchplanner/internal/connectors"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[keys.Service][]string

func (s staticSource) Name() string                             { return "test" }
func (s staticSource) Priority() int                            { return keys.PriorityEnvironment }
func (s staticSource) Load() (map[keys.Service][]string, error) { return s, nil }

func vendorServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/top-headlines":
			if r.Header.Get("X-Api-Key") != "news-good-123456" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`))
				return
			}
			w.Write([]byte(`{"status":"ok","totalResults":1,"articles":[]}`))
		case "/tweets/search/recent":
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"title":"Too Many Requests","detail":"Too Many Requests"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestProber(t *testing.T, srv *httptest.Server, k map[keys.Service][]string) (*Prober, *keys.Manager) {
	t.Helper()
	km, err := keys.NewManager([]keys.Source{staticSource(k)})
	require.NoError(t, err)

	cfg := config.ConnectorsData{
		Timeout:           "2s",
		RequestsPerSecond: 1000,
		BaseURLs:          map[string]string{"newsapi": srv.URL, "twitter": srv.URL},
	}
	client := connectors.NewClient(cfg, km, nil, connectors.WithRetryInterval(time.Millisecond))
	return NewProber(connectors.NewSet(client), km, nil), km
}

func TestCheckKey(t *testing.T) {
	srv := vendorServer(t)
	defer srv.Close()
	p, km := newTestProber(t, srv, nil)

	res := p.CheckKey(context.Background(), keys.NewsAPI, "news-good-123456")
	assert.Equal(t, StatusOK, res.Status)
	assert.True(t, res.OK())
	assert.Equal(t, "news...3456", res.KeyMasked)
	assert.Equal(t, "News API", res.DisplayName)

	res = p.CheckKey(context.Background(), keys.NewsAPI, "news-bad-0000000")
	assert.Equal(t, StatusInvalidKey, res.Status)
	assert.Equal(t, http.StatusUnauthorized, res.HTTPStatus)
	assert.NotEmpty(t, res.Message)

	// CheckKey leaves the manager alone
	assert.Empty(t, km.Keys(keys.NewsAPI))

	res = p.CheckKey(context.Background(), keys.Service("nope"), "x")
	assert.Equal(t, StatusError, res.Status)
}

func TestCheckAll(t *testing.T) {
	srv := vendorServer(t)
	defer srv.Close()
	p, km := newTestProber(t, srv, map[keys.Service][]string{
		keys.NewsAPI: {"news-good-123456", "news-bad-0000000"},
		keys.Twitter: {"tw-token-1234567"},
	})

	results := p.CheckAll(context.Background())
	require.Len(t, results, len(keys.AllServices())+1)

	var got []string
	for _, r := range results {
		got = append(got, string(r.Service)+":"+string(r.Status))
	}
	assert.Equal(t, []string{
		"bing:missing",
		"census:missing",
		"facebook:missing",
		"fred:missing",
		"instagram:missing",
		"newsapi:ok",
		"newsapi:invalid_key",
		"reddit:missing",
		"serpapi:missing",
		"twitter:rate_limited",
		"youtube:missing",
	}, got)

	assert.Equal(t, "test", results[5].Source)
	assert.Contains(t, results[0].Message, "BING_SEARCH_KEY")

	news := km.Keys(keys.NewsAPI)
	assert.Equal(t, 0, news[0].ErrorCount)
	assert.Equal(t, 1, news[1].ErrorCount)
	assert.Equal(t, 1, km.Keys(keys.Twitter)[0].ErrorCount)

	s := Summarize(results)
	assert.Equal(t, Summary{Total: 11, OK: 1, Failed: 2, Missing: 8}, s)
}

func TestCheckSingleService(t *testing.T) {
	srv := vendorServer(t)
	defer srv.Close()
	p, _ := newTestProber(t, srv, map[keys.Service][]string{keys.NewsAPI: {"news-good-123456"}})

	results := p.Check(context.Background(), keys.NewsAPI)
	require.Len(t, results, 1)
	assert.Equal(t, StatusOK, results[0].Status)
	assert.Equal(t, "test", results[0].Source)

	results = p.Check(context.Background(), keys.FRED)
	require.Len(t, results, 1)
	assert.Equal(t, StatusMissing, results[0].Status)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"no key", keys.ErrNoKey, StatusMissing},
		{"unauthorized", &connectors.APIError{Kind: connectors.KindUnauthorized}, StatusInvalidKey},
		{"rate limited", &connectors.APIError{Kind: connectors.KindRateLimited}, StatusRateLimited},
		{"quota", &connectors.APIError{Kind: connectors.KindQuotaExceeded}, StatusQuotaExceeded},
		{"network", &connectors.APIError{Kind: connectors.KindNetwork}, StatusNetworkError},
		{"deadline", context.DeadlineExceeded, StatusNetworkError},
		{"server", &connectors.APIError{Kind: connectors.KindServer}, StatusError},
		{"plain", errors.New("boom"), StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestReport(t *testing.T) {
	results := []Result{
		{Service: keys.NewsAPI, KeyMasked: "news...3456", Source: "environment", Status: StatusOK, HTTPStatus: 0, Duration: 120 * time.Millisecond, Message: "key accepted"},
		{Service: keys.FRED, Status: StatusMissing, Message: "no API key configured; set FRED_API_KEY"},
	}
	var buf bytes.Buffer
	require.NoError(t, Report(&buf, results))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "SERVICE"))
	assert.Contains(t, lines[1], "newsapi")
	assert.Contains(t, lines[1], "120ms")
	assert.Contains(t, lines[2], "missing")
	assert.Contains(t, out, "1 keys checked: 1 ok, 0 failed, 1 services missing a key")
}

func TestGuides(t *testing.T) {
	g, err := GuideFor(keys.Reddit)
	require.NoError(t, err)
	assert.Equal(t, []string{"REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET"}, g.EnvVars)
	assert.Equal(t, "REDDIT_CLIENT_ID=your_reddit_client_id_here\nREDDIT_CLIENT_SECRET=your_reddit_client_secret_here", g.Example)
	assert.Len(t, g.Steps, 4)
	assert.False(t, g.Optional)

	g, err = GuideFor(keys.Census)
	require.NoError(t, err)
	assert.True(t, g.Optional)

	_, err = GuideFor(keys.Service("myspace"))
	assert.Error(t, err)

	assert.Len(t, Guides(), len(keys.AllServices()))

	tmpl := EnvTemplate()
	assert.Contains(t, tmpl, "SERPAPI_KEY=your_serpapi_key_here")
	assert.Contains(t, tmpl, "# optional")
}
