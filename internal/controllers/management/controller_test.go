package management

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chrissnell/launchplanner/internal/diagnostics"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	readOnly bool
	saved    map[string]*config.ControllerData
}

func (p *fakeProvider) LoadConfig() (*config.ConfigData, error)         { return &config.ConfigData{}, nil }
func (p *fakeProvider) GetControllers() ([]config.ControllerData, error) { return nil, nil }
func (p *fakeProvider) GetController(string) (*config.ControllerData, error) {
	return nil, nil
}
func (p *fakeProvider) IsReadOnly() bool { return p.readOnly }
func (p *fakeProvider) Close() error     { return nil }

func (p *fakeProvider) UpdateController(controllerType string, c *config.ControllerData) error {
	if p.readOnly {
		return config.ErrReadOnly
	}
	if p.saved == nil {
		p.saved = map[string]*config.ControllerData{}
	}
	p.saved[controllerType] = c
	return nil
}

type fakeChecker struct {
	calls []keys.Service
}

func (f *fakeChecker) Check(_ context.Context, svc keys.Service) []diagnostics.Result {
	f.calls = append(f.calls, svc)
	return []diagnostics.Result{{Service: svc, Status: diagnostics.StatusInvalidKey}}
}

func (f *fakeChecker) CheckAll(context.Context) []diagnostics.Result {
	f.calls = append(f.calls, "*")
	return []diagnostics.Result{
		{Service: keys.FRED, Status: diagnostics.StatusOK},
		{Service: keys.NewsAPI, Status: diagnostics.StatusMissing},
	}
}

type staticSource map[keys.Service][]string

func (s staticSource) Name() string                             { return "test" }
func (s staticSource) Priority() int                            { return keys.PriorityEnvironment }
func (s staticSource) Load() (map[keys.Service][]string, error) { return s, nil }

const testToken = "test-token-0000"

func newTestController(t *testing.T) (*Controller, *keys.Manager, *fakeChecker) {
	t.Helper()
	km, err := keys.NewManager([]keys.Source{staticSource{
		keys.FRED: {"fred-key-aaaaaaaa"},
		keys.Bing: {"bing-key-bbbbbbbb"},
	}})
	require.NoError(t, err)

	checker := &fakeChecker{}
	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, &fakeProvider{},
		config.ManagementAPIData{AuthToken: testToken}, km, checker, nil)
	require.NoError(t, err)
	return ctrl, km, checker
}

func call(t *testing.T, ctrl *Controller, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	ctrl.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGeneratedTokenIsPersisted(t *testing.T) {
	km, err := keys.NewManager(nil)
	require.NoError(t, err)

	p := &fakeProvider{}
	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, p,
		config.ManagementAPIData{Port: 9090}, km, &fakeChecker{}, nil)
	require.NoError(t, err)

	token := ctrl.AuthToken()
	assert.Len(t, token, 36)
	require.Contains(t, p.saved, "management")
	assert.Equal(t, token, p.saved["management"].ManagementAPI.AuthToken)
	assert.Equal(t, 9090, p.saved["management"].ManagementAPI.Port)
	assert.Equal(t, "127.0.0.1:9090", ctrl.Server.Addr)

	// A read-only provider still gets a working token
	ctrl, err = NewController(context.Background(), &sync.WaitGroup{}, &fakeProvider{readOnly: true},
		config.ManagementAPIData{}, km, &fakeChecker{}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ctrl.AuthToken())
	assert.Equal(t, "127.0.0.1:8081", ctrl.Server.Addr)
}

func TestAuthRequired(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	rec := call(t, ctrl, "GET", "/api/keys", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", decodeMap(t, rec)["error"])

	req := httptest.NewRequest("GET", "/api/keys", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	ctrl.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, ctrl, "GET", "/api/keys", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginSetsSessionCookie(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	rec := call(t, ctrl, "POST", "/login", `{"token":"nope"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, ctrl, "POST", "/login", `{}`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, ctrl, "POST", "/login", `{"token":"`+testToken+`"}`, false)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionName, cookies[0].Name)

	req := httptest.NewRequest("GET", "/auth/status", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	ctrl.Handler().ServeHTTP(rec, req)
	assert.Equal(t, true, decodeMap(t, rec)["authenticated"])

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	ctrl.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, ctrl, "POST", "/logout", "", false)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestKeyStatusIsMasked(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	rec := call(t, ctrl, "GET", "/api/keys", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "fred-key-aaaaaaaa")

	var body struct {
		Services []keys.ServiceStatus `json:"services"`
		Count    int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(keys.AllServices()), body.Count)
	for _, s := range body.Services {
		if s.Service == keys.FRED {
			assert.Equal(t, 1, s.Total)
			assert.Equal(t, keys.Mask("fred-key-aaaaaaaa"), s.Keys[0].Masked)
		}
	}
}

func TestEnableService(t *testing.T) {
	ctrl, km, _ := newTestController(t)

	for i := 0; i < 5; i++ {
		km.ReportFailure(keys.Bing, "bing-key-bbbbbbbb", assert.AnError)
	}
	assert.False(t, km.HasKey(keys.Bing))

	rec := call(t, ctrl, "POST", "/api/keys/bing/enable", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, km.HasKey(keys.Bing))

	rec = call(t, ctrl, "POST", "/api/keys/myspace/enable", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadKeys(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	rec := call(t, ctrl, "POST", "/api/keys/reload", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeMap(t, rec), "services")
}

func TestKeyTests(t *testing.T) {
	ctrl, _, checker := newTestController(t)

	rec := call(t, ctrl, "POST", "/api/keys/test", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []diagnostics.Result `json:"results"`
		Summary diagnostics.Summary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Results, 2)
	assert.Equal(t, diagnostics.Summary{Total: 2, OK: 1, Missing: 1}, body.Summary)

	rec = call(t, ctrl, "POST", "/api/keys/fred/test", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Summary.Failed)

	assert.Equal(t, []keys.Service{"*", keys.FRED}, checker.calls)

	rec = call(t, ctrl, "POST", "/api/keys/nothing/test", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuides(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	rec := call(t, ctrl, "GET", "/api/guides", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(len(keys.AllServices())), decodeMap(t, rec)["count"])

	rec = call(t, ctrl, "GET", "/api/guides/youtube", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var guide diagnostics.Guide
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &guide))
	assert.Equal(t, keys.YouTube, guide.Service)
	assert.NotEmpty(t, guide.SignupURL)
}

func TestStatus(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	rec := call(t, ctrl, "GET", "/api/status", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 2.0, body["services_configured"])
	assert.Equal(t, false, body["config_read_only"])
}
