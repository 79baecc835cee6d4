package responseformat

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	PlanName string  `json:"plan_name"`
	Price    float64 `json:"price"`
}

func TestWriteResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)

	require.NoError(t, NewFormatter().WriteResponse(rec, req, http.StatusCreated, payload{PlanName: "Basic", Price: 29}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"plan_name":"Basic","price":29}`, rec.Body.String())
}

func TestWriteResponseMsgPack(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"query", httptest.NewRequest(http.MethodGet, "/api/plans?format=msgpack", nil)},
		{"accept", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
			r.Header.Set("Accept", ContentTypeMsgPack)
			return r
		}()},
		{"accept registered type", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
			r.Header.Set("Accept", "text/html, application/msgpack;q=0.9")
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, NewFormatter().WriteResponse(rec, tt.req, http.StatusOK, payload{PlanName: "Ultra", Price: 79}))
			assert.Equal(t, ContentTypeMsgPack, rec.Header().Get("Content-Type"))

			var out map[string]any
			require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, "Ultra", out["plan_name"])
		})
	}
}

func TestWantsMsgPack(t *testing.T) {
	tests := []struct {
		accept string
		want   bool
	}{
		{"", false},
		{"application/json", false},
		{"application/x-msgpack", true},
		{"application/msgpack", true},
		{"Application/MsgPack; q=0.5", true},
		{"application/msgpack-patch", false},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}
			assert.Equal(t, tt.want, WantsMsgPack(r))
		})
	}
}
