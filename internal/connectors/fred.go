package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// DefaultFREDURL is the St. Louis Fed API root
const DefaultFREDURL = "https://api.stlouisfed.org"

// FRED series the planner reads
const (
	SeriesConsumerSentiment = "UMCSENT"
	SeriesDisposableIncome  = "DSPIC96"
	SeriesSavingRate        = "PSAVERT"
)

// FRED reads economic time series
type FRED struct {
	client  *Client
	BaseURL string
}

// NewFRED returns a FRED connector
func NewFRED(c *Client) *FRED {
	return &FRED{client: c, BaseURL: c.BaseURL(string(keys.FRED), DefaultFREDURL)}
}

// Observation is one dated value of a series
type Observation struct {
	Date  string
	Value float64
}

// Latest returns the newest observation of a series. Missing values, which
// FRED reports as ".", are skipped.
func (f *FRED) Latest(ctx context.Context, seriesID string) (Observation, error) {
	req := Request{
		Service: keys.FRED,
		URL:     f.BaseURL + "/fred/series/observations",
		Query: url.Values{
			"series_id":  {seriesID},
			"file_type":  {"json"},
			"sort_order": {"desc"},
			"limit":      {"10"},
		},
		Key:        KeyQuery,
		KeyParam:   "api_key",
		ParseError: parseFREDError,
	}

	var resp struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := f.client.GetJSON(ctx, req, &resp); err != nil {
		return Observation{}, err
	}

	for _, o := range resp.Observations {
		if o.Value == "." || o.Value == "" {
			continue
		}
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		return Observation{Date: o.Date, Value: v}, nil
	}
	return Observation{}, &APIError{Service: keys.FRED, Kind: KindNotFound, Message: fmt.Sprintf("no observations for %s", seriesID)}
}

// Probe looks up the GDP series metadata with the given key
func (f *FRED) Probe(ctx context.Context, key string) error {
	req := Request{
		Service:    keys.FRED,
		URL:        f.BaseURL + "/fred/series",
		Query:      url.Values{"series_id": {"GDP"}, "file_type": {"json"}},
		Key:        KeyQuery,
		KeyParam:   "api_key",
		FixedKey:   key,
		ParseError: parseFREDError,
	}
	return f.client.GetJSON(ctx, req, nil)
}

// parseFREDError reads {"error_code":400,"error_message":"..."}
func parseFREDError(status int, body []byte) *APIError {
	if status < 400 {
		return nil
	}
	var e struct {
		Code    int    `json:"error_code"`
		Message string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		return &APIError{Message: snippet(body)}
	}

	apiErr := &APIError{Code: strconv.Itoa(e.Code), Message: e.Message}
	lower := strings.ToLower(e.Message)
	switch {
	case strings.Contains(lower, "api_key"):
		apiErr.Kind = KindUnauthorized
	case status == 429 || strings.Contains(lower, "too many requests"):
		apiErr.Kind = KindRateLimited
	case strings.Contains(lower, "does not exist"):
		apiErr.Kind = KindNotFound
	}
	return apiErr
}
