package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// DefaultWorldBankURL is the World Bank indicators API root
const DefaultWorldBankURL = "https://api.worldbank.org/v2"

// WorldBankService names the keyless World Bank API in requests and logs
const WorldBankService keys.Service = "worldbank"

// World Bank indicator codes
const (
	IndicatorPopulation    = "SP.POP.TOTL"
	IndicatorGDPPerCapita  = "NY.GDP.PCAP.CD"
	IndicatorInternetUsers = "IT.NET.USER.ZS"
	IndicatorWorkingAge    = "SP.POP.1564.TO.ZS"
)

// WorldBank reads development indicators. It needs no key.
type WorldBank struct {
	client  *Client
	BaseURL string
}

// NewWorldBank returns a WorldBank connector
func NewWorldBank(c *Client) *WorldBank {
	return &WorldBank{client: c, BaseURL: c.BaseURL(string(WorldBankService), DefaultWorldBankURL)}
}

type worldBankPoint struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Latest returns the most recent non-empty value of an indicator for an ISO
// country code, with the year it refers to
func (w *WorldBank) Latest(ctx context.Context, country, indicator string) (float64, string, error) {
	req := Request{
		Service: WorldBankService,
		URL:     fmt.Sprintf("%s/country/%s/indicator/%s", w.BaseURL, strings.ToLower(country), indicator),
		Query: url.Values{
			"format":   {"json"},
			"per_page": {"10"},
			"mrv":      {"10"},
		},
		ParseError: parseWorldBankError,
	}

	var parts []json.RawMessage
	if err := w.client.GetJSON(ctx, req, &parts); err != nil {
		return 0, "", err
	}
	if len(parts) < 2 {
		return 0, "", &APIError{Service: WorldBankService, Kind: KindNotFound, Message: fmt.Sprintf("no data for %s in %s", indicator, country)}
	}

	var points []worldBankPoint
	if err := json.Unmarshal(parts[1], &points); err != nil {
		return 0, "", &APIError{Service: WorldBankService, Kind: KindDecode, Err: err}
	}
	// Points arrive newest first
	for _, p := range points {
		if p.Value != nil {
			return *p.Value, p.Date, nil
		}
	}
	return 0, "", &APIError{Service: WorldBankService, Kind: KindNotFound, Message: fmt.Sprintf("no recent value for %s in %s", indicator, country)}
}

// parseWorldBankError recognises the API's error document, which arrives
// with a 200 status: [{"message":[{"id":"120","key":"Invalid value","value":"..."}]}]
func parseWorldBankError(status int, body []byte) *APIError {
	var parts []struct {
		Message []struct {
			ID    string `json:"id"`
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &parts); err != nil || len(parts) == 0 || len(parts[0].Message) == 0 {
		if status >= 400 {
			return &APIError{Message: snippet(body)}
		}
		return nil
	}

	m := parts[0].Message[0]
	kind := KindBadRequest
	if m.ID == "120" || strings.Contains(strings.ToLower(m.Value), "not found") {
		kind = KindNotFound
	}
	return &APIError{Kind: kind, Code: m.ID, Message: strings.TrimSpace(m.Key + ": " + m.Value)}
}
