package connectors

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/chrissnell/launchplanner/internal/market"
)

// DefaultCensusURL is the Census Bureau data API root
const DefaultCensusURL = "https://api.census.gov/data"

type censusCell struct {
	gender   market.Gender
	ageGroup market.AgeGroup
}

// censusVariables maps the ACS B01001 sex-by-age variables for adults to
// gender and age group
var censusVariables = buildCensusVariables()

func buildCensusVariables() map[string]censusCell {
	// Offsets from the first adult row (18 and 19 years) to each age group
	groups := []struct {
		rows int
		ag   market.AgeGroup
	}{
		{4, market.Age18to24}, // 18-19, 20, 21, 22-24
		{2, market.Age25to34}, // 25-29, 30-34
		{2, market.Age35to44},
		{2, market.Age45to54},
		{3, market.Age55to64}, // 55-59, 60-61, 62-64
		{6, market.Age65Plus}, // 65-66, 67-69, 70-74, 75-79, 80-84, 85+
	}

	vars := make(map[string]censusCell)
	for g, first := range map[market.Gender]int{market.Male: 7, market.Female: 31} {
		row := first
		for _, grp := range groups {
			for i := 0; i < grp.rows; i++ {
				name := fmt.Sprintf("B01001_%03dE", row)
				vars[name] = censusCell{gender: g, ageGroup: grp.ag}
				row++
			}
		}
	}
	return vars
}

// CensusVariableNames returns the adult B01001 variable names in row order
func CensusVariableNames() []string {
	names := make([]string, 0, len(censusVariables))
	for _, first := range []int{7, 31} {
		for row := first; row < first+19; row++ {
			names = append(names, fmt.Sprintf("B01001_%03dE", row))
		}
	}
	return names
}

// Census reads the American Community Survey
type Census struct {
	client  *Client
	BaseURL string
	Year    int
}

// NewCensus returns a Census connector for the client's census year
func NewCensus(c *Client) *Census {
	return &Census{
		client:  c,
		BaseURL: c.BaseURL(string(keys.Census), DefaultCensusURL),
		Year:    c.censusYear,
	}
}

func (c *Census) request(get []string, key string) Request {
	return Request{
		Service: keys.Census,
		URL:     fmt.Sprintf("%s/%d/acs/acs5", c.BaseURL, c.Year),
		Query: url.Values{
			"get": {strings.Join(get, ",")},
			"for": {"us:1"},
		},
		Key:         KeyQuery,
		KeyParam:    "key",
		FixedKey:    key,
		OptionalKey: true,
		ParseError:  parseCensusError,
	}
}

// Population returns the adult US population by gender and age group
func (c *Census) Population(ctx context.Context) (market.PopulationTable, error) {
	var rows [][]string
	if err := c.client.GetJSON(ctx, c.request(CensusVariableNames(), ""), &rows); err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &APIError{Service: keys.Census, Kind: KindDecode, Message: "response has no data row"}
	}

	header, values := rows[0], rows[1]
	table := market.PopulationTable{}
	found := 0
	for i, name := range header {
		cell, ok := censusVariables[name]
		if !ok || i >= len(values) {
			continue
		}
		n, err := strconv.ParseFloat(values[i], 64)
		if err != nil {
			return nil, &APIError{Service: keys.Census, Kind: KindDecode, Message: fmt.Sprintf("bad value for %s", name), Err: err}
		}
		table.Add(cell.gender, cell.ageGroup, n)
		found++
	}
	if found == 0 {
		return nil, &APIError{Service: keys.Census, Kind: KindDecode, Message: "no B01001 variables in response"}
	}
	return table, nil
}

// Probe fetches a single variable with the given key
func (c *Census) Probe(ctx context.Context, key string) error {
	req := c.request([]string{"NAME", "B01001_001E"}, key)
	req.OptionalKey = false
	var rows [][]string
	return c.client.GetJSON(ctx, req, &rows)
}

// parseCensusError handles the API's habit of answering a bad key with a
// 200 HTML page
func parseCensusError(status int, body []byte) *APIError {
	trimmed := bytes.TrimSpace(body)
	if bytes.Contains(trimmed, []byte("Invalid Key")) || bytes.Contains(trimmed, []byte("invalid key")) {
		return &APIError{Kind: KindUnauthorized, StatusCode: http.StatusUnauthorized, Message: "invalid Census API key"}
	}
	if status >= 400 {
		return &APIError{Message: snippet(trimmed)}
	}
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return &APIError{Kind: KindServer, Message: "unexpected HTML response"}
	}
	return nil
}
