package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// City is a geocoding candidate.
type City struct {
	Name    string  `json:"name"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Label is the display form: "name, state, country", or "name, country"
// when the state is unknown.
func (c City) Label() string {
	if c.State != "" {
		return c.Name + ", " + c.State + ", " + c.Country
	}
	return c.Name + ", " + c.Country
}

// FetchCitySuggestions returns up to limit cities matching query. Without an
// API key it returns a *ConfigError and sends nothing.
func (c *Client) FetchCitySuggestions(ctx context.Context, query string, limit int) ([]City, error) {
	const op = "geocode"
	if !c.HasKey() {
		return nil, &ConfigError{Field: "openweather.api_key"}
	}
	resp, err := c.get(ctx, op, c.geoURL, url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
		"appid": {c.apiKey},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}
	var cities []City
	if err := json.Unmarshal(resp.Body, &cities); err != nil {
		return nil, &FetchError{Op: op, Kind: Decode, Err: err}
	}
	return cities, nil
}
