package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Record is the current weather for one city.
type Record struct {
	City        string
	Country     string
	Description string
	// Numbers keep the API's own formatting so the report reads exactly as
	// the service sent it.
	Temperature json.Number
	Humidity    json.Number
	Pressure    json.Number
	IconID      string
}

// Text renders the report shown to the user.
func (r *Record) Text() string {
	return fmt.Sprintf("Temperature: %s°C\nHumidity: %s%%\nPressure: %s hPa\nCondition: %s",
		r.Temperature, r.Humidity, r.Pressure, r.Description)
}

// NarrationText is what the weatherman says for city.
func NarrationText(city, report string) string {
	return "City: " + city + " Weather: " + report
}

type currentResponse struct {
	Cod  json.RawMessage `json:"cod"`
	Name string          `json:"name"`
	Main struct {
		Temp     json.Number `json:"temp"`
		Pressure json.Number `json:"pressure"`
		Humidity json.Number `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// FetchWeather returns the current weather for city in metric units.
func (c *Client) FetchWeather(ctx context.Context, city string) (*Record, error) {
	const op = "weather"
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, &FetchError{Op: op, Kind: NotFound, Err: fmt.Errorf("empty city")}
	}
	if !c.HasKey() {
		return nil, &FetchError{Op: op, Kind: ServerError, Err: &ConfigError{Field: "openweather.api_key"}}
	}

	resp, err := c.get(ctx, op, c.weatherURL, url.Values{
		"q":     {city},
		"appid": {c.apiKey},
		"units": {"metric"},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	var body currentResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &FetchError{Op: op, Kind: Decode, Err: err}
	}
	if codString(body.Cod) == "404" {
		return nil, &FetchError{Op: op, Kind: NotFound, Err: fmt.Errorf("city %q not found", city)}
	}
	if len(body.Weather) == 0 || body.Main.Temp == "" {
		return nil, &FetchError{Op: op, Kind: Decode, Err: fmt.Errorf("incomplete weather payload")}
	}

	return &Record{
		City:        body.Name,
		Country:     body.Sys.Country,
		Description: body.Weather[0].Description,
		Temperature: body.Main.Temp,
		Humidity:    body.Main.Humidity,
		Pressure:    body.Main.Pressure,
		IconID:      body.Weather[0].Icon,
	}, nil
}
