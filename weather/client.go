// Package weather talks to the OpenWeather APIs and the narration service.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"sunnyside/config"
	"sunnyside/decoder"
	"sunnyside/log"
)

type Client struct {
	apiKey      string
	weatherURL  string
	geoURL      string
	narratorURL string
	http        *TracedClient
}

func New(cfg *config.Config) *Client {
	return &Client{
		apiKey:      cfg.OpenWeather.APIKey,
		weatherURL:  cfg.OpenWeather.WeatherURL,
		geoURL:      cfg.OpenWeather.GeoURL,
		narratorURL: strings.TrimRight(cfg.Narrator.URL, "/"),
		http:        NewTracedClient(cfg.HTTP.Timeout),
	}
}

// HasKey reports whether OpenWeather requests can be made.
func (c *Client) HasKey() bool { return c.apiKey != "" }

func (c *Client) get(ctx context.Context, op, base string, params url.Values) (*TracedResponse, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, &FetchError{Op: op, Kind: Transport, Err: err}
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Op: op, Kind: Transport, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Op: op, Kind: Transport, Err: err}
	}
	resp.Metrics.log(op)
	return resp, nil
}

// apiError is the error envelope OpenWeather sends with non-2xx statuses.
type apiError struct {
	Cod     json.RawMessage `json:"cod"`
	Message string          `json:"message"`
}

func statusError(op string, resp *TracedResponse) *FetchError {
	var body apiError
	msg := strings.TrimSpace(string(resp.Body))
	if json.Unmarshal(resp.Body, &body) == nil && body.Message != "" {
		msg = body.Message
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	kind := ServerError
	if resp.StatusCode == http.StatusNotFound {
		kind = NotFound
	}
	return &FetchError{Op: op, Kind: kind, Err: fmt.Errorf("status %d: %s", resp.StatusCode, msg)}
}

// codString normalises OpenWeather's "cod" field, which is a number on
// success and a string on some errors.
func codString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// IsNotFound reports whether err is a FetchError of kind NotFound.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == NotFound
}

// NarrationURL is the stream URL that speaks text.
func (c *Client) NarrationURL(text string) string {
	return c.narratorURL + "/stream-audio?" + url.Values{"text": {text}}.Encode()
}

// Open fetches a narration stream and returns it decoded. It satisfies
// monitor.Opener.
func (c *Client) Open(ctx context.Context, streamURL string) (decoder.Stream, error) {
	const op = "narrate"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, &FetchError{Op: op, Kind: Transport, Err: err}
	}
	resp, metrics, err := c.http.Stream(req)
	if err != nil {
		return nil, &FetchError{Op: op, Kind: Transport, Err: err}
	}
	metrics.log(op)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		kind := ServerError
		if resp.StatusCode == http.StatusNotFound {
			kind = NotFound
		}
		return nil, &FetchError{Op: op, Kind: kind, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	stream, err := decoder.Open(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &FetchError{Op: op, Kind: Decode, Err: err}
	}
	log.Debugf("narration stream %s: %d Hz x%d", resp.Header.Get("Content-Type"), stream.SampleRate(), stream.Channels())
	return stream, nil
}

// ProbeNarrator checks that the narration service answers at all.
func (c *Client) ProbeNarrator(ctx context.Context) (*NetworkMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.narratorURL+"/", nil)
	if err != nil {
		return nil, err
	}
	return c.http.Probe(req)
}
