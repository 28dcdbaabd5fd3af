// Package config loads SunnySide settings from a YAML file, the process
// environment and an optional .env file.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables. Command-line flags are applied by the caller on top of the
// returned Config.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no -config flag is given.
// A missing file at this path is not an error.
const DefaultPath = "sunnyside.yaml"

// Environment variables that override file values.
const (
	EnvAPIKey      = "OPENWEATHER_API_KEY"
	EnvNarratorURL = "SUNNYSIDE_NARRATOR_URL"
	EnvWeatherURL  = "SUNNYSIDE_WEATHER_URL"
	EnvGeoURL      = "SUNNYSIDE_GEO_URL"
	EnvLogLevel    = "SUNNYSIDE_LOG_LEVEL"
	EnvDebounce    = "SUNNYSIDE_DEBOUNCE"
)

type Config struct {
	OpenWeather OpenWeather `yaml:"openweather"`
	Narrator    Narrator    `yaml:"narrator"`
	Typeahead   Typeahead   `yaml:"typeahead"`
	Monitor     Monitor     `yaml:"monitor"`
	HTTP        HTTP        `yaml:"http"`
	Log         Log         `yaml:"log"`
}

type OpenWeather struct {
	// APIKey is the OpenWeather credential. Without it city suggestions
	// are disabled.
	APIKey     string `yaml:"api_key"`
	WeatherURL string `yaml:"weather_url"`
	GeoURL     string `yaml:"geo_url"`
}

type Narrator struct {
	// URL is the base of the narration service; streams are requested from
	// URL + "/stream-audio?text=...".
	URL string `yaml:"url"`
}

type Typeahead struct {
	Debounce     time.Duration `yaml:"debounce"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MinChars     int           `yaml:"min_chars"`
	Limit        int           `yaml:"limit"`
}

type Monitor struct {
	Threshold float64 `yaml:"threshold"`
	Window    int     `yaml:"window"`
	FrameRate int     `yaml:"frame_rate"`
}

type HTTP struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OpenWeather: OpenWeather{
			WeatherURL: "https://api.openweathermap.org/data/2.5/weather",
			GeoURL:     "https://api.openweathermap.org/geo/1.0/direct",
		},
		Narrator: Narrator{URL: "http://localhost:8000"},
		Typeahead: Typeahead{
			Debounce:     100 * time.Millisecond,
			FetchTimeout: 5 * time.Second,
			MinChars:     2,
			Limit:        5,
		},
		Monitor: Monitor{
			Threshold: 0.02,
			Window:    2048,
			FrameRate: 60,
		},
		HTTP: HTTP{Timeout: 10 * time.Second},
		Log:  Log{Level: "info"},
	}
}

// Load builds a Config from defaults, the YAML file at path, a .env file in
// the working directory and the environment. An empty path means
// DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.OpenWeather.APIKey = v
	}
	if v := os.Getenv(EnvNarratorURL); v != "" {
		cfg.Narrator.URL = v
	}
	if v := os.Getenv(EnvWeatherURL); v != "" {
		cfg.OpenWeather.WeatherURL = v
	}
	if v := os.Getenv(EnvGeoURL); v != "" {
		cfg.OpenWeather.GeoURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// Bare integers are read as milliseconds.
			ms, convErr := strconv.Atoi(v)
			if convErr != nil {
				return fmt.Errorf("config: %s=%q: %w", EnvDebounce, v, err)
			}
			d = time.Duration(ms) * time.Millisecond
		}
		cfg.Typeahead.Debounce = d
	}
	return nil
}

// HasAPIKey reports whether the OpenWeather credential is configured.
func (c *Config) HasAPIKey() bool {
	return c.OpenWeather.APIKey != ""
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	for _, u := range []struct{ name, value string }{
		{"openweather.weather_url", cfg.OpenWeather.WeatherURL},
		{"openweather.geo_url", cfg.OpenWeather.GeoURL},
		{"narrator.url", cfg.Narrator.URL},
	} {
		if err := validateURL(u.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.name, err))
		}
	}

	if cfg.Typeahead.Debounce < 0 {
		errs = append(errs, fmt.Errorf("typeahead.debounce must not be negative, got %s", cfg.Typeahead.Debounce))
	}
	if cfg.Typeahead.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("typeahead.fetch_timeout must be positive, got %s", cfg.Typeahead.FetchTimeout))
	}
	if cfg.Typeahead.MinChars < 1 {
		errs = append(errs, fmt.Errorf("typeahead.min_chars must be at least 1, got %d", cfg.Typeahead.MinChars))
	}
	if cfg.Typeahead.Limit < 1 || cfg.Typeahead.Limit > 5 {
		errs = append(errs, fmt.Errorf("typeahead.limit must be between 1 and 5, got %d", cfg.Typeahead.Limit))
	}

	if cfg.Monitor.Threshold <= 0 || cfg.Monitor.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("monitor.threshold must be in (0, 1), got %g", cfg.Monitor.Threshold))
	}
	if w := cfg.Monitor.Window; w < 32 || w > 32768 || w&(w-1) != 0 {
		errs = append(errs, fmt.Errorf("monitor.window must be a power of two in [32, 32768], got %d", w))
	}
	if cfg.Monitor.FrameRate < 1 || cfg.Monitor.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("monitor.frame_rate must be in [1, 240], got %d", cfg.Monitor.FrameRate))
	}

	if cfg.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be positive, got %s", cfg.HTTP.Timeout))
	}

	switch cfg.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: trace, debug, info, warn, error", cfg.Log.Level))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
