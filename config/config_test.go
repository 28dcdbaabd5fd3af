package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderOverridesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
openweather:
  api_key: abc123
narrator:
  url: https://narrator.example.com
typeahead:
  debounce: 250ms
  limit: 3
monitor:
  threshold: 0.05
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OpenWeather.APIKey != "abc123" {
		t.Errorf("APIKey = %q", cfg.OpenWeather.APIKey)
	}
	if cfg.Narrator.URL != "https://narrator.example.com" {
		t.Errorf("Narrator.URL = %q", cfg.Narrator.URL)
	}
	if cfg.Typeahead.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %s", cfg.Typeahead.Debounce)
	}
	if cfg.Typeahead.Limit != 3 {
		t.Errorf("Limit = %d", cfg.Typeahead.Limit)
	}
	if cfg.Monitor.Threshold != 0.05 {
		t.Errorf("Threshold = %g", cfg.Monitor.Threshold)
	}
	// untouched defaults survive
	if cfg.Monitor.Window != 2048 || cfg.Monitor.FrameRate != 60 {
		t.Errorf("monitor defaults lost: %+v", cfg.Monitor)
	}
	if cfg.Typeahead.FetchTimeout != 5*time.Second {
		t.Errorf("FetchTimeout = %s", cfg.Typeahead.FetchTimeout)
	}
}

func TestLoadFromReaderEmptyIsDefault(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Typeahead.Debounce != 100*time.Millisecond {
		t.Errorf("Debounce = %s, want 100ms", cfg.Typeahead.Debounce)
	}
	if cfg.HasAPIKey() {
		t.Error("default config should not have an API key")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("narator:\n  url: http://x\n"))
	if err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Narrator.URL = "ftp://nope"
	cfg.Monitor.Window = 1000
	cfg.Monitor.Threshold = 0
	cfg.Typeahead.Limit = 9
	cfg.Log.Level = "chatty"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"narrator.url", "monitor.window", "monitor.threshold", "typeahead.limit", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sunnyside.yaml")
	if err := os.WriteFile(path, []byte("openweather:\n  api_key: from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvDebounce, "40")
	t.Setenv(EnvNarratorURL, "http://127.0.0.1:9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OpenWeather.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.OpenWeather.APIKey)
	}
	if cfg.Typeahead.Debounce != 40*time.Millisecond {
		t.Errorf("Debounce = %s, want 40ms", cfg.Typeahead.Debounce)
	}
	if cfg.Narrator.URL != "http://127.0.0.1:9000" {
		t.Errorf("Narrator.URL = %q", cfg.Narrator.URL)
	}
}

func TestLoadMissingDefaultFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvAPIKey, "")
	if _, err := Load(""); err != nil {
		t.Fatalf("Load(\"\") with no file: %v", err)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatal("expected error for explicit missing file")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvGeoURL+"=http://geo.local/direct\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvGeoURL, "") // registers cleanup; godotenv only fills unset keys
	os.Unsetenv(EnvGeoURL)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OpenWeather.GeoURL != "http://geo.local/direct" {
		t.Errorf("GeoURL = %q", cfg.OpenWeather.GeoURL)
	}
}
