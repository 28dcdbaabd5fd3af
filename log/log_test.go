package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/sunny")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/sunny" {
		t.Errorf("got %q, want /tmp/sunny", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("SUNNYSIDE_LOG_PATH", "/tmp/sunny-env")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/sunny-env" {
		t.Errorf("got %q, want /tmp/sunny-env", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("SUNNYSIDE_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "report_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestReportFlattensLines(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Report("Paris", "Temperature: 21°C\nCondition: clear sky")

	data, err := os.ReadFile(filepath.Join(tmp, "report_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "Paris\tTemperature: 21°C | Condition: clear sky") {
		t.Errorf("unexpected report line: %q", line)
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected a single line, got %q", line)
	}
}

func TestSetLevelFiltersDebug(t *testing.T) {
	tmp := setupLogDir(t)
	t.Cleanup(func() { SetLevel("info") })

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Debugf("hidden %d", 1)
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	Debugf("visible %d", 2)

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden 1") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(string(data), "visible 2") {
		t.Error("debug line missing after SetLevel(debug)")
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	if err := SetLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
