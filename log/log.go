package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog    zerolog.Logger
	diagFile   *os.File
	reportFile *os.File
	logMu      sync.Mutex
	logReady   bool
	pid        int
	dir        string
	level      = zerolog.InfoLevel
)

// Metrics is the timing breakdown of one HTTP exchange with a collaborator.
type Metrics struct {
	DNSMs      float64
	TCPMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	Status     int
	ConnReused bool
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absDir(flagPath)
	}

	// Priority 2: SUNNYSIDE_LOG_PATH environment variable
	if envPath := os.Getenv("SUNNYSIDE_LOG_PATH"); envPath != "" {
		return absDir(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absDir(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// SetLevel sets the minimum level written to the diagnostics log.
// An empty string keeps the current level.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	logMu.Lock()
	level = l
	if logReady {
		diagLog = diagLog.Level(l)
	}
	logMu.Unlock()
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	reportPath := filepath.Join(dir, "report_log.txt")
	reportFile, err = os.OpenFile(reportPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if reportFile != nil {
		reportFile.Close()
		reportFile = nil
	}
	logReady = false
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func FetchMetrics(op string, m Metrics) {
	if !logReady {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	diagLog.Info().
		Str("op", op).
		Int("status", m.Status).
		Str("conn", connStatus).
		Float64("dns_ms", m.DNSMs).
		Float64("tcp_ms", m.TCPMs).
		Float64("tls_ms", m.TLSMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalMs).
		Msg("fetch")
}

// Report appends one weather report to report_log.txt.
// Newlines in the report are flattened so each report stays on one line.
func Report(city, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if reportFile == nil {
		return
	}
	flat := strings.ReplaceAll(text, "\n", " | ")
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, city, flat)
	reportFile.WriteString(line)
}

func Narration(sessionID, event string, fields map[string]string) {
	if !logReady {
		return
	}
	ev := diagLog.Info().Str("session", sessionID)
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("narration_" + event)
}

func SessionStart(version, narrator string, suggestions bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("version", version).
		Str("narrator", narrator).
		Bool("suggestions", suggestions).
		Msg("session_start")
}

func SessionEnd(reports int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("reports", reports).
		Msg("session_end")
}
