package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"sunnyside/audio"
	"sunnyside/beep"
	"sunnyside/clipboard"
	"sunnyside/config"
	"sunnyside/doctor"
	"sunnyside/log"
	"sunnyside/monitor"
	"sunnyside/shutdown"
	"sunnyside/typeahead"
	"sunnyside/weather"
	"sunnyside/widget"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "out: " + name + suffix
}

// app holds the wired components shared by every run mode.
type app struct {
	cfg     *config.Config
	client  *weather.Client
	monitor *monitor.Monitor
	engine  *typeahead.Engine
	widget  *widget.Widget
}

func newApp(ctx context.Context, cfg *config.Config, client *weather.Client, mopts monitor.Options, tcfg typeahead.Config) *app {
	mopts.Threshold = cfg.Monitor.Threshold
	mopts.Window = cfg.Monitor.Window
	mopts.FrameRate = cfg.Monitor.FrameRate
	mon := monitor.New(client, mopts)

	tcfg.Debounce = cfg.Typeahead.Debounce
	tcfg.Timeout = cfg.Typeahead.FetchTimeout
	tcfg.MinChars = cfg.Typeahead.MinChars
	tcfg.Limit = cfg.Typeahead.Limit
	engine := typeahead.New(client, tcfg)

	w := widget.New(ctx, client, mon, engine, widget.Options{
		Sounds: beep.Sounds{},
		Copy:   clipboard.Copy,
	})
	return &app{cfg: cfg, client: client, monitor: mon, engine: engine, widget: w}
}

func (a *app) close() {
	a.engine.Close()
	a.monitor.Stop()
	log.SessionEnd(a.widget.Reports())
}

func run() int {
	configFlag := flag.String("config", "", "config file (default: ./"+config.DefaultPath+" if present)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI when attached to a terminal")
	quietFlag := flag.Bool("quiet", false, "Disable report and error chimes")
	cityFlag := flag.String("city", "", "Look up one city, narrate it and exit")
	deviceFlag := flag.String("device", "", "Use the output device whose name contains this text")
	selectFlag := flag.Bool("select-device", false, "Pick the narration output device interactively")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("sunnyside %s\n", version)
		return 0
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		log.Warnf("%v", err)
	}

	client := weather.New(cfg)

	if *doctorFlag {
		defer audio.CloseShared()
		return doctor.Run(cfg, client, doctor.Options{Interactive: term.IsTerminal(int(os.Stdin.Fd()))})
	}

	if *testFlag {
		return runTestMode(cfg, client)
	}

	if *quietFlag {
		beep.Disable()
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	defer audio.CloseShared()

	if *deviceFlag != "" || *selectFlag {
		if err := chooseDevice(*deviceFlag); err != nil {
			if errors.Is(err, audio.ErrSelectionCancelled) {
				return 0
			}
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: %v\nFalling back to default device\n", err)
		}
	}

	beep.Init()

	if !client.HasKey() {
		fmt.Fprintf(os.Stderr, "Warning: %s is not set; city suggestions are disabled and lookups will fail\n", config.EnvAPIKey)
	}

	a := newApp(ctx, cfg, client, monitor.Options{}, typeahead.Config{})
	defer a.close()

	log.SessionStart(version, cfg.Narrator.URL, client.HasKey())

	switch {
	case *cityFlag != "":
		return runOnce(ctx, a, *cityFlag, os.Stdout)
	case *tuiFlag && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())):
		return runTUI(ctx, a)
	default:
		return runPlain(ctx, a, os.Stdin, os.Stdout)
	}
}

func chooseDevice(query string) error {
	actx, err := audio.Shared()
	if err != nil {
		return err
	}
	var dev *audio.DeviceInfo
	if query != "" {
		dev, err = audio.FindDevice(actx, query)
	} else {
		dev, err = audio.SelectDevice(actx)
	}
	if err != nil {
		return err
	}
	audio.SetOutputDevice(dev)
	log.Infof("narration output: %s", dev.Name)
	return nil
}

func runTUI(ctx context.Context, a *app) int {
	vp := newViewPump(ctx)

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(ctx, a.widget, deviceLineText(audio.OutputDevice()))
	p := tuiProgram
	tuiMu.Unlock()

	a.widget.SetRenderer(vp)

	_, err := p.Run()

	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runOnce looks up city, prints the report and waits for the narration to
// finish.
func runOnce(ctx context.Context, a *app, city string, out io.Writer) int {
	a.widget.Input(city)
	err := a.widget.Submit(ctx)
	printView(out, a.widget.View())
	if err != nil {
		return 1
	}
	if s := a.monitor.Active(); s != nil {
		select {
		case <-s.Done():
		case <-ctx.Done():
		}
	}
	return 0
}

// runPlain reads one city per line and prints each report. A new line
// interrupts the narration of the previous one.
func runPlain(ctx context.Context, a *app, in io.Reader, out io.Writer) int {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprint(out, "City: ")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return 0
		case line, ok := <-lines:
			if !ok {
				// stdin closed: let the last narration play out
				if s := a.monitor.Active(); s != nil {
					select {
					case <-s.Done():
					case <-ctx.Done():
					}
				}
				return 0
			}
			city := strings.TrimSpace(line)
			if city != "" {
				a.widget.Input(city)
				a.widget.Submit(ctx)
				printView(out, a.widget.View())
			}
			fmt.Fprint(out, "City: ")
		}
	}
}

func printView(out io.Writer, v widget.View) {
	switch {
	case v.ErrorText != "":
		fmt.Fprintln(out, v.ErrorText)
	case v.WeatherText != "":
		fmt.Fprintf(out, "%s %s\n%s\n", v.Asset.Glyph, v.City, v.WeatherText)
	}
}
