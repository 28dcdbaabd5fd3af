package doctor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sunnyside/audio"
	"sunnyside/beep"
	"sunnyside/clipboard"
	"sunnyside/config"
	"sunnyside/decoder"
	"sunnyside/monitor"
	"sunnyside/weather"
)

const probeCity = "London"

// Client is the subset of the weather client the doctor exercises.
type Client interface {
	HasKey() bool
	FetchWeather(ctx context.Context, city string) (*weather.Record, error)
	FetchCitySuggestions(ctx context.Context, query string, limit int) ([]weather.City, error)
	NarrationURL(text string) string
	ProbeNarrator(ctx context.Context) (*weather.NetworkMetrics, error)
	Open(ctx context.Context, url string) (decoder.Stream, error)
}

type Options struct {
	Interactive bool
	Out         io.Writer
	In          io.Reader
	// AudioContext defaults to audio.Shared.
	AudioContext func() (audio.Context, error)
}

type check struct {
	name   string
	detail string
	err    error
	warn   bool
}

func (c check) print(w io.Writer) bool {
	switch {
	case c.err != nil && c.warn:
		fmt.Fprintf(w, "  WARN: %s: %v\n", c.name, c.err)
		return true
	case c.err != nil:
		fmt.Fprintf(w, "  FAIL: %s: %v\n", c.name, c.err)
		return false
	default:
		fmt.Fprintf(w, "  PASS: %s%s\n", c.name, c.detail)
		return true
	}
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg *config.Config, client Client, opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.AudioContext == nil {
		opts.AudioContext = audio.Shared
	}
	w := opts.Out
	if opts.Interactive {
		resetTerminal()
		setupInterruptHandler()
	}

	fmt.Fprintln(w, "sunnyside doctor - system diagnostics")
	fmt.Fprintln(w, "=====================================")

	allPass := true
	report := func(cs ...check) {
		for _, c := range cs {
			if !c.print(w) {
				allPass = false
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "[1/4] Configuration")
	report(checkConfig(cfg)...)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "[2/4] Network services")
	report(checkServices(cfg, client)...)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "[3/4] Audio output")
	report(checkAudio(opts)...)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "[4/4] Clipboard")
	report(checkClipboard())

	fmt.Fprintln(w)
	if allPass {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintln(w, "Some checks failed. See details above.")
	return 1
}

func checkConfig(cfg *config.Config) []check {
	checks := []check{{name: "config valid", err: config.Validate(cfg)}}
	if !cfg.HasAPIKey() {
		checks = append(checks, check{
			name: "OpenWeather API key",
			err:  fmt.Errorf("not set; export %s or add openweather.api_key", config.EnvAPIKey),
		})
	} else {
		checks = append(checks, check{name: "OpenWeather API key", detail: " (set)"})
	}
	return checks
}

// checkServices probes the weather, geocoding and narration endpoints
// concurrently and reports them in a fixed order.
func checkServices(cfg *config.Config, client Client) []check {
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.HTTP.Timeout)
	defer cancel()

	results := make([]check, 4)
	var g errgroup.Group

	g.Go(func() error {
		c := check{name: "current weather API"}
		start := time.Now()
		rec, err := client.FetchWeather(ctx, probeCity)
		if err != nil {
			c.err = err
		} else {
			c.detail = fmt.Sprintf(" (%s: %s, %s)", probeCity, rec.Description, time.Since(start).Round(time.Millisecond))
		}
		results[0] = c
		return nil
	})

	g.Go(func() error {
		c := check{name: "geocoding API", warn: true}
		cities, err := client.FetchCitySuggestions(ctx, probeCity[:3], cfg.Typeahead.Limit)
		var ce *weather.ConfigError
		switch {
		case errors.As(err, &ce):
			c.err = errors.New("suggestions disabled without an API key")
		case err != nil:
			c.err = err
		default:
			c.detail = fmt.Sprintf(" (%d candidates)", len(cities))
		}
		results[1] = c
		return nil
	})

	g.Go(func() error {
		c := check{name: "narration service"}
		m, err := client.ProbeNarrator(ctx)
		if err != nil {
			c.err = err
		} else {
			c.detail = fmt.Sprintf(" (reachable in %s)", m.Total.Round(time.Millisecond))
		}
		results[2] = c
		return nil
	})

	g.Go(func() error {
		c := check{name: "narration stream"}
		stream, err := client.Open(ctx, client.NarrationURL("SunnySide doctor check."))
		if err != nil {
			c.err = err
			results[3] = c
			return nil
		}
		defer stream.Close()
		level, err := firstWindowLevel(stream)
		if err != nil {
			c.err = err
		} else {
			c.detail = fmt.Sprintf(" (%d Hz x%d, level %.3f)", stream.SampleRate(), stream.Channels(), level)
		}
		results[3] = c
		return nil
	})

	g.Wait()
	return results
}

// firstWindowLevel decodes one analysis window of the stream and returns its
// RMS.
func firstWindowLevel(stream decoder.Stream) (float64, error) {
	an := monitor.NewAnalyser(monitor.DefaultWindow)
	buf := make([]int16, monitor.DefaultWindow*stream.Channels())
	n := 0
	var err error
	for n < len(buf) && err == nil {
		var m int
		m, err = stream.ReadSamples(buf[n:])
		n += m
	}
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("no audio decoded: %w", err)
	}
	an.Write(buf[:n], stream.Channels())
	window := make([]byte, an.Window())
	an.TimeDomainData(window)
	return monitor.RMS(window), nil
}

func checkAudio(opts Options) []check {
	ctx, err := opts.AudioContext()
	if err != nil {
		return []check{{name: "audio server", err: err}}
	}
	checks := []check{{name: "audio server", detail: " (connected)"}}

	devices, err := ctx.Devices()
	switch {
	case err != nil:
		checks = append(checks, check{name: "output devices", err: err})
	case len(devices) == 0:
		checks = append(checks, check{name: "output devices", err: errors.New("none found")})
	default:
		names := make([]string, len(devices))
		for i, d := range devices {
			names[i] = d.Name
			if audio.IsBluetooth(d.Name) {
				names[i] += " [bluetooth]"
			}
		}
		checks = append(checks, check{name: "output devices", detail: ": " + strings.Join(names, ", ")})
	}

	if !opts.Interactive {
		return checks
	}

	fmt.Fprintln(opts.Out, "Playing the report chime...")
	beep.PlayReady()
	time.Sleep(500 * time.Millisecond)
	fmt.Fprint(opts.Out, "Did you hear it? [y/n]: ")
	answer, _ := bufio.NewReader(opts.In).ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "y" || answer == "yes" {
		checks = append(checks, check{name: "chime heard"})
	} else {
		checks = append(checks, check{name: "chime heard", err: errors.New("not confirmed")})
	}
	return checks
}

func checkClipboard() check {
	c := check{name: "clipboard", warn: true}
	if !clipboard.Available() {
		c.err = clipboard.ErrUnsupported
		return c
	}
	prev, _ := clipboard.Read()
	sentinel := fmt.Sprintf("sunnyside-doctor-%d", time.Now().UnixNano())
	if err := clipboard.Copy(sentinel); err != nil {
		c.err = err
		return c
	}
	got, err := clipboard.Read()
	clipboard.Copy(prev)
	if err != nil {
		c.err = err
		return c
	}
	if got != sentinel {
		c.err = fmt.Errorf("read back %q, want %q", got, sentinel)
	}
	return c
}
