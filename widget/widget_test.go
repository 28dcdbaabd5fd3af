package widget

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"sunnyside/audio"
	"sunnyside/decoder"
	"sunnyside/monitor"
	"sunnyside/typeahead"
	"sunnyside/weather"
)

type fakeService struct {
	mu      sync.Mutex
	records map[string]*weather.Record
	err     error
	cities  []string

	// gates holds a lookup until its channel is closed. The wait ignores
	// ctx, like a server that answers after the client gave up.
	gates     map[string]chan struct{}
	cancelled []string
}

func (f *fakeService) FetchWeather(ctx context.Context, city string) (*weather.Record, error) {
	f.mu.Lock()
	f.cities = append(f.cities, city)
	gate := f.gates[city]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		f.cancelled = append(f.cancelled, city)
	}
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[city]
	if !ok {
		return nil, &weather.FetchError{Op: "weather", Kind: weather.NotFound, Err: errors.New("404")}
	}
	return rec, nil
}

func (f *fakeService) NarrationURL(text string) string {
	return "http://narrator/stream-audio?text=" + text
}

func (f *fakeService) HasKey() bool { return true }

func (f *fakeService) FetchCitySuggestions(_ context.Context, query string, _ int) ([]weather.City, error) {
	return []weather.City{{Name: "Paris", State: "Île-de-France", Country: "FR"}}, nil
}

func record(desc string) *weather.Record {
	return &weather.Record{
		Description: desc,
		Temperature: json.Number("21"),
		Humidity:    json.Number("40"),
		Pressure:    json.Number("1015"),
	}
}

type immediateClock struct{}

type noTimer struct{}

func (noTimer) Stop() bool { return false }

func (immediateClock) AfterFunc(_ time.Duration, fn func()) typeahead.Timer {
	go fn()
	return noTimer{}
}

type queueScheduler struct {
	mu      sync.Mutex
	next    int
	pending map[int]func()
}

func (s *queueScheduler) Schedule(fn func()) monitor.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[int]func())
	}
	id := s.next
	s.next++
	s.pending[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}
}

func (s *queueScheduler) Frame() {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type loudStream struct{ left int }

func (s *loudStream) ReadSamples(buf []int16) (int, error) {
	if s.left == 0 {
		return 0, io.EOF
	}
	n := min(len(buf), s.left)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			buf[i] = 9000
		} else {
			buf[i] = -9000
		}
	}
	s.left -= n
	return n, nil
}

func (s *loudStream) SampleRate() int { return 16000 }
func (s *loudStream) Channels() int   { return 1 }
func (s *loudStream) Close() error    { return nil }

type countingSounds struct {
	mu            sync.Mutex
	ready, failed int
}

func (c *countingSounds) Ready()  { c.mu.Lock(); c.ready++; c.mu.Unlock() }
func (c *countingSounds) Failed() { c.mu.Lock(); c.failed++; c.mu.Unlock() }

type fixture struct {
	w      *Widget
	svc    *fakeService
	mon    *monitor.Monitor
	sched  *queueScheduler
	audio  *audio.FakeContext
	sounds *countingSounds
	urls   []string

	mu    sync.Mutex
	views []View
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		svc: &fakeService{records: map[string]*weather.Record{
			"Paris":  record("clear sky"),
			"London": record("light rain"),
			"Lima":   record("hazy"),
		}},
		sched:  &queueScheduler{},
		audio:  audio.NewFakeContext(false),
		sounds: &countingSounds{},
	}
	f.audio.Manual = true
	opener := monitor.OpenerFunc(func(_ context.Context, url string) (decoder.Stream, error) {
		f.urls = append(f.urls, url)
		return &loudStream{left: 1 << 20}, nil
	})
	f.mon = monitor.New(opener, monitor.Options{
		Scheduler:    f.sched,
		AudioContext: func() (audio.Context, error) { return f.audio, nil },
	})
	engine := typeahead.New(f.svc, typeahead.Config{Clock: immediateClock{}})
	f.w = New(context.Background(), f.svc, f.mon, engine, Options{
		Sounds: f.sounds,
		Renderer: RendererFunc(func(v View) {
			f.mu.Lock()
			f.views = append(f.views, v)
			f.mu.Unlock()
		}),
	})
	t.Cleanup(f.mon.Stop)
	return f
}

func (f *fixture) submit(t *testing.T, city string) error {
	t.Helper()
	f.w.Input(city)
	return f.w.Submit(context.Background())
}

func TestSubmitSelectsAsset(t *testing.T) {
	tests := []struct {
		city string
		want weather.Asset
	}{
		{"Paris", weather.Clear},
		{"London", weather.Rain},
		{"Lima", weather.Other},
	}
	for _, tt := range tests {
		t.Run(tt.city, func(t *testing.T) {
			f := newFixture(t)
			if err := f.submit(t, tt.city); err != nil {
				t.Fatal(err)
			}
			v := f.w.View()
			if v.Asset != tt.want {
				t.Errorf("asset = %s, want %s", v.Asset.Name, tt.want.Name)
			}
			if v.ErrorText != "" || v.Loading {
				t.Errorf("view = %+v", v)
			}
		})
	}
}

func TestSubmitShowsReportAndNarrates(t *testing.T) {
	f := newFixture(t)
	if err := f.submit(t, "  Paris  "); err != nil {
		t.Fatal(err)
	}
	v := f.w.View()
	want := "Temperature: 21°C\nHumidity: 40%\nPressure: 1015 hPa\nCondition: clear sky"
	if v.WeatherText != want {
		t.Errorf("weather text = %q", v.WeatherText)
	}
	if f.svc.cities[0] != "Paris" {
		t.Errorf("fetched %q, want trimmed city", f.svc.cities[0])
	}
	if len(f.urls) != 1 || !strings.Contains(f.urls[0], "City: Paris Weather: Temperature: 21°C") {
		t.Errorf("narration urls = %v", f.urls)
	}
	if !v.Narrating || v.Voiced {
		t.Errorf("narrating=%v voiced=%v before the first frame", v.Narrating, v.Voiced)
	}
	if f.sounds.ready != 1 {
		t.Errorf("ready sound played %d times", f.sounds.ready)
	}

	f.audio.Playbacks()[0].Pump(4096)
	f.sched.Frame()
	if v := f.w.View(); !v.Voiced || v.Level == 0 {
		t.Errorf("not voiced after loud frame: %+v", v)
	}
	if f.w.Reports() != 1 {
		t.Errorf("reports = %d", f.w.Reports())
	}
}

func TestSubmitErrorReplacesWeatherAndStopsNarration(t *testing.T) {
	f := newFixture(t)
	if err := f.submit(t, "Paris"); err != nil {
		t.Fatal(err)
	}
	f.audio.Playbacks()[0].Pump(4096)
	f.sched.Frame()

	err := f.submit(t, "Atlantis")
	if !weather.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
	v := f.w.View()
	if v.ErrorText != "City not found" || v.WeatherText != "" {
		t.Errorf("view = %+v", v)
	}
	if v.Asset != (weather.Asset{}) {
		t.Errorf("asset kept: %s", v.Asset.Name)
	}
	if v.Voiced || v.Narrating || f.mon.Active() != nil {
		t.Error("narration still running after failed lookup")
	}
	if f.sounds.failed != 1 {
		t.Errorf("failed sound played %d times", f.sounds.failed)
	}
}

func TestSubmitServerErrorText(t *testing.T) {
	f := newFixture(t)
	f.svc.err = &weather.FetchError{Op: "weather", Kind: weather.ServerError, Err: errors.New("status 502: bad gateway")}
	f.submit(t, "Paris")
	if got := f.w.View().ErrorText; got != "City not found or server error: status 502: bad gateway" {
		t.Errorf("error text = %q", got)
	}
}

func TestSecondSubmitReplacesNarration(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "Paris")
	first := f.mon.Active()
	f.submit(t, "London")
	second := f.mon.Active()
	if first == nil || second == nil || first == second {
		t.Fatal("expected two distinct sessions")
	}
	if !first.Stopped() {
		t.Error("first session still running")
	}
	if w := f.w.View().WeatherText; !strings.Contains(w, "light rain") {
		t.Errorf("weather text = %q", w)
	}
}

func TestPlaybackFailureKeepsWeather(t *testing.T) {
	f := newFixture(t)
	f.audio.PlaybackErr = errors.New("device busy")
	if err := f.submit(t, "Paris"); err != nil {
		t.Fatalf("lookup error = %v", err)
	}
	v := f.w.View()
	if v.WeatherText == "" || v.ErrorText != "" || v.Narrating {
		t.Errorf("view = %+v", v)
	}
}

func TestSubmitClosesSuggestionPanel(t *testing.T) {
	f := newFixture(t)
	f.w.Input("par")
	deadline := time.Now().Add(2 * time.Second)
	for !f.w.View().PanelOpen {
		if time.Now().After(deadline) {
			t.Fatal("panel never opened")
		}
		time.Sleep(time.Millisecond)
	}
	if !f.w.Key(typeahead.KeyDown) {
		t.Fatal("ArrowDown not consumed")
	}
	if v := f.w.View(); v.Highlighted != 0 || v.Suggestions[0] != "Paris, Île-de-France, FR" {
		t.Errorf("view = %+v", v)
	}

	f.w.Submit(context.Background())
	if f.w.View().PanelOpen {
		t.Error("panel open after submit")
	}
}

func TestEndOfNarrationClearsVoiced(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "Paris")
	s := f.mon.Active()
	f.audio.Playbacks()[0].Pump(4096)
	f.sched.Frame()
	s.Stop()
	if v := f.w.View(); v.Voiced || v.Narrating || v.Level != 0 {
		t.Errorf("view after stop = %+v", v)
	}
	if f.w.View().WeatherText == "" {
		t.Error("weather text cleared when narration ended")
	}
}

func TestCopy(t *testing.T) {
	f := newFixture(t)
	var copied string
	f.w.copy = func(s string) error { copied = s; return nil }

	if err := f.w.Copy(); !errors.Is(err, ErrNothingToCopy) {
		t.Errorf("err = %v, want ErrNothingToCopy", err)
	}
	f.submit(t, "Paris")
	if err := f.w.Copy(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(copied, "Paris\nTemperature: 21°C") {
		t.Errorf("copied = %q", copied)
	}
}

func TestRendererSeesEveryChange(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "Paris")
	f.mu.Lock()
	defer f.mu.Unlock()
	sawLoading := false
	for _, v := range f.views {
		if v.Loading {
			sawLoading = true
		}
		if v.WeatherText != "" && v.ErrorText != "" {
			t.Errorf("weather and error shown together: %+v", v)
		}
	}
	if !sawLoading {
		t.Error("loading state never rendered")
	}
}

func (f *fakeService) lookups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cities...)
}

func TestSlowEarlierSubmitIsDropped(t *testing.T) {
	f := newFixture(t)
	parisGate := make(chan struct{})
	f.svc.gates = map[string]chan struct{}{"Paris": parisGate}

	paris := make(chan error, 1)
	go func() {
		paris <- f.submit(t, "Paris")
	}()
	deadline := time.Now().Add(5 * time.Second)
	for len(f.svc.lookups()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Paris lookup never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := f.submit(t, "London"); err != nil {
		t.Fatal(err)
	}
	london := f.mon.Active()
	if london == nil {
		t.Fatal("London should be narrating")
	}

	close(parisGate)
	if err := <-paris; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Paris submit err = %v, want ErrSuperseded", err)
	}

	v := f.w.View()
	if v.Asset != weather.Rain || !strings.Contains(v.WeatherText, "light rain") {
		t.Errorf("view shows stale report: %+v", v)
	}
	if v.Loading {
		t.Error("view still loading")
	}
	if f.mon.Active() != london || london.Stopped() {
		t.Error("stale result touched the London narration")
	}
	if len(f.urls) != 1 || !strings.Contains(f.urls[0], "London") {
		t.Errorf("narrated %q, want only London", f.urls)
	}
	if f.w.Reports() != 1 {
		t.Errorf("Reports = %d, want 1", f.w.Reports())
	}
	f.svc.mu.Lock()
	cancelled := f.svc.cancelled
	f.svc.mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != "Paris" {
		t.Errorf("cancelled lookups = %q, want [Paris]", cancelled)
	}
}

func TestSupersededFailureKeepsNewerReport(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.svc.gates = map[string]chan struct{}{"Atlantis": gate}

	done := make(chan error, 1)
	go func() {
		done <- f.submit(t, "Atlantis")
	}()
	deadline := time.Now().Add(5 * time.Second)
	for len(f.svc.lookups()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Atlantis lookup never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := f.submit(t, "Paris"); err != nil {
		t.Fatal(err)
	}

	close(gate)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("err = %v, want ErrSuperseded", err)
	}
	if v := f.w.View(); v.ErrorText != "" || v.Asset != weather.Clear {
		t.Errorf("stale failure leaked into view: %+v", v)
	}
	if s := f.mon.Active(); s == nil || s.Stopped() {
		t.Error("stale failure stopped the Paris narration")
	}
	f.sounds.mu.Lock()
	defer f.sounds.mu.Unlock()
	if f.sounds.failed != 0 {
		t.Errorf("failed chimes = %d, want 0", f.sounds.failed)
	}
}
