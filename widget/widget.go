// Package widget wires the weather lookup, the suggestion engine and the
// narration monitor into one view model.
package widget

import (
	"context"
	"errors"
	"strings"
	"sync"

	"sunnyside/log"
	"sunnyside/monitor"
	"sunnyside/typeahead"
	"sunnyside/weather"
)

// View is everything a render surface needs. WeatherText and ErrorText are
// never both set.
type View struct {
	City        string
	WeatherText string
	ErrorText   string
	Asset       weather.Asset
	Voiced      bool
	Level       float64
	Suggestions []string
	Highlighted int
	PanelOpen   bool
	Loading     bool
	Narrating   bool
}

// Renderer receives every view change, in order. It is called with the
// widget locked and must not call back into it.
type Renderer interface {
	Render(View)
}

type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

type WeatherService interface {
	FetchWeather(ctx context.Context, city string) (*weather.Record, error)
	NarrationURL(text string) string
}

type Narrator interface {
	Start(ctx context.Context, url string) (*monitor.Session, error)
	Stop()
	OnChange(fn func(monitor.Status))
}

type Suggester interface {
	OnInputChanged(text string)
	OnKeyDown(k typeahead.Key) bool
	Close()
	OnChange(fn func(typeahead.State))
}

// Sounds plays short feedback cues.
type Sounds interface {
	Ready()
	Failed()
}

type silent struct{}

func (silent) Ready()  {}
func (silent) Failed() {}

type Options struct {
	Sounds   Sounds
	Copy     func(string) error
	Renderer Renderer
}

var (
	ErrNothingToCopy = errors.New("no weather report to copy")
	// ErrSuperseded is returned by a Submit whose result was dropped because
	// a newer Submit started after it.
	ErrSuperseded = errors.New("lookup superseded by a newer submit")
)

type Widget struct {
	base     context.Context
	svc      WeatherService
	narrator Narrator
	engine   Suggester
	sounds   Sounds
	copy     func(string) error

	// narrateMu orders the freshness check with the narrator calls that
	// follow it, so a stale submit cannot start or stop narration after a
	// newer one has.
	narrateMu sync.Mutex

	mu           sync.Mutex
	view         View
	renderer     Renderer
	reports      int
	submitSeq    uint64
	cancelSubmit context.CancelFunc
}

// New builds a widget. base bounds narration sessions, which outlive the
// Submit call that starts them.
func New(base context.Context, svc WeatherService, narrator Narrator, engine Suggester, opts Options) *Widget {
	if opts.Sounds == nil {
		opts.Sounds = silent{}
	}
	w := &Widget{
		base:     base,
		svc:      svc,
		narrator: narrator,
		engine:   engine,
		sounds:   opts.Sounds,
		copy:     opts.Copy,
		renderer: opts.Renderer,
		view:     View{Highlighted: -1},
	}
	engine.OnChange(w.onSuggestions)
	narrator.OnChange(w.onNarration)
	return w
}

func (w *Widget) SetRenderer(r Renderer) {
	w.mu.Lock()
	w.renderer = r
	w.renderLocked()
	w.mu.Unlock()
}

func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// Reports is the number of successful lookups so far.
func (w *Widget) Reports() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reports
}

func (w *Widget) renderLocked() {
	if w.renderer != nil {
		w.renderer.Render(w.view)
	}
}

func (w *Widget) onSuggestions(st typeahead.State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view.City = st.Text
	w.view.Suggestions = st.Labels()
	w.view.Highlighted = st.Highlighted
	w.view.PanelOpen = st.Open
	w.renderLocked()
}

func (w *Widget) onNarration(st monitor.Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.view.Voiced == (st.Active && st.Voiced) && w.view.Narrating == st.Active && w.view.Level == st.Level {
		return
	}
	w.view.Narrating = st.Active
	w.view.Voiced = st.Active && st.Voiced
	w.view.Level = st.Level
	w.renderLocked()
}

// Input forwards a change of the city field.
func (w *Widget) Input(text string) {
	w.engine.OnInputChanged(text)
}

// Key forwards a navigation key and reports whether the suggestion panel
// consumed it.
func (w *Widget) Key(k typeahead.Key) bool {
	return w.engine.OnKeyDown(k)
}

// Submit looks up the weather for the current city and, on success, starts
// narrating it. The returned error is the lookup failure, if any; narration
// failures are only logged. Starting a Submit cancels the lookup of any
// earlier one, and only the newest Submit may change the view or the
// narration; older ones return ErrSuperseded.
func (w *Widget) Submit(ctx context.Context) error {
	w.engine.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if w.cancelSubmit != nil {
		w.cancelSubmit()
	}
	w.submitSeq++
	seq := w.submitSeq
	w.cancelSubmit = cancel
	city := strings.TrimSpace(w.view.City)
	w.view.Loading = true
	w.renderLocked()
	w.mu.Unlock()

	rec, err := w.svc.FetchWeather(ctx, city)

	w.narrateMu.Lock()
	defer w.narrateMu.Unlock()

	w.mu.Lock()
	if seq != w.submitSeq {
		w.mu.Unlock()
		log.Debugf("dropping stale weather for %q", city)
		return ErrSuperseded
	}
	w.cancelSubmit = nil

	if err != nil {
		w.view.Loading = false
		w.view.WeatherText = ""
		w.view.Asset = weather.Asset{}
		w.view.ErrorText = ErrorText(err)
		w.renderLocked()
		w.mu.Unlock()

		log.Warnf("weather for %q: %v", city, err)
		w.narrator.Stop()
		w.sounds.Failed()
		return err
	}

	text := rec.Text()
	w.view.Loading = false
	w.view.WeatherText = text
	w.view.ErrorText = ""
	w.view.Asset = weather.AssetFor(rec.Description)
	w.reports++
	w.renderLocked()
	w.mu.Unlock()

	log.Report(city, text)
	w.sounds.Ready()

	url := w.svc.NarrationURL(weather.NarrationText(city, text))
	if _, err := w.narrator.Start(w.base, url); err != nil {
		log.Errorf("narration: %v", err)
	}
	return nil
}

// ErrorText is the message shown in place of the weather report.
func ErrorText(err error) string {
	if weather.IsNotFound(err) {
		return "City not found"
	}
	var fe *weather.FetchError
	if errors.As(err, &fe) {
		return "City not found or server error: " + fe.Err.Error()
	}
	return "City not found or server error: " + err.Error()
}

// StopNarration silences the weatherman.
func (w *Widget) StopNarration() {
	w.narrator.Stop()
}

// Copy puts the current report on the clipboard.
func (w *Widget) Copy() error {
	w.mu.Lock()
	text := w.view.WeatherText
	city := w.view.City
	w.mu.Unlock()
	if text == "" || w.copy == nil {
		return ErrNothingToCopy
	}
	return w.copy(city + "\n" + text)
}
