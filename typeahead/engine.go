// Package typeahead turns city-field keystrokes into a debounced, ranked
// suggestion list with keyboard navigation.
package typeahead

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"sunnyside/log"
	"sunnyside/weather"
)

type Key int

const (
	KeyOther Key = iota
	KeyDown
	KeyUp
	KeyEnter
	KeyEscape
)

type QueryStatus int

const (
	Unknown QueryStatus = iota
	Pending
	InFlight
	Applied
	Superseded
	Failed
)

func (s QueryStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Applied:
		return "applied"
	case Superseded:
		return "superseded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher looks up city candidates.
type Fetcher interface {
	FetchCitySuggestions(ctx context.Context, query string, limit int) ([]weather.City, error)
	HasKey() bool
}

type Config struct {
	Debounce time.Duration
	Timeout  time.Duration
	MinChars int
	Limit    int
	// Clock defaults to the wall clock.
	Clock Clock
}

// State is a snapshot of what the suggestion panel shows.
type State struct {
	Text        string
	Suggestions []weather.City
	Highlighted int
	Open        bool
}

// Labels returns the display labels of the suggestions.
func (s State) Labels() []string {
	out := make([]string, len(s.Suggestions))
	for i, c := range s.Suggestions {
		out[i] = c.Label()
	}
	return out
}

type Engine struct {
	fetcher Fetcher
	cfg     Config
	clock   Clock

	mu          sync.Mutex
	text        string
	suggestions []weather.City
	highlighted int
	open        bool

	seq         uint64 // newest query created
	timer       Timer
	timerSeq    uint64
	inflight    context.CancelFunc
	inflightSeq uint64
	statuses    map[uint64]QueryStatus

	listener func(State)
}

func New(fetcher Fetcher, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = 2
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Engine{
		fetcher:     fetcher,
		cfg:         cfg,
		clock:       clock,
		highlighted: -1,
		statuses:    make(map[uint64]QueryStatus),
	}
}

// OnChange registers the single state listener. It is called outside the
// engine's lock, possibly from a timer or fetch goroutine.
func (e *Engine) OnChange(fn func(State)) {
	e.mu.Lock()
	e.listener = fn
	e.mu.Unlock()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		Text:        e.text,
		Suggestions: e.suggestions,
		Highlighted: e.highlighted,
		Open:        e.open,
	}
}

// statusHistory is how many of the newest queries keep a status.
const statusHistory = 64

// Status reports what became of query seq. Queries older than the newest
// statusHistory report Unknown.
func (e *Engine) Status(seq uint64) QueryStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statuses[seq]
}

// Seq returns the sequence id of the newest query.
func (e *Engine) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// commit releases the lock and notifies the listener with the current state.
func (e *Engine) commit() {
	st := e.stateLocked()
	fn := e.listener
	e.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// OnInputChanged records text and schedules a debounced lookup for it. Short
// input, or a missing API key, clears the list at once without a lookup.
func (e *Engine) OnInputChanged(text string) {
	e.mu.Lock()
	e.text = text
	seq := e.supersedeLocked()

	if utf8.RuneCountInString(strings.TrimSpace(text)) < e.cfg.MinChars || !e.fetcher.HasKey() {
		e.clearLocked()
		e.statuses[seq] = Applied
		e.commit()
		return
	}

	e.statuses[seq] = Pending
	e.timerSeq = seq
	e.timer = e.clock.AfterFunc(e.cfg.Debounce, func() { e.dispatch(seq, text) })
	e.commit()
}

// supersedeLocked creates a new sequence id, invalidating the pending timer
// and the in-flight request.
func (e *Engine) supersedeLocked() uint64 {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
		e.markSupersededLocked(e.timerSeq)
	}
	if e.inflight != nil {
		e.inflight()
		e.inflight = nil
		e.markSupersededLocked(e.inflightSeq)
	}
	e.seq++
	if e.seq > statusHistory {
		delete(e.statuses, e.seq-statusHistory)
	}
	return e.seq
}

func (e *Engine) markSupersededLocked(seq uint64) {
	switch e.statuses[seq] {
	case Pending, InFlight:
		e.statuses[seq] = Superseded
	}
}

func (e *Engine) clearLocked() {
	e.suggestions = nil
	e.highlighted = -1
	e.open = false
}

// dispatch issues the lookup for query seq if it is still the newest.
func (e *Engine) dispatch(seq uint64, text string) {
	e.mu.Lock()
	if seq != e.seq {
		e.markSupersededLocked(seq)
		e.mu.Unlock()
		return
	}
	e.timer = nil
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	e.inflight = cancel
	e.inflightSeq = seq
	e.statuses[seq] = InFlight
	limit := e.cfg.Limit
	e.mu.Unlock()

	go func() {
		defer cancel()
		cities, err := e.fetcher.FetchCitySuggestions(ctx, strings.TrimSpace(text), limit)
		e.resolve(seq, text, cities, err)
	}()
}

// resolve applies a finished lookup, unless a newer query exists.
func (e *Engine) resolve(seq uint64, text string, cities []weather.City, err error) {
	e.mu.Lock()
	if e.inflightSeq == seq {
		e.inflight = nil
	}
	if seq != e.seq {
		e.markSupersededLocked(seq)
		e.mu.Unlock()
		return
	}

	if err != nil {
		e.statuses[seq] = Failed
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warnf("suggestions for %q timed out after %s", text, e.cfg.Timeout)
		} else {
			log.Warnf("suggestions for %q: %v", text, err)
		}
		e.clearLocked()
		e.commit()
		return
	}

	e.suggestions = rank(text, cities, e.cfg.Limit)
	e.highlighted = -1
	e.open = len(e.suggestions) > 0
	e.statuses[seq] = Applied
	e.commit()
}

// OnSelect fills the field with the candidate's label and closes the panel.
func (e *Engine) OnSelect(c weather.City) {
	e.mu.Lock()
	e.selectLocked(c)
	e.commit()
}

func (e *Engine) selectLocked(c weather.City) {
	e.text = c.Label()
	e.supersedeLocked()
	e.clearLocked()
}

// OnKeyDown moves the highlight or commits a selection while the panel is
// open. It reports whether the key was consumed; an unconsumed Enter falls
// through to submit. Up, Down and Escape are always consumed while the panel
// is open, even when the highlight cannot move.
func (e *Engine) OnKeyDown(k Key) bool {
	e.mu.Lock()
	if !e.open || len(e.suggestions) == 0 {
		e.mu.Unlock()
		return false
	}

	switch k {
	case KeyDown:
		e.highlighted = min(e.highlighted+1, len(e.suggestions)-1)
	case KeyUp:
		e.highlighted = max(e.highlighted-1, 0)
	case KeyEnter:
		if e.highlighted < 0 {
			e.mu.Unlock()
			return false
		}
		e.selectLocked(e.suggestions[e.highlighted])
	case KeyEscape:
		e.open = false
	default:
		e.mu.Unlock()
		return false
	}
	e.commit()
	return true
}

// Close hides the panel and drops any pending or in-flight lookup. Called on
// explicit submit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.supersedeLocked()
	e.open = false
	e.commit()
}
