// Package monitor plays a narration stream and estimates, once per frame,
// whether the audio currently playing is voiced.
package monitor

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"sunnyside/audio"
	"sunnyside/decoder"
	"sunnyside/log"
)

// Opener resolves a stream URL to decoded audio.
type Opener interface {
	Open(ctx context.Context, url string) (decoder.Stream, error)
}

type OpenerFunc func(ctx context.Context, url string) (decoder.Stream, error)

func (f OpenerFunc) Open(ctx context.Context, url string) (decoder.Stream, error) {
	return f(ctx, url)
}

// Status is published to the change listener on start, on every tick and on
// stop.
type Status struct {
	SessionID string
	URL       string
	Active    bool
	Voiced    bool
	Level     float64
}

type Options struct {
	Threshold float64
	Window    int
	FrameRate int

	// Scheduler defaults to a FrameScheduler at FrameRate.
	Scheduler Scheduler
	// AudioContext defaults to audio.Shared.
	AudioContext func() (audio.Context, error)
	// Device defaults to audio.OutputDevice.
	Device func() *audio.DeviceInfo
}

type Monitor struct {
	opener    Opener
	threshold float64
	window    int
	sched     Scheduler
	audioCtx  func() (audio.Context, error)
	device    func() *audio.DeviceInfo

	// startMu orders sessions: a new one is built only after the previous
	// one has been torn down.
	startMu sync.Mutex

	// pubMu serialises listener calls. A session's final status is sent
	// under it together with clearing active, so no tick status of that
	// session can reach the listener afterwards.
	pubMu sync.Mutex

	mu       sync.Mutex
	active   *Session
	listener func(Status)
}

func New(opener Opener, opts Options) *Monitor {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewFrameScheduler(opts.FrameRate)
	}
	if opts.AudioContext == nil {
		opts.AudioContext = audio.Shared
	}
	if opts.Device == nil {
		opts.Device = audio.OutputDevice
	}
	return &Monitor{
		opener:    opener,
		threshold: opts.Threshold,
		window:    opts.Window,
		sched:     opts.Scheduler,
		audioCtx:  opts.AudioContext,
		device:    opts.Device,
	}
}

// OnChange registers the single status listener. It is called outside the
// monitor's locks.
func (m *Monitor) OnChange(fn func(Status)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

// Start stops the active session, if any, then begins playing url and
// analysing it. ctx bounds the whole session, not just start-up. On error no
// session is running.
func (m *Monitor) Start(ctx context.Context, url string) (*Session, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if prev := m.Active(); prev != nil {
		prev.Stop()
	}

	actx, err := m.audioCtx()
	if err != nil {
		return nil, &PlaybackError{URL: url, Stage: StageContext, Err: err}
	}
	if err := actx.Resume(); err != nil {
		return nil, &PlaybackError{URL: url, Stage: StageResume, Err: err}
	}

	sctx, cancel := context.WithCancel(ctx)
	stream, err := m.opener.Open(sctx, url)
	if err != nil {
		cancel()
		return nil, &PlaybackError{URL: url, Stage: StageLoad, Err: err}
	}

	s := &Session{
		ID:       uuid.NewString(),
		URL:      url,
		m:        m,
		cancel:   cancel,
		stream:   stream,
		analyser: NewAnalyser(m.window),
		buf:      make([]byte, m.window),
		done:     make(chan struct{}),
	}
	src := &tap{src: stream, analyser: s.analyser, channels: stream.Channels()}
	cfg := audio.PlaybackConfig{SampleRate: uint32(stream.SampleRate()), Channels: uint32(stream.Channels())}
	pb, err := actx.NewPlayback(m.device(), cfg, src)
	if err != nil {
		stream.Close()
		cancel()
		return nil, &PlaybackError{URL: url, Stage: StageGraph, Err: err}
	}
	s.playback = pb

	m.mu.Lock()
	m.active = s
	m.mu.Unlock()

	s.mu.Lock()
	s.cancelTick = m.sched.Schedule(s.tick)
	s.mu.Unlock()

	if err := pb.Start(); err != nil {
		s.Stop()
		return nil, &PlaybackError{URL: url, Stage: StagePlay, Err: err}
	}
	go s.watch()

	log.Narration(s.ID, "start", map[string]string{
		"url":      url,
		"rate":     strconv.Itoa(stream.SampleRate()),
		"channels": strconv.Itoa(stream.Channels()),
	})
	m.publish(s, s.Status())
	return s, nil
}

// Active returns the running session, or nil.
func (m *Monitor) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Stop stops the active session, if any.
func (m *Monitor) Stop() {
	if s := m.Active(); s != nil {
		s.Stop()
	}
}

// IsVoiced reports the voiced flag of the active session; false when idle.
func (m *Monitor) IsVoiced() bool {
	if s := m.Active(); s != nil {
		return s.IsVoiced()
	}
	return false
}

// publish notifies the listener when s is still the active session.
func (m *Monitor) publish(s *Session, st Status) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	if st.Active && s.Stopped() {
		return
	}
	m.mu.Lock()
	fn := m.listener
	current := m.active == s
	m.mu.Unlock()
	if fn != nil && current {
		fn(st)
	}
}

// retire sends the final status of s and clears it as the active session.
// A successor may already be active; it owns the listener from then on.
func (m *Monitor) retire(s *Session, st Status) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.mu.Lock()
	fn := m.listener
	current := m.active == s
	if current {
		m.active = nil
	}
	m.mu.Unlock()
	if fn != nil && current {
		fn(st)
	}
}

// tap feeds every block handed to the device through the analyser.
type tap struct {
	src      decoder.Stream
	analyser *Analyser
	channels int
}

func (t *tap) ReadSamples(buf []int16) (int, error) {
	n, err := t.src.ReadSamples(buf)
	if n > 0 {
		t.analyser.Write(buf[:n], t.channels)
	}
	return n, err
}
