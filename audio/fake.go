package audio

import (
	"errors"
	"io"
	"sync"
	"time"
)

const fakeChunkFrames = 1024

// FakeContext stands in for the audio server in tests and in -test mode.
// In realtime mode playbacks consume their source at the configured sample
// rate; in manual mode nothing is consumed until Pump is called.
type FakeContext struct {
	Realtime bool
	Manual   bool

	// Errors injected into the matching calls.
	ResumeErr   error
	PlaybackErr error
	StartErr    error

	mu        sync.Mutex
	resumes   int
	playbacks []*FakePlayback
}

func NewFakeContext(realtime bool) *FakeContext {
	return &FakeContext{Realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "Fake Output"}}, nil
}

func (f *FakeContext) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return f.ResumeErr
}

func (f *FakeContext) Resumes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes
}

func (f *FakeContext) NewPlayback(_ *DeviceInfo, config PlaybackConfig, src SampleSource) (Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlaybackErr != nil {
		return nil, f.PlaybackErr
	}
	pb := &FakePlayback{
		Config:   config,
		src:      src,
		realtime: f.Realtime,
		manual:   f.Manual,
		startErr: f.StartErr,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	f.playbacks = append(f.playbacks, pb)
	return pb, nil
}

// Playbacks returns every playback created so far, oldest first.
func (f *FakeContext) Playbacks() []*FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakePlayback(nil), f.playbacks...)
}

func (f *FakeContext) Close() {}

type FakePlayback struct {
	Config PlaybackConfig

	src      SampleSource
	realtime bool
	manual   bool
	startErr error

	mu       sync.Mutex
	started  bool
	paused   bool
	closed   bool
	consumed int
	stopOnce sync.Once
	stopCh   chan struct{}
	pumpDone chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

func (p *FakePlayback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	if p.started {
		return nil
	}
	p.started = true
	if p.manual {
		return nil
	}

	p.pumpDone = make(chan struct{})
	interval := time.Duration(0)
	if p.realtime && p.Config.SampleRate > 0 {
		interval = time.Duration(fakeChunkFrames) * time.Second / time.Duration(p.Config.SampleRate)
	}
	go func() {
		defer close(p.pumpDone)
		for {
			select {
			case <-p.stopCh:
				return
			default:
			}
			if _, err := p.Pump(fakeChunkFrames); err != nil {
				return
			}
			if interval > 0 {
				select {
				case <-p.stopCh:
					return
				case <-time.After(interval):
				}
			}
		}
	}()
	return nil
}

// Pump reads up to frames frames from the source, as the device would.
// It returns io.EOF once the source is exhausted, which also closes Done.
func (p *FakePlayback) Pump(frames int) (int, error) {
	p.mu.Lock()
	if p.paused || p.closed {
		p.mu.Unlock()
		return 0, errors.New("fake playback: not running")
	}
	ch := int(max(p.Config.Channels, 1))
	p.mu.Unlock()

	buf := make([]int16, frames*ch)
	total := 0
	for total < len(buf) {
		n, err := p.src.ReadSamples(buf[total:])
		total += n
		if err != nil {
			p.addConsumed(total)
			p.finish()
			return total / ch, io.EOF
		}
		if n == 0 {
			break
		}
	}
	p.addConsumed(total)
	return total / ch, nil
}

func (p *FakePlayback) addConsumed(n int) {
	p.mu.Lock()
	p.consumed += n
	p.mu.Unlock()
}

// Consumed reports how many samples have been read from the source.
func (p *FakePlayback) Consumed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumed
}

func (p *FakePlayback) Pause() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	p.paused = true
	pumpDone := p.pumpDone
	p.mu.Unlock()
	if pumpDone != nil {
		<-pumpDone
	}
}

func (p *FakePlayback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *FakePlayback) Close() {
	p.Pause()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.finish()
}

func (p *FakePlayback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePlayback) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *FakePlayback) Done() <-chan struct{} { return p.done }
