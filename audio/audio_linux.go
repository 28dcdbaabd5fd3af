//go:build linux

package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("SunnySide"))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sinks, err := p.client.ListSinks()
	if err != nil {
		return nil, fmt.Errorf("pulse list sinks: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sinks {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

// Resume is a no-op: pulse streams are corked per stream, never per client.
func (p *pulseContext) Resume() error { return nil }

func (p *pulseContext) NewPlayback(device *DeviceInfo, config PlaybackConfig, src SampleSource) (Playback, error) {
	pb := &pulsePlayback{
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pb.ended {
			return 0, pulse.EndOfData
		}
		n, err := src.ReadSamples(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				pb.err = err
			}
			pb.ended = true
			close(pb.eof)
			if n == 0 {
				return 0, pulse.EndOfData
			}
		}
		return n, nil
	})

	opts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(int(config.SampleRate)),
		pulse.PlaybackLatency(0.1),
	}
	switch config.Channels {
	case 1:
		opts = append(opts, pulse.PlaybackMono)
	case 2:
		opts = append(opts, pulse.PlaybackStereo)
	default:
		return nil, fmt.Errorf("pulse playback: unsupported channel count %d", config.Channels)
	}
	if device != nil {
		sink, err := p.client.SinkByID(device.ID)
		if err == nil && sink != nil {
			opts = append(opts, pulse.PlaybackSink(sink))
		}
	}
	vols := make(proto.ChannelVolumes, config.Channels)
	for i := range vols {
		vols[i] = uint32(proto.VolumeNorm)
	}
	opts = append(opts, pulse.PlaybackRawOption(func(r *proto.CreatePlaybackStream) {
		r.ChannelVolumes = vols
	}))

	stream, err := p.client.NewPlayback(reader, opts...)
	if err != nil {
		return nil, fmt.Errorf("pulse playback: %w", err)
	}
	pb.stream = stream
	return pb, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulsePlayback struct {
	stream *pulse.PlaybackStream

	// ended and err are only touched from the pulse reader goroutine.
	ended bool
	err   error

	mu        sync.Mutex
	started   bool
	eof       chan struct{}
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

func (pb *pulsePlayback) Start() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.started {
		return nil
	}
	pb.started = true
	pb.stream.Start()
	if err := pb.stream.Error(); err != nil {
		return fmt.Errorf("pulse start: %w", err)
	}

	go func() {
		defer pb.finish()
		select {
		case <-pb.eof:
			pb.stream.Drain()
		case <-pb.closed:
		}
	}()
	return nil
}

func (pb *pulsePlayback) Pause() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.started && pb.stream.Running() {
		pb.stream.Pause()
	}
}

func (pb *pulsePlayback) Close() {
	pb.closeOnce.Do(func() {
		pb.Pause()
		close(pb.closed)
		pb.stream.Close()
		pb.finish()
	})
}

func (pb *pulsePlayback) finish() {
	pb.doneOnce.Do(func() { close(pb.done) })
}

func (pb *pulsePlayback) Done() <-chan struct{} { return pb.done }
