//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

// Resume is a no-op; miniaudio devices are started individually.
func (m *malgoContext) Resume() error { return nil }

func (m *malgoContext) NewPlayback(device *DeviceInfo, config PlaybackConfig, src SampleSource) (Playback, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Playback.DeviceID = devID.Pointer()
	}

	pb := &malgoPlayback{
		src:  src,
		done: make(chan struct{}),
	}
	callbacks := malgo.DeviceCallbacks{
		Data: pb.dataCallback,
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	pb.device = dev
	return pb, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoPlayback struct {
	device *malgo.Device
	src    SampleSource

	// buf and ended are only touched from the device callback.
	buf   []int16
	ended bool

	mu       sync.Mutex
	paused   bool
	done     chan struct{}
	doneOnce sync.Once
}

func (pb *malgoPlayback) dataCallback(pOutput, _ []byte, frameCount uint32) {
	want := len(pOutput) / 2
	written := 0
	if !pb.ended {
		if cap(pb.buf) < want {
			pb.buf = make([]int16, want)
		}
		buf := pb.buf[:want]
		for written < want {
			n, err := pb.src.ReadSamples(buf[written:])
			written += n
			if err != nil {
				// io.EOF or a broken stream both end playback.
				pb.ended = true
				// The device cannot be stopped from inside its own callback.
				go pb.finish()
				break
			}
			if n == 0 {
				break
			}
		}
		for i := 0; i < written; i++ {
			binary.LittleEndian.PutUint16(pOutput[i*2:], uint16(buf[i]))
		}
	}

	// Zero-fill remainder
	for i := written * 2; i < len(pOutput); i++ {
		pOutput[i] = 0
	}
}

func (pb *malgoPlayback) Start() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.paused = false
	return pb.device.Start()
}

func (pb *malgoPlayback) Pause() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.paused {
		pb.paused = true
		pb.device.Stop()
	}
}

func (pb *malgoPlayback) Close() {
	pb.Pause()
	pb.finish()
}

func (pb *malgoPlayback) finish() {
	pb.doneOnce.Do(func() {
		pb.Pause()
		pb.device.Uninit()
		close(pb.done)
	})
}

func (pb *malgoPlayback) Done() <-chan struct{} { return pb.done }
