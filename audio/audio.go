package audio

import "strings"

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]", "bluez",
}

// IsBluetooth guesses from the device name whether output goes over Bluetooth,
// which adds noticeable latency between the narration and the talking animation.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SampleSource supplies interleaved signed 16-bit samples to a playback.
// It returns io.EOF once the source is exhausted; n may be non-zero alongside it.
type SampleSource interface {
	ReadSamples(buf []int16) (n int, err error)
}

type PlaybackConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context is a connection to the platform audio server. One is shared by the
// whole process; see Shared.
type Context interface {
	Devices() ([]DeviceInfo, error)
	// Resume makes sure the context can render audio. It is called before
	// every narration and is cheap when the context is already running.
	Resume() error
	NewPlayback(device *DeviceInfo, config PlaybackConfig, src SampleSource) (Playback, error)
	Close()
}

type Playback interface {
	Start() error
	// Pause halts output immediately. The source is not read again.
	Pause()
	Close()
	// Done is closed when the source is exhausted and played out, or when
	// the playback is closed.
	Done() <-chan struct{}
}
