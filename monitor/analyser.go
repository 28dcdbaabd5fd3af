package monitor

import (
	"math"
	"sync"
)

const (
	DefaultThreshold = 0.02
	DefaultWindow    = 2048
	DefaultFrameRate = 60

	// silence is the byte value of a zero sample in the unsigned 8-bit
	// time-domain representation.
	silence = 128
)

// Analyser keeps the most recent window of played samples as unsigned 8-bit
// values centred on 128, downmixed to mono.
type Analyser struct {
	mu   sync.Mutex
	ring []byte
	pos  int
}

func NewAnalyser(window int) *Analyser {
	ring := make([]byte, window)
	for i := range ring {
		ring[i] = silence
	}
	return &Analyser{ring: ring}
}

func (a *Analyser) Window() int { return len(a.ring) }

// Write appends interleaved samples with the given channel count. A trailing
// partial frame is ignored.
func (a *Analyser) Write(samples []int16, channels int) {
	if channels < 1 {
		channels = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+channels <= len(samples); i += channels {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i+c])
		}
		a.ring[a.pos] = toByte(sum / channels)
		a.pos++
		if a.pos == len(a.ring) {
			a.pos = 0
		}
	}
}

// TimeDomainData copies the current window into dst, oldest sample first.
// dst shorter than the window receives the newest len(dst) samples.
func (a *Analyser) TimeDomainData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := min(len(dst), len(a.ring))
	start := a.pos - n
	if start < 0 {
		start += len(a.ring)
	}
	c := copy(dst[:n], a.ring[start:])
	if c < n {
		copy(dst[c:n], a.ring[:n-c])
	}
}

func toByte(s int) byte {
	return byte(s>>8 + silence)
}

// RMS is the root mean square of buf after mapping each byte b to
// (b-128)/128.
func RMS(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, b := range buf {
		v := (float64(b) - silence) / silence
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(buf)))
}
