// Package beep plays the short cues that accompany a weather lookup.
package beep

import (
	"io"
	"math"
	"sync"
	"sync/atomic"

	"sunnyside/audio"
	"sunnyside/log"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const (
	sampleRate = 44100

	// Ready chime: two rising notes
	readyLowFreq  = 880
	readyHighFreq = 1320
	readyVolume   = 0.4
	readyDecay    = 25

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	readySamples []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSound() {
	readySamples = append(generateTick(sampleRate, readyLowFreq, 0.09, readyVolume, readyDecay),
		generateTick(sampleRate, readyHighFreq, 0.14, readyVolume, readyDecay)...)
	errorSamples = generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

func generateTick(sampleRate int, freq float64, duration float64, volume float64, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq float64, beepDur float64, gapDur float64, volume float64, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

type sliceSource struct {
	samples []int16
	pos     int
}

func (s *sliceSource) ReadSamples(buf []int16) (int, error) {
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(buf, s.samples[s.pos:])
	s.pos += n
	return n, nil
}

// play starts samples on the shared context and returns without waiting.
func play(samples []int16) {
	if disabled.Load() || len(samples) == 0 {
		return
	}
	ctx, err := audio.Shared()
	if err != nil {
		log.Debugf("beep: %v", err)
		return
	}
	pb, err := ctx.NewPlayback(audio.OutputDevice(), audio.PlaybackConfig{SampleRate: sampleRate, Channels: 1}, &sliceSource{samples: samples})
	if err != nil {
		log.Debugf("beep: %v", err)
		return
	}
	if err := pb.Start(); err != nil {
		log.Debugf("beep: %v", err)
		pb.Close()
		return
	}
	go func() {
		<-pb.Done()
		pb.Close()
	}()
}

func Init() {
	soundOnce.Do(initSound)
}

func PlayReady() {
	soundOnce.Do(initSound)
	play(readySamples)
}

func PlayError() {
	soundOnce.Do(initSound)
	play(errorSamples)
}

// Sounds adapts the package functions to the widget's cue interface.
type Sounds struct{}

func (Sounds) Ready()  { PlayReady() }
func (Sounds) Failed() { PlayError() }
