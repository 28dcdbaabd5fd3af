package decoder

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always yields 16-bit little-endian stereo.
const mp3Channels = 2

type mp3Stream struct {
	dec     *mp3.Decoder
	closer  io.Closer
	raw     []byte
	pending []byte
}

func newMP3(r io.Reader, closer io.Closer) (*mp3Stream, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	return &mp3Stream{dec: dec, closer: closer}, nil
}

func (s *mp3Stream) ReadSamples(buf []int16) (int, error) {
	need := len(buf)*2 - len(s.pending)
	if need < 0 {
		need = 0
	}
	if cap(s.raw) < len(s.pending)+need {
		s.raw = make([]byte, len(s.pending)+need)
	}
	raw := s.raw[:len(s.pending)+need]
	copy(raw, s.pending)

	n, err := io.ReadAtLeast(s.dec, raw[len(s.pending):], min(2, need))
	got := len(s.pending) + n
	samples := got / 2
	for i := 0; i < samples; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	s.pending = append(s.pending[:0], raw[samples*2:got]...)

	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return samples, err
	}
	return samples, nil
}

func (s *mp3Stream) SampleRate() int { return s.dec.SampleRate() }
func (s *mp3Stream) Channels() int   { return mp3Channels }
func (s *mp3Stream) Close() error    { return s.closer.Close() }
