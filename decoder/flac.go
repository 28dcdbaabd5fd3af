package decoder

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

type flacStream struct {
	stream *flac.Stream
	closer io.Closer
	shift  int
	queued []int16
	off    int
}

func newFLAC(r io.Reader, closer io.Closer) (*flacStream, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}
	bps := int(stream.Info.BitsPerSample)
	if bps < 8 || bps > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bps)
	}
	if stream.Info.NChannels < 1 || stream.Info.NChannels > 2 {
		return nil, fmt.Errorf("unsupported channel count %d", stream.Info.NChannels)
	}
	return &flacStream{
		stream: stream,
		closer: closer,
		shift:  bps - 16,
	}, nil
}

func (s *flacStream) ReadSamples(buf []int16) (int, error) {
	n := 0
	for n < len(buf) {
		if s.off == len(s.queued) {
			if err := s.nextFrame(); err != nil {
				if errors.Is(err, io.EOF) {
					return n, io.EOF
				}
				return n, fmt.Errorf("flac frame: %w", err)
			}
			continue
		}
		c := copy(buf[n:], s.queued[s.off:])
		s.off += c
		n += c
	}
	return n, nil
}

// nextFrame decodes one frame and interleaves its subframes at 16 bits.
func (s *flacStream) nextFrame() error {
	f, err := s.stream.ParseNext()
	if err != nil {
		return err
	}
	channels := len(f.Subframes)
	blockSize := int(f.BlockSize)
	if cap(s.queued) < blockSize*channels {
		s.queued = make([]int16, blockSize*channels)
	}
	s.queued = s.queued[:blockSize*channels]
	for i := 0; i < blockSize; i++ {
		for ch, sub := range f.Subframes {
			v := sub.Samples[i]
			if s.shift > 0 {
				v >>= s.shift
			} else if s.shift < 0 {
				v <<= -s.shift
			}
			s.queued[i*channels+ch] = int16(v)
		}
	}
	s.off = 0
	return nil
}

func (s *flacStream) SampleRate() int { return int(s.stream.Info.SampleRate) }
func (s *flacStream) Channels() int   { return int(s.stream.Info.NChannels) }

func (s *flacStream) Close() error {
	s.stream.Close()
	return s.closer.Close()
}
