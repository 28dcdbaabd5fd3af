package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

type wavStream struct {
	r        io.Reader
	closer   io.Closer
	rate     int
	channels int
	bits     int
	raw      []byte
	pending  []byte
}

// newWAV parses the RIFF header up to the data chunk. A data chunk size of 0
// or 0xFFFFFFFF, as written by streaming encoders, means read until EOF.
func newWAV(r io.Reader, closer io.Closer) (*wavStream, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE stream")
	}

	s := &wavStream{closer: closer}
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d", size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != wavFormatPCM && format != wavFormatExtensible {
				return nil, fmt.Errorf("unsupported wav format tag %#x", format)
			}
			s.channels = int(binary.LittleEndian.Uint16(body[2:4]))
			s.rate = int(binary.LittleEndian.Uint32(body[4:8]))
			s.bits = int(binary.LittleEndian.Uint16(body[14:16]))
			if s.bits != 8 && s.bits != 16 {
				return nil, fmt.Errorf("unsupported bit depth %d", s.bits)
			}
			if s.channels < 1 || s.channels > 2 {
				return nil, fmt.Errorf("unsupported channel count %d", s.channels)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			if size == 0 || size == 0xFFFFFFFF {
				s.r = r
			} else {
				s.r = io.LimitReader(r, int64(size))
			}
			return s, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)+int64(size%2)); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

func (s *wavStream) ReadSamples(buf []int16) (int, error) {
	width := s.bits / 8
	need := len(buf)*width - len(s.pending)
	if need < 0 {
		need = 0
	}
	if cap(s.raw) < len(s.pending)+need {
		s.raw = make([]byte, len(s.pending)+need)
	}
	raw := s.raw[:len(s.pending)+need]
	copy(raw, s.pending)

	n, err := io.ReadAtLeast(s.r, raw[len(s.pending):], min(width, need))
	got := len(s.pending) + n
	samples := got / width
	for i := 0; i < samples; i++ {
		if width == 2 {
			buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		} else {
			// 8-bit WAV is unsigned, centred on 128.
			buf[i] = int16(int(raw[i])-128) << 8
		}
	}
	s.pending = append(s.pending[:0], raw[samples*width:got]...)

	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return samples, err
	}
	return samples, nil
}

func (s *wavStream) SampleRate() int { return s.rate }
func (s *wavStream) Channels() int   { return s.channels }
func (s *wavStream) Close() error    { return s.closer.Close() }

// EncodeWAV renders 16-bit PCM as a canonical 44-byte-header WAV file.
func EncodeWAV(samples []int16, rate, channels int) []byte {
	dataLen := len(samples) * 2
	out := make([]byte, 44+dataLen)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(rate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(rate*channels*2))
	binary.LittleEndian.PutUint16(out[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(s))
	}
	return out
}
