// Package decoder turns a narration HTTP body into interleaved signed 16-bit
// PCM. WAV, FLAC and MP3 are supported.
package decoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
)

type Format string

const (
	WAV  Format = "wav"
	FLAC Format = "flac"
	MP3  Format = "mp3"
)

var ErrUnknownFormat = errors.New("decoder: unknown audio format")

// Stream is a decoded audio stream.
type Stream interface {
	// ReadSamples fills buf with interleaved samples. It returns io.EOF at
	// the end of the stream; n may be non-zero alongside it.
	ReadSamples(buf []int16) (n int, err error)
	SampleRate() int
	Channels() int
	Close() error
}

var contentTypes = map[string]Format{
	"audio/wav":      WAV,
	"audio/wave":     WAV,
	"audio/x-wav":    WAV,
	"audio/vnd.wave": WAV,
	"audio/flac":     FLAC,
	"audio/x-flac":   FLAC,
	"audio/mpeg":     MP3,
	"audio/mp3":      MP3,
	"audio/mpeg3":    MP3,
	"audio/x-mpeg-3": MP3,
}

const sniffLen = 12

// Detect picks the format from the Content-Type header, falling back to the
// leading bytes of the stream.
func Detect(contentType string, head []byte) (Format, error) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if f, ok := contentTypes[mt]; ok {
			return f, nil
		}
	}
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return WAV, nil
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FLAC, nil
	case bytes.HasPrefix(head, []byte("ID3")):
		return MP3, nil
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return MP3, nil
	}
	return "", ErrUnknownFormat
}

// Open detects the format of rc and returns a decoder over it. Closing the
// returned Stream closes rc. On error rc is closed.
func Open(rc io.ReadCloser, contentType string) (Stream, error) {
	br := bufio.NewReaderSize(rc, 16<<10)
	head, err := br.Peek(sniffLen)
	if err != nil && len(head) == 0 {
		rc.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoder: empty stream")
		}
		return nil, fmt.Errorf("decoder: %w", err)
	}

	format, err := Detect(contentType, head)
	if err != nil {
		rc.Close()
		return nil, err
	}

	var s Stream
	switch format {
	case WAV:
		s, err = newWAV(br, rc)
	case FLAC:
		s, err = newFLAC(br, rc)
	case MP3:
		s, err = newMP3(br, rc)
	}
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("decoder: %s: %w", format, err)
	}
	return s, nil
}
