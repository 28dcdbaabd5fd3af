package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

type trackingCloser struct {
	io.Reader
	closed bool
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return nil
}

func ramp(n, channels int) []int16 {
	out := make([]int16, n*channels)
	for i := range out {
		out[i] = int16((i * 97) % 20000)
	}
	return out
}

func readAll(t *testing.T, s Stream, chunk int) []int16 {
	t.Helper()
	var out []int16
	buf := make([]int16, chunk)
	for {
		n, err := s.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadSamples: %v", err)
		}
	}
}

func encodeFLAC(t *testing.T, samples []int16, rate int) []byte {
	t.Helper()
	const blockSize = 1024
	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(rate),
		NChannels:     1,
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		t.Fatal(err)
	}
	for off := 0; off < len(samples); off += blockSize {
		block := samples[off:min(off+blockSize, len(samples))]
		samples32 := make([]int32, len(block))
		for i, s := range block {
			samples32[i] = int32(s)
		}
		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     uint16(len(block)),
				SampleRate:    uint32(rate),
				Channels:      frame.ChannelsMono,
				BitsPerSample: 16,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples32,
				NSamples:  len(block),
			}},
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	wav := EncodeWAV(nil, 8000, 1)
	tests := []struct {
		name        string
		contentType string
		head        []byte
		want        Format
		wantErr     bool
	}{
		{"content type wins", "audio/flac", wav, FLAC, false},
		{"content type with params", "audio/wav; codecs=1", nil, WAV, false},
		{"mpeg content type", "audio/mpeg", nil, MP3, false},
		{"sniff riff", "application/octet-stream", wav[:12], WAV, false},
		{"sniff flac", "", []byte("fLaC\x00\x00\x00\x22"), FLAC, false},
		{"sniff id3", "", []byte("ID3\x04\x00"), MP3, false},
		{"sniff mpeg sync", "", []byte{0xFF, 0xFB, 0x90, 0x00}, MP3, false},
		{"json error body", "application/json", []byte(`{"detail":"x"}`), "", true},
		{"short riff", "", []byte("RIFF"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.contentType, tt.head)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFormat) {
					t.Fatalf("err = %v, want ErrUnknownFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := ramp(3001, 2)
	rc := &trackingCloser{Reader: bytes.NewReader(EncodeWAV(samples, 22050, 2))}

	s, err := Open(rc, "audio/wav")
	if err != nil {
		t.Fatal(err)
	}
	if s.SampleRate() != 22050 || s.Channels() != 2 {
		t.Fatalf("format = %d Hz x%d", s.SampleRate(), s.Channels())
	}
	// Odd chunk size exercises the partial-sample carry.
	got := readAll(t, s, 333)
	if len(got) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !rc.closed {
		t.Error("body not closed")
	}
}

func TestWAVSkipsUnknownChunksAndStreamsUnsizedData(t *testing.T) {
	samples := ramp(100, 1)
	canonical := EncodeWAV(samples, 16000, 1)

	var b bytes.Buffer
	b.Write(canonical[:12])
	b.WriteString("LIST")
	binary.Write(&b, binary.LittleEndian, uint32(3))
	b.Write([]byte{1, 2, 3, 0}) // odd size is padded
	b.Write(canonical[12:36])
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(0xFFFFFFFF))
	b.Write(canonical[44:])

	s, err := Open(io.NopCloser(&b), "")
	if err != nil {
		t.Fatal(err)
	}
	got := readAll(t, s, 64)
	if len(got) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(samples))
	}
}

func TestWAV8Bit(t *testing.T) {
	hdr := EncodeWAV(nil, 8000, 1)
	binary.LittleEndian.PutUint16(hdr[32:34], 1)
	binary.LittleEndian.PutUint16(hdr[34:36], 8)
	binary.LittleEndian.PutUint32(hdr[40:44], 3)
	data := append(hdr, 0, 128, 255)

	s, err := Open(io.NopCloser(bytes.NewReader(data)), "")
	if err != nil {
		t.Fatal(err)
	}
	got := readAll(t, s, 16)
	want := []int16{-32768, 0, 127 << 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWAVRejectsFloat(t *testing.T) {
	data := EncodeWAV(ramp(10, 1), 8000, 1)
	binary.LittleEndian.PutUint16(data[20:22], 3)
	rc := &trackingCloser{Reader: bytes.NewReader(data)}
	if _, err := Open(rc, ""); err == nil {
		t.Fatal("expected error for IEEE float wav")
	}
	if !rc.closed {
		t.Error("body not closed on error")
	}
}

func TestFLACDecode(t *testing.T) {
	samples := ramp(2500, 1)
	data := encodeFLAC(t, samples, 24000)

	s, err := Open(io.NopCloser(bytes.NewReader(data)), "application/octet-stream")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.SampleRate() != 24000 || s.Channels() != 1 {
		t.Fatalf("format = %d Hz x%d", s.SampleRate(), s.Channels())
	}
	got := readAll(t, s, 700)
	if len(got) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestOpenEmptyStream(t *testing.T) {
	rc := &trackingCloser{Reader: bytes.NewReader(nil)}
	if _, err := Open(rc, "audio/wav"); err == nil {
		t.Fatal("expected error for empty body")
	}
	if !rc.closed {
		t.Error("body not closed on error")
	}
}

func TestOpenUnknownFormat(t *testing.T) {
	_, err := Open(io.NopCloser(bytes.NewReader([]byte("<html>oops</html>"))), "text/html")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}
