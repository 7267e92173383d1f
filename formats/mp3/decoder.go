// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/utils"
)

// go-mp3 always decodes to 16-bit little-endian stereo.
const (
	channels   = 2
	frameBytes = 4
)

// mp3Reader is an interface for gomp3.Decoder to allow testing
type mp3Reader interface {
	Read([]byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Length() int64
	SampleRate() int
}

type source struct {
	dec        mp3Reader
	sampleRate int
	frames     int64
	pos        int64
	buf        []byte
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return cap(s.buf) / 2 } // return sample capacity, not bytes
func (s *source) Frames() int64   { return s.frames }

func (s *source) SeekFrame(frame int64) error {
	if frame < 0 || frame > s.frames {
		return audio.ErrSeekOutOfRange
	}

	if _, err := s.dec.Seek(frame*frameBytes, io.SeekStart); err != nil {
		return fmt.Errorf("%w", err)
	}
	s.pos = frame

	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	frames := len(dst) / channels
	if frames == 0 {
		return 0, nil
	}

	need := frames * frameBytes
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	// go-mp3 may hand back partial samples; ReadFull keeps frames whole
	n, err := io.ReadFull(s.dec, s.buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	} else if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w", err)
	}

	got := n / frameBytes
	samples := got * channels
	for i := range samples {
		v := int16(uint16(s.buf[2*i]) | uint16(s.buf[2*i+1])<<8)
		dst[i] = utils.PCMToFloat32(int(v), 16)
	}
	s.pos += int64(got)

	if err == nil && s.pos >= s.frames {
		err = io.EOF
	}

	return samples, err
}

type Decoder struct{}

// Decode returns a seekable source. go-mp3 can only report its length and
// seek over an io.Seeker, so other inputs are read into memory first.
func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	if _, ok := r.(io.Seeker); !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading mp3 data: %w", err)
		}
		r = bytes.NewReader(data)
	}

	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	return newSource(dec), nil
}

func newSource(dec mp3Reader) *source {
	frames := dec.Length() / frameBytes
	if frames < 0 {
		frames = 0
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		frames:     frames,
		buf:        make([]byte, 8192),
	}
}
