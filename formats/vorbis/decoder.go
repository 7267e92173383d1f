// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ik5/audstream/audio"
	"github.com/jfreymuth/oggvorbis"
)

// oggReader is an interface for oggvorbis.Reader to allow testing
type oggReader interface {
	SampleRate() int
	Channels() int
	Length() int64
	SetPosition(pos int64) error
	Read([]float32) (int, error)
}

type source struct {
	dec        oggReader
	sampleRate int
	channels   int
	frames     int64
	pos        int64
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return 4096 }
func (s *source) Frames() int64   { return s.frames }

func (s *source) SeekFrame(frame int64) error {
	if frame < 0 || frame > s.frames {
		return audio.ErrSeekOutOfRange
	}

	if err := s.dec.SetPosition(frame); err != nil {
		return fmt.Errorf("%w", err)
	}
	s.pos = frame

	return nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	want := len(dst) - len(dst)%s.channels
	if want == 0 {
		return 0, nil
	}

	// oggvorbis returns values, always a multiple of the channel count
	n, err := s.dec.Read(dst[:want])
	s.pos += int64(n / s.channels)

	if err == nil && s.pos >= s.frames {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w", err)
	}

	return n, err
}

type Decoder struct{}

// Decode returns a seekable source. oggvorbis knows the stream length only
// over an io.ReadSeeker, so other inputs are read into memory first.
func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	if _, ok := r.(io.ReadSeeker); !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading vorbis data: %w", err)
		}
		r = bytes.NewReader(data)
	}

	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	return newSource(dec), nil
}

func newSource(dec oggReader) *source {
	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		channels:   dec.Channels(),
		frames:     dec.Length(),
	}
}
