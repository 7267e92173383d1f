// SPDX-License-Identifier: EPL-2.0

package region

import (
	"github.com/ik5/audstream/audiofile"
	"github.com/ik5/audstream/peaks"
)

// memFile is an in-memory audiofile.File holding interleaved samples.
type memFile struct {
	channels int
	rate     int
	data     []float32
	length   int64

	opens, closes int
}

func newMemFile(channels, rate int, frames int64, sample func(frame int64, ch int) float32) *memFile {
	m := &memFile{channels: channels, rate: rate, length: frames}
	m.data = make([]float32, frames*int64(channels))
	for i := range frames {
		for c := range channels {
			m.data[i*int64(channels)+int64(c)] = sample(i, c)
		}
	}
	return m
}

// ramp files hold their own frame index, so reads can be checked exactly.
func rampMem(channels int, frames int64) *memFile {
	return newMemFile(channels, 48000, frames, func(f int64, c int) float32 { return float32(f) + float32(c)*0.5 })
}

func constMem(channels, rate int, frames int64, v float32) *memFile {
	return newMemFile(channels, rate, frames, func(int64, int) float32 { return v })
}

func (m *memFile) Open() error  { m.opens++; return nil }
func (m *memFile) Close() error { m.closes++; return nil }
func (m *memFile) Seek(int64)   {}

func (m *memFile) Read(buf []float32, channel int, nframes int64) int64 {
	return 0
}

func (m *memFile) ReadAt(buf []float32, channel int, start, nframes int64) int64 {
	n := min(nframes, m.length-start)
	if n <= 0 || start < 0 {
		return 0
	}

	ch := int64(m.channels)
	copy(buf[:n*ch], m.data[start*ch:(start+n)*ch])
	return n
}

func (m *memFile) Write(_ []float32, nframes int64) int64 { return nframes }
func (m *memFile) Finalize() error                        { return nil }
func (m *memFile) Length() int64                          { return m.length }
func (m *memFile) Channels() int                          { return m.channels }
func (m *memFile) SampleRate() int                        { return m.rate }
func (m *memFile) Path() string                           { return "mem.wav" }
func (m *memFile) Dummy() bool                            { return false }
func (m *memFile) Peaks() *peaks.Peaks                    { return nil }

var _ audiofile.File = (*memFile)(nil)

// rawRegion plays f with no fades, so reads return the file's samples.
func rawRegion(f *memFile, rng Range) *Region {
	r := newRegion(nil, 0, f, rng, nil)
	r.SetFadeIn(Fade{Type: Disabled})
	r.SetFadeOut(Fade{Type: Disabled})
	return r
}
