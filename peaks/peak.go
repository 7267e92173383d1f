// SPDX-License-Identifier: EPL-2.0

package peaks

import (
	"encoding/binary"
	"io"
	"math"
)

const (
	// CacheMinimum is the chunksize of the base block.
	CacheMinimum = 256
	// CacheLevels is the number of blocks a complete peakfile holds.
	CacheLevels = 8
	// CacheStep is the power-of-two shift between consecutive levels.
	CacheStep = 1

	// allChannels asks a Source for interleaved frames.
	allChannels = -1

	headerSize = 8
	peakSize   = 8
)

// Source is the audio a peakfile summarizes.
type Source interface {
	// ReadAt reads nframes starting at start into buf and returns the
	// number of frames read. channel -1 means all channels interleaved.
	ReadAt(buf []float32, channel int, start, nframes int64) int64
	Length() int64
	Channels() int
	Path() string
}

// Peak is the min/max summary of one chunk of one channel.
type Peak struct {
	Min, Max float32
}

// NormalizationFactor is the gain that brings the larger of |Min| and |Max|
// to full scale. Silence yields 1.
func (p Peak) NormalizationFactor() float32 {
	m := max(float32(math.Abs(float64(p.Min))), float32(math.Abs(float64(p.Max))))
	if m == 0 {
		return 1
	}
	return 1 / m
}

// Path returns the peakfile path for an audio file.
func Path(audioPath string) string {
	return audioPath + ".peak"
}

// fold widens dst to cover src.
func (p *Peak) fold(src Peak) {
	if src.Min < p.Min {
		p.Min = src.Min
	}
	if src.Max > p.Max {
		p.Max = src.Max
	}
}

// scan accumulates nframes interleaved frames into one peak per channel.
// Peaks start at zero, so a chunk that never crosses zero still includes it.
func scan(dst []Peak, buf []float32, channels int, nframes int64) {
	for c := range channels {
		dst[c] = Peak{}
	}

	for i := range nframes {
		frame := buf[int(i)*channels:]
		for c := range channels {
			v := frame[c]
			if v < dst[c].Min {
				dst[c].Min = v
			}
			if v > dst[c].Max {
				dst[c].Max = v
			}
		}
	}
}

func encodePeaks(dst []byte, peaks []Peak) []byte {
	dst = dst[:0]
	for _, p := range peaks {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(p.Min))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(p.Max))
	}
	return dst
}

func decodePeaks(dst []Peak, raw []byte) {
	for i := range dst {
		b := raw[i*peakSize:]
		dst[i] = Peak{
			Min: math.Float32frombits(binary.LittleEndian.Uint32(b)),
			Max: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		}
	}
}

type blockHeader struct {
	Chunksize uint32
	Skip      uint32
}

func (h blockHeader) encode() []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b, h.Chunksize)
	binary.LittleEndian.PutUint32(b[4:], h.Skip)
	return b
}

func readHeader(r io.ReaderAt, off int64) (blockHeader, error) {
	var b [headerSize]byte
	if _, err := r.ReadAt(b[:], off); err != nil {
		return blockHeader{}, err
	}

	return blockHeader{
		Chunksize: binary.LittleEndian.Uint32(b[:]),
		Skip:      binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// Context is the scratch space for peak reads issued by one UI thread.
// It must not be shared with disk or real-time code.
type Context struct {
	peaks  []Peak
	frames []float32
}

func NewContext() *Context {
	return &Context{}
}

// Peaks returns the result of the last ReadPeaks call made with c.
func (c *Context) Peaks() []Peak {
	return c.peaks
}

func (c *Context) grow(n int) []Peak {
	if cap(c.peaks) < n {
		c.peaks = make([]Peak, n)
	}
	c.peaks = c.peaks[:n]
	return c.peaks
}

func (c *Context) scratch(n int) []float32 {
	if cap(c.frames) < n {
		c.frames = make([]float32, n)
	}
	return c.frames[:n]
}
