// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"
)

// BufferSource is a SeekableSource over interleaved samples held in memory.
// Codecs without cheap random access are loaded into one of these.
type BufferSource struct {
	data       []float32
	sampleRate int
	channels   int
	pos        int // in samples
}

// NewBufferSource wraps data, which must hold whole frames for channels.
func NewBufferSource(data []float32, sampleRate, channels int) *BufferSource {
	if channels < 1 {
		channels = 1
	}

	return &BufferSource{
		data:       data[:len(data)-len(data)%channels],
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Load drains src into memory and closes it.
func Load(src Source) (*BufferSource, error) {
	defer src.Close()

	size := src.BufSize()
	if size < src.Channels() {
		size = 4096
	}
	size -= size % src.Channels()

	buf := make([]float32, size)
	var data []float32

	for {
		n, err := src.ReadSamples(buf)
		data = append(data, buf[:n]...)

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loading source: %w", err)
		}
		if n == 0 {
			break
		}
	}

	return NewBufferSource(data, src.SampleRate(), src.Channels()), nil
}

func (b *BufferSource) SampleRate() int { return b.sampleRate }
func (b *BufferSource) Channels() int   { return b.channels }
func (b *BufferSource) BufSize() int    { return 4096 }
func (b *BufferSource) Close() error    { return nil }

func (b *BufferSource) Frames() int64 { return int64(len(b.data) / b.channels) }

// Samples exposes the backing slice; callers must not modify it.
func (b *BufferSource) Samples() []float32 { return b.data }

func (b *BufferSource) SeekFrame(frame int64) error {
	if frame < 0 || frame > b.Frames() {
		return ErrSeekOutOfRange
	}

	b.pos = int(frame) * b.channels
	return nil
}

func (b *BufferSource) ReadSamples(dst []float32) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}

	want := len(dst) - len(dst)%b.channels
	n := copy(dst[:want], b.data[b.pos:])
	b.pos += n

	if b.pos >= len(b.data) {
		return n, io.EOF
	}

	return n, nil
}
