// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/audstream/utils"
)

// Writer appends interleaved float samples to a PCM WAV file. The header
// sizes are patched by Close.
type Writer struct {
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer
	channels int
	bitDepth int
	frames   int64
	closed   bool
}

// NewWriter starts a PCM WAV stream on ws. bitDepth must be 16, 24 or 32.
func NewWriter(ws io.WriteSeeker, sampleRate, channels, bitDepth int) (*Writer, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, ErrUnsupportedBitDepth
	}

	if channels < 1 {
		return nil, ErrUnsupportedWavLayout
	}

	return &Writer{
		enc: wav.NewEncoder(ws, sampleRate, bitDepth, channels, formatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		channels: channels,
		bitDepth: bitDepth,
	}, nil
}

func (w *Writer) Channels() int { return w.channels }
func (w *Writer) BitDepth() int { return w.bitDepth }

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int64 { return w.frames }

// Write encodes whole frames from src and returns how many were written.
func (w *Writer) Write(src []float32) (int64, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}

	samples := len(src) - len(src)%w.channels
	if samples == 0 {
		return 0, nil
	}

	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]

	for i, v := range src[:samples] {
		w.buf.Data[i] = utils.Float32ToPCM(v, w.bitDepth)
	}

	if err := w.enc.Write(w.buf); err != nil {
		return 0, fmt.Errorf("%w", err)
	}

	n := int64(samples / w.channels)
	w.frames += n

	return n, nil
}

// Close finalizes the header. It does not close the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}
