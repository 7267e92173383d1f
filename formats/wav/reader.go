// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/utils"
)

const (
	formatPCM   = 1
	formatFloat = 3
)

// Reader is a seekable WAV source. The header is parsed by go-audio/wav;
// sample data is then read straight from the data chunk so that any frame
// can be reached with a single seek.
type Reader struct {
	rs         io.ReadSeeker
	sampleRate int
	channels   int
	bitDepth   int
	float      bool

	dataStart  int64
	frameBytes int64
	frames     int64
	pos        int64 // next frame to read
	synced     bool  // rs is positioned at pos

	raw []byte
}

// NewReader parses the WAV header of rs and positions it at the first frame.
func NewReader(rs io.ReadSeeker) (*Reader, error) {
	dec := wav.NewDecoder(rs)

	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotWavFile, err)
	}
	if dec.NumChans < 1 || dec.SampleRate == 0 {
		return nil, ErrNotWavFile
	}

	float := false
	switch dec.WavAudioFormat {
	case formatPCM:
		switch dec.BitDepth {
		case 8, 16, 24, 32:
		default:
			return nil, ErrUnsupportedBitDepth
		}
	case formatFloat:
		if dec.BitDepth != 32 {
			return nil, ErrUnsupportedBitDepth
		}
		float = true
	default:
		return nil, ErrUnsupportedEncoding
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedWavLayout, err)
	}

	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	r := &Reader{
		rs:         rs,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
		float:      float,
		dataStart:  start,
		frameBytes: int64(dec.NumChans) * int64(dec.BitDepth/8),
	}

	// A capture that was never closed has a zero data size in its header;
	// trust the file size in that case and whenever the header overstates it.
	avail := end - start
	size := int64(dec.PCMSize)
	if size <= 0 || size > avail {
		size = avail
	}
	r.frames = size / r.frameBytes

	return r, nil
}

func (r *Reader) SampleRate() int { return r.sampleRate }
func (r *Reader) Channels() int   { return r.channels }
func (r *Reader) BitDepth() int   { return r.bitDepth }
func (r *Reader) BufSize() int    { return 4096 }
func (r *Reader) Close() error    { return nil }
func (r *Reader) Frames() int64   { return r.frames }

func (r *Reader) SeekFrame(frame int64) error {
	if frame < 0 || frame > r.frames {
		return audio.ErrSeekOutOfRange
	}

	if frame != r.pos {
		r.pos = frame
		r.synced = false
	}

	return nil
}

func (r *Reader) ReadSamples(dst []float32) (int, error) {
	frames := int64(len(dst) / r.channels)
	if left := r.frames - r.pos; frames > left {
		frames = left
	}
	if frames <= 0 {
		return 0, io.EOF
	}

	if !r.synced {
		if _, err := r.rs.Seek(r.dataStart+r.pos*r.frameBytes, io.SeekStart); err != nil {
			return 0, fmt.Errorf("%w", err)
		}
		r.synced = true
	}

	need := int(frames * r.frameBytes)
	if cap(r.raw) < need {
		r.raw = make([]byte, need)
	}
	raw := r.raw[:need]

	n, err := io.ReadFull(r.rs, raw)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		r.synced = false
		return 0, fmt.Errorf("%w", err)
	}

	got := int64(n) / r.frameBytes
	samples := int(got) * r.channels
	r.decode(dst[:samples], raw)
	r.pos += got

	if got < frames || r.pos >= r.frames {
		return samples, io.EOF
	}

	return samples, nil
}

func (r *Reader) decode(dst []float32, raw []byte) {
	width := r.bitDepth / 8

	for i := range dst {
		b := raw[i*width : i*width+width]

		switch {
		case r.float:
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case width == 1:
			// 8-bit WAV is unsigned
			dst[i] = utils.PCMToFloat32(int(b[0])-128, 8)
		case width == 2:
			dst[i] = utils.PCMToFloat32(int(int16(binary.LittleEndian.Uint16(b))), 16)
		case width == 3:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			v = (v << 8) >> 8
			dst[i] = utils.PCMToFloat32(int(v), 24)
		default:
			dst[i] = utils.PCMToFloat32(int(int32(binary.LittleEndian.Uint32(b))), 32)
		}
	}
}
