// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/audstream/utils"
)

// Resampler streams from src to a target sample rate using cubic
// interpolation. Works on interleaved samples; preserves channel count.
// The import path uses it to bring foreign-rate files to the session rate.
type Resampler struct {
	src      Source
	channels int
	srcRate  int64
	dstRate  int
	k        int64 // output frames produced so far

	// window of four consecutive source frames: t-1, t0, t+1, t+2
	win [4][]float32

	t0     int64 // source index of win[1]
	pulled int64 // real frames taken from src so far
	last   int64 // index of the final real frame, -1 while unknown
	primed bool

	in     []float32
	inPos  int
	inLen  int
	srcEOF bool
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()

	r := &Resampler{
		src:      src,
		channels: channels,
		dstRate:  dstRate,
		srcRate:  int64(src.SampleRate()),
		last:     -1,
		in:       make([]float32, 4096-4096%channels),
	}

	for i := range r.win {
		r.win[i] = make([]float32, channels)
	}

	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

// pull copies the next source frame into dst. It reports false once the
// source is exhausted.
func (r *Resampler) pull(dst []float32) (bool, error) {
	for r.inPos >= r.inLen {
		if r.srcEOF {
			return false, nil
		}

		n, err := r.src.ReadSamples(r.in)
		r.inPos, r.inLen = 0, n-n%r.channels

		if errors.Is(err, io.EOF) {
			r.srcEOF = true
		} else if err != nil {
			return false, fmt.Errorf("%w", err)
		} else if n == 0 {
			r.srcEOF = true
		}
	}

	copy(dst, r.in[r.inPos:r.inPos+r.channels])
	r.inPos += r.channels
	r.pulled++

	return true, nil
}

// fill loads the frame after win[2] into win[3], repeating win[2] past the end.
func (r *Resampler) fill() error {
	ok, err := r.pull(r.win[3])
	if err != nil {
		return err
	}

	if !ok {
		if r.last < 0 {
			r.last = r.pulled - 1
		}
		copy(r.win[3], r.win[2])
	}

	return nil
}

func (r *Resampler) prime() error {
	ok, err := r.pull(r.win[1])
	if err != nil {
		return err
	}
	if !ok {
		return io.EOF
	}

	copy(r.win[0], r.win[1])

	ok, err = r.pull(r.win[2])
	if err != nil {
		return err
	}
	if !ok {
		r.last = 0
		copy(r.win[2], r.win[1])
	}

	if err := r.fill(); err != nil {
		return err
	}

	r.primed = true
	return nil
}

func (r *Resampler) shift() error {
	r.win[0], r.win[1], r.win[2], r.win[3] = r.win[1], r.win[2], r.win[3], r.win[0]
	r.t0++

	return r.fill()
}

// ReadSamples produces samples at the target rate.
// dst length should be a multiple of the channel count.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
	}

	n := 0
	for n < len(dst) {
		// exact rational position of output frame k in the source
		num := r.k * r.srcRate
		idx := num / int64(r.dstRate)
		x := float32(num%int64(r.dstRate)) / float32(r.dstRate)

		for r.t0 < idx {
			if err := r.shift(); err != nil {
				return n, err
			}
		}

		if r.last >= 0 && r.t0 > r.last {
			return n, io.EOF
		}

		for c := range r.channels {
			dst[n+c] = utils.CubicInterpolate(r.win[0][c], r.win[1][c], r.win[2][c], r.win[3][c], x)
		}

		n += r.channels
		r.k++
	}

	return n, nil
}
