// SPDX-License-Identifier: EPL-2.0

package region

import (
	"fmt"
	"sync"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/audiofile"
	"github.com/ik5/audstream/internal/metrics"
	"github.com/ik5/audstream/peaks"
	"go.uber.org/zap"
)

// Region plays a Range of an audio file on the timeline with gain, an
// optional loop and fades at both edges.
//
// The mutex guards the range and the playback parameters. Read takes a
// snapshot under the read lock, so edits and capture growth never tear a
// block being composited.
type Region struct {
	tbl    *audiofile.Table
	handle audiofile.Handle
	file   audiofile.File
	log    *zap.Logger

	mu      sync.RWMutex
	rng     Range
	scale   float32
	loop    int64
	fadeIn  Fade
	fadeOut Fade

	// scratch is only touched by Read, which runs on one disk thread
	scratch []float32
}

func newRegion(tbl *audiofile.Table, h audiofile.Handle, f audiofile.File, rng Range, log *zap.Logger) *Region {
	if log == nil {
		log = zap.NewNop()
	}

	return &Region{
		tbl:     tbl,
		handle:  h,
		file:    f,
		log:     log.With(zap.String("file", f.Path())),
		rng:     rng,
		scale:   1,
		fadeIn:  DefaultFade,
		fadeOut: DefaultFade,
	}
}

// New creates a region playing the whole of the file behind h, starting
// at timeline frame start. The region takes over the caller's reference
// to h and gives it back in Release.
func New(tbl *audiofile.Table, h audiofile.Handle, start int64, log *zap.Logger) (*Region, error) {
	f, ok := tbl.Get(h)
	if !ok {
		return nil, fmt.Errorf("region at %d: %w", start, ErrUnknownHandle)
	}

	return newRegion(tbl, h, f, Range{Start: start, Length: f.Length()}, log), nil
}

// NewCapture creates the empty region a capture grows into. Its length
// follows Write until Finalize fixes it from the file.
func NewCapture(tbl *audiofile.Table, h audiofile.Handle, start int64, log *zap.Logger) (*Region, error) {
	f, ok := tbl.Get(h)
	if !ok {
		return nil, fmt.Errorf("capture region at %d: %w", start, ErrUnknownHandle)
	}

	return newRegion(tbl, h, f, Range{Start: start}, log), nil
}

// Release gives the region's file reference back to the table.
func (r *Region) Release() {
	if r.tbl != nil {
		r.tbl.Release(r.handle)
	}
}

func (r *Region) File() audiofile.File     { return r.file }
func (r *Region) Handle() audiofile.Handle { return r.handle }

func (r *Region) Range() Range {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rng
}

func (r *Region) SetRange(rng Range) {
	r.mu.Lock()
	r.rng = rng
	r.mu.Unlock()
}

func (r *Region) Start() int64  { return r.Range().Start }
func (r *Region) Length() int64 { return r.Range().Length }
func (r *Region) End() int64    { return r.Range().End() }

func (r *Region) Scale() float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scale
}

func (r *Region) SetScale(scale float32) {
	r.mu.Lock()
	r.scale = scale
	r.mu.Unlock()
}

// Loop is the loop length in frames, 0 when the region does not loop.
func (r *Region) Loop() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loop
}

func (r *Region) SetLoop(frames int64) {
	r.mu.Lock()
	r.loop = max(frames, 0)
	r.mu.Unlock()
}

func (r *Region) FadeIn() Fade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fadeIn
}

func (r *Region) SetFadeIn(f Fade) {
	r.mu.Lock()
	r.fadeIn = f
	r.mu.Unlock()
}

func (r *Region) FadeOut() Fade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fadeOut
}

func (r *Region) SetFadeOut(f Fade) {
	r.mu.Lock()
	r.fadeOut = f
	r.mu.Unlock()
}

// Trim moves one edge of the region to frame f. Neither edge may cross
// the other, the left edge stays within the source and, unless the region
// loops, so does the right edge.
func (r *Region) Trim(edge Direction, f int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if edge == In {
		r.rng.TrimLeft(f)
		return
	}

	if r.loop == 0 {
		if n := r.file.Length(); n > 0 {
			f = min(f, r.rng.Start-r.rng.Offset+n)
		}
	}
	r.rng.TrimRight(f)
}

// Split cuts the region at timeline frame where. The receiver keeps the
// left part and the returned region, which holds its own reference to
// the file, plays the right part.
func (r *Region) Split(where int64) (*Region, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if where <= r.rng.Start || where >= r.rng.End() {
		return nil, fmt.Errorf("split at %d of [%d, %d): %w", where, r.rng.Start, r.rng.End(), ErrSplitOutside)
	}

	h := r.handle
	if r.tbl != nil {
		h = r.tbl.Duplicate(r.handle)
	}

	right := newRegion(r.tbl, h, r.file, r.rng, r.log)
	right.scale = r.scale
	right.loop = r.loop
	right.fadeIn = r.fadeIn
	right.fadeOut = r.fadeOut

	r.rng.TrimRight(where)
	right.rng.TrimLeft(where)

	return right, nil
}

// Normalize sets the gain so the loudest sample of the region reaches
// full scale. It reports false when no peaks could be had, leaving the
// gain untouched.
func (r *Region) Normalize(ctx *peaks.Context) bool {
	p := r.file.Peaks()
	if p == nil {
		return false
	}

	rng := r.Range()
	if rng.Length <= 0 {
		return false
	}

	n := p.ReadPeaks(ctx, rng.Offset, 1, rng.Length)
	if n == 0 {
		n = p.ReadSourcePeaks(ctx, rng.Offset, 1, rng.Length)
	}
	if n == 0 {
		return false
	}

	var loudest peaks.Peak
	for _, pk := range ctx.Peaks() {
		loudest.Min = min(loudest.Min, pk.Min)
		loudest.Max = max(loudest.Max, pk.Max)
	}

	r.SetScale(loudest.NormalizationFactor())
	return true
}

// Write extends a capture region by nframes just written to its file.
func (r *Region) Write(nframes int64) int64 {
	r.mu.Lock()
	r.rng.Length += nframes
	r.mu.Unlock()

	return nframes
}

// Finalize ends a capture. The length is taken from the file, which is
// the only count that survives punch and transport repositioning, and
// the file is reopened for reading. frame is the transport position at
// the stop and is only logged.
func (r *Region) Finalize(frame int64) error {
	r.mu.Lock()
	grown := r.rng.Length
	r.rng.Length = r.file.Length()
	length := r.rng.Length
	r.mu.Unlock()

	r.log.Debug("capture finalized",
		zap.Int64("stop_frame", frame),
		zap.Int64("written", grown),
		zap.Int64("length", length))

	if err := r.file.Close(); err != nil {
		return fmt.Errorf("closing capture: %w", err)
	}
	if err := r.file.Open(); err != nil {
		return fmt.Errorf("reopening capture: %w", err)
	}

	return nil
}

type seamCase int

const (
	// seamNone: the block holds no loop boundary.
	seamNone seamCase = iota
	// seamSplice: the boundary falls strictly inside the block and inside
	// the region, so the block is two reads.
	seamSplice
	// seamAtRegionEdge: the boundary is also the end of the region.
	seamAtRegionEdge
	// seamBeyondRegion: the boundary is past the end of the region, as on
	// the last iteration of a loop.
	seamBeyondRegion
)

func analyzeSeam(seam, bS, bE, rE int64) seamCase {
	switch {
	case seam <= bS || seam >= bE:
		return seamNone
	case seam == rE:
		return seamAtRegionEdge
	case seam > rE:
		return seamBeyondRegion
	default:
		return seamSplice
	}
}

func (r *Region) cbuf(n int) []float32 {
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	b := r.scratch[:n]
	clear(b)
	return b
}

// Read composites the part of the region overlapping timeline frames
// [pos, pos+nframes) into the interleaved buf of channels channels and
// returns the number of region frames read. bufIsEmpty says buf holds
// only zeros, in which case the region overwrites rather than mixes.
// Source channels beyond the buffer's are dropped; buffer channels beyond
// the source's are left alone.
func (r *Region) Read(buf []float32, bufIsEmpty bool, pos, nframes int64, channels int) int64 {
	r.mu.RLock()
	rng, scale, loop, fadeIn, fadeOut := r.rng, r.scale, r.loop, r.fadeIn, r.fadeOut
	r.mu.RUnlock()

	rS := rng.Start
	rE := rng.End()
	bS := pos
	bE := pos + nframes

	if bS > rE || bE < rS {
		return 0
	}

	var sO, bO int64
	if bS < rS {
		bO = rS - bS
	} else {
		sO = bS - rS
	}

	cnt := nframes
	if bE > rE {
		cnt = nframes - (bE - rE)
	}
	cnt -= bO
	length := cnt

	if bO >= nframes || length <= 0 {
		return 0
	}

	clipch := r.file.Channels()
	ch := int64(clipch)

	direct := bufIsEmpty && channels == clipch

	var cbuf []float32
	if direct {
		cbuf = buf[:nframes*ch]
	} else {
		cbuf = r.cbuf(int(nframes * ch))
	}

	dc := declick(r.file.SampleRate())

	if loop > 0 {
		if loop < nframes {
			r.log.Warn("loop is shorter than the block",
				zap.Int64("loop", loop),
				zap.Int64("frames", nframes))
			metrics.LoopOverrunsTotal.Inc()
		}

		lO := sO % loop
		nth := sO / loop
		seamL := rS + nth*loop
		seamR := rS + (nth+1)*loop

		if analyzeSeam(seamR, bS, bE, rE) == seamSplice {
			first := (seamR - bS) - bO
			cnt = r.file.ReadAt(cbuf[ch*bO:], audiofile.AllChannels, rng.Offset+lO, first)
			cnt += r.file.ReadAt(cbuf[ch*(bO+cnt):], audiofile.AllChannels, rng.Offset, length-cnt)
		} else {
			cnt = r.file.ReadAt(cbuf[ch*bO:], audiofile.AllChannels, rng.Offset+lO, cnt)
		}

		for _, seam := range [2]int64{seamL, seamR} {
			if seam == rS || seam == rE {
				continue
			}

			if fadeOut.Type != Disabled && seam >= bS && seam <= bE+dc.Length {
				applyFade(cbuf, clipch, dc, bS, bE, seam, Out)
			}
			if fadeIn.Type != Disabled && seam <= bE && seam+dc.Length >= bS {
				applyFade(cbuf, clipch, dc, bS, bE, seam, In)
			}
		}
	} else {
		cnt = r.file.ReadAt(cbuf[ch*bO:], audiofile.AllChannels, sO+rng.Offset, length)
	}

	if cnt == 0 {
		return 0
	}

	// the whole block, so the gain loop never has to find the region
	audio.ApplyGain(cbuf, scale)

	if fadeIn.Type != Disabled {
		fade := Longer(dc, fadeIn)
		if sO < fade.Length {
			applyFade(cbuf, clipch, fade, bS, bE, rS, In)
		}
	}

	if fadeOut.Type != Disabled {
		fade := Longer(dc, fadeOut)
		if sO+cnt+fade.Length > rng.Length {
			applyFade(cbuf, clipch, fade, bS, bE, rE, Out)
		}
	}

	if !direct {
		n := int(nframes)
		for i := range min(channels, clipch) {
			if bufIsEmpty {
				audio.InterleavedCopy(buf, cbuf, i, i, channels, clipch, n)
			} else {
				audio.InterleavedMix(buf, cbuf, i, i, channels, clipch, n)
			}
		}
	}

	return cnt
}
