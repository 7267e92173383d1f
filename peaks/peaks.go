// SPDX-License-Identifier: EPL-2.0

package peaks

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ik5/audstream/internal/metrics"
	"go.uber.org/zap"
)

// sourceReadFrames bounds one read when peaks are scanned from the audio.
const sourceReadFrames = CacheMinimum * 64

// Peaks manages the peakfile of one audio file: reading it for display,
// building it in the background and streaming it during capture.
type Peaks struct {
	src       Source
	mipmapped bool
	log       *zap.Logger

	firstBlockPending atomic.Bool
	mipmapsPending    atomic.Bool
	rescanNeeded      atomic.Bool
	streamed          atomic.Bool // base block came from a Streamer
	writing           atomic.Bool

	mu       sync.Mutex // peakfile, UI side
	peakfile Peakfile

	wmu      sync.Mutex // streamer, capture disk thread
	streamer *Streamer
}

func New(src Source, mipmapped bool, log *zap.Logger) *Peaks {
	if log == nil {
		log = zap.NewNop()
	}

	return &Peaks{
		src:       src,
		mipmapped: mipmapped,
		log:       log.With(zap.String("peakfile", Path(src.Path()))),
	}
}

func (p *Peaks) Path() string {
	return Path(p.src.Path())
}

// current reports whether the peakfile is at least as new as the audio.
func (p *Peaks) current() bool {
	audio, err := os.Stat(p.src.Path())
	if err != nil {
		return false
	}

	peak, err := os.Stat(p.Path())
	if err != nil {
		return false
	}

	return !peak.ModTime().Before(audio.ModTime())
}

// PeakfileReady reports whether the peakfile can be read. A peakfile that
// is being streamed is always readable; otherwise it must not be older than
// the audio.
func (p *Peaks) PeakfileReady() bool {
	if p.writing.Load() {
		return true
	}

	if p.rescanNeeded.CompareAndSwap(true, false) {
		p.mu.Lock()
		p.peakfile.Rescan()
		p.mu.Unlock()
	}

	return p.current()
}

// open selects the best block for chunksize. Callers hold p.mu.
func (p *Peaks) open(chunksize int64) error {
	// a streamed file grows under us
	if p.writing.Load() {
		p.peakfile.Rescan()
	}

	return p.peakfile.Open(p.Path(), p.src.Channels(), chunksize)
}

// Ready reports whether npeaks peaks at chunksize starting at frame start
// can be served from the peakfile.
func (p *Peaks) Ready(start, npeaks, chunksize int64) bool {
	if !p.PeakfileReady() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.open(chunksize); err != nil {
		return false
	}

	return p.peakfile.Ready(start, npeaks)
}

// ReadPeaks reads npeaks peaks per channel into ctx and returns how many
// were delivered. Chunksizes below CacheMinimum are scanned from the audio.
// A missing or unfinished peakfile delivers nothing.
func (p *Peaks) ReadPeaks(ctx *Context, start, npeaks, chunksize int64) int64 {
	if chunksize < CacheMinimum {
		return p.ReadSourcePeaks(ctx, start, npeaks, chunksize)
	}

	ch := int64(p.src.Channels())
	dst := ctx.grow(int(npeaks * ch))
	ctx.peaks = dst[:0]

	if !p.PeakfileReady() {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.open(chunksize); err != nil {
		if !errors.Is(err, ErrNoPeakBlocks) {
			p.log.Warn("peakfile unreadable", zap.Error(err))
		}
		return 0
	}

	n, err := p.peakfile.ReadPeaks(dst, start, npeaks, chunksize)
	if err != nil {
		p.log.Warn("reading peaks", zap.Error(err))
		return 0
	}

	ctx.peaks = dst[:n*ch]
	return n
}

// ReadSourcePeaks computes peaks straight from the audio.
func (p *Peaks) ReadSourcePeaks(ctx *Context, start, npeaks, chunksize int64) int64 {
	ch := p.src.Channels()
	step := min(chunksize, sourceReadFrames)
	buf := ctx.scratch(int(step) * ch)
	dst := ctx.grow(int(npeaks) * ch)
	part := make([]Peak, ch)

	var i int64
	for ; i < npeaks; i++ {
		out := dst[int(i)*ch : int(i+1)*ch]
		for c := range out {
			out[c] = Peak{}
		}

		base := start + i*chunksize
		var read int64
		for read < chunksize {
			n := p.src.ReadAt(buf, allChannels, base+read, min(step, chunksize-read))
			if n == 0 {
				break
			}

			scan(part, buf, ch, n)
			for c := range out {
				out[c].fold(part[c])
			}
			read += n
		}

		if read == 0 {
			break
		}
	}

	ctx.peaks = dst[:int(i)*ch]
	return i
}

// Pending reports whether a build is in progress.
func (p *Peaks) Pending() bool {
	return p.firstBlockPending.Load() || p.mipmapsPending.Load()
}

// NeedsMorePeaks reports whether a build should be started: the peakfile
// lacks coarse levels and nothing is building or streaming it.
func (p *Peaks) NeedsMorePeaks() bool {
	if p.Pending() || p.writing.Load() {
		return false
	}

	var pf Peakfile
	pf.Open(p.Path(), p.src.Channels(), CacheMinimum)
	nblocks := pf.Blocks()
	pf.Close()

	if !p.mipmapped {
		return nblocks == 0
	}

	return nblocks <= 1
}

func (p *Peaks) begin() bool {
	if p.mipmapsPending.Load() {
		return false
	}
	return p.firstBlockPending.CompareAndSwap(false, true)
}

// MakePeaks builds the peakfile on the calling goroutine.
func (p *Peaks) MakePeaks() error {
	if !p.begin() {
		return ErrBuildPending
	}

	return p.build()
}

// MakePeaksAsync starts a background build and calls done with its result.
// It returns false, and never calls done, if a build is already pending.
func (p *Peaks) MakePeaksAsync(done func(error)) bool {
	if !p.begin() {
		return false
	}

	go func() {
		err := p.build()
		if done != nil {
			done(err)
		}
	}()

	return true
}

func (p *Peaks) build() error {
	b := NewBuilder(p.src, false, p.log)

	var (
		built bool
		err   error
	)

	if p.streamed.Load() && p.current() {
		// the streamer already wrote the base block
		built = true
	} else {
		built, err = b.MakePeaks()
	}
	p.streamed.Store(false)

	if err == nil && built && p.mipmapped {
		p.mipmapsPending.Store(true)
		p.firstBlockPending.Store(false)
		err = b.MakeMipmaps()
		p.mipmapsPending.Store(false)
	}

	p.firstBlockPending.Store(false)
	p.rescanNeeded.Store(true)

	switch {
	case errors.Is(err, ErrCorruptPeakfile):
		metrics.PeakBuildsTotal.WithLabelValues("corrupt").Inc()
		p.log.Error("peak build stopped", zap.Error(err))
	case err != nil:
		metrics.PeakBuildsTotal.WithLabelValues("failed").Inc()
		p.log.Warn("peak build failed", zap.Error(err))
	case built:
		metrics.PeakBuildsTotal.WithLabelValues("built").Inc()
		p.log.Debug("peaks built")
	default:
		metrics.PeakBuildsTotal.WithLabelValues("skipped").Inc()
	}

	return err
}

// PrepareForWriting starts streaming a fresh peakfile for a capture.
func (p *Peaks) PrepareForWriting() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	s, err := NewStreamer(p.Path(), p.src.Channels(), CacheMinimum)
	if err != nil {
		return err
	}

	p.streamer = s
	p.writing.Store(true)

	return nil
}

// Write feeds captured frames to the streamer. Completed peaks are
// readable as soon as it returns.
func (p *Peaks) Write(buf []float32, nframes int64) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	if p.streamer == nil {
		return nil
	}

	if err := p.streamer.Write(buf, nframes); err != nil {
		return err
	}
	return p.streamer.Sync()
}

// FinishWriting closes the streamer. The next read rescans the file.
func (p *Peaks) FinishWriting() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	if p.streamer == nil {
		return nil
	}

	err := p.streamer.Close()
	p.streamer = nil

	p.streamed.Store(err == nil)
	p.writing.Store(false)
	p.rescanNeeded.Store(true)

	return err
}
