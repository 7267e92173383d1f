// SPDX-License-Identifier: EPL-2.0

package diskstream

import (
	"sync/atomic"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/config"
	"github.com/ik5/audstream/internal/metrics"
	"go.uber.org/zap"
)

// Reader renders interleaved timeline audio, as region.Sequence does.
// It returns the number of frames produced.
type Reader interface {
	Play(buf []float32, pos, nframes int64, channels int) int64
}

// playbackIO fills the rings from a Reader.
//
// A seek is a handshake between the real-time side, which alone may
// empty the rings, and the disk side, which alone may fill them. Seek
// bumps epoch. Process drains once per epoch and acknowledges. The disk
// side moves to the new position only once the drain is acknowledged and
// the rings are empty, then publishes the epoch as applied.
type playbackIO struct {
	reader Reader

	undelay   atomic.Int64
	seekFrame atomic.Int64
	epoch     atomic.Uint64
	ack       atomic.Uint64
	applied   atomic.Uint64

	// disk goroutine only
	buf   []float32
	chbuf []float32
}

func (p *playbackIO) seeking() bool {
	return p.epoch.Load() != p.applied.Load()
}

func (p *playbackIO) blockIO(c *core) {
	if e := p.epoch.Load(); e != p.applied.Load() {
		if p.ack.Load() != e {
			// Process has not drained yet and will post when it has
			return
		}
		if c.buffered() {
			// a block from the old position landed after the drain, in
			// some rings at least
			p.epoch.Add(1)
			return
		}

		c.frame.Store(p.seekFrame.Load())
		p.applied.Store(e)
		c.log.Debug("seek applied", zap.Int64("frame", c.frame.Load()))
	}

	p.fill(c)
}

func (p *playbackIO) fill(c *core) {
	ch := c.channels
	applied := p.applied.Load()

	for {
		space := c.writeSpace() / c.nframes
		if space == 0 {
			return
		}

		blocks := min(space, int64(c.diskIOBlocks))
		n := blocks * c.nframes
		if need := int(n) * ch; cap(p.buf) < need {
			p.buf = make([]float32, need)
			p.chbuf = make([]float32, n)
		}
		buf := p.buf[:int(n)*ch]

		pos := c.frame.Load() + p.undelay.Load()
		got := p.reader.Play(buf, pos, n, ch)
		if got <= 0 {
			c.log.Warn("reader produced nothing", zap.Int64("frame", pos))
			return
		}

		if p.epoch.Load() != applied {
			// a seek arrived while reading; drop the block
			return
		}

		for i, r := range c.rings {
			audio.Deinterleave(p.chbuf, buf, ch, i, int(got))
			r.Write(p.chbuf[:got])
		}

		c.frame.Add(got)
		metrics.DiskReadsTotal.Add(float64(got / c.nframes))
	}
}

// flush has nothing to save on the way out.
func (p *playbackIO) flush(*core) {}

// Playback streams a track's timeline from disk to the real-time thread.
type Playback struct {
	*Stream[*playbackIO]
}

// NewPlayback creates a stopped playback stream reading from r.
func NewPlayback(name string, channels int, cfg *config.Config, r Reader, log *zap.Logger) *Playback {
	return &Playback{newStream(name, channels, cfg, &playbackIO{reader: r}, log)}
}

// Seek moves playback to frame. It is safe to call from the real-time
// thread; the rings refill in the background.
func (p *Playback) Seek(frame int64) {
	p.dir.seekFrame.Store(frame)
	p.dir.epoch.Add(1)
	p.post()
}

// SeekPending reports whether playback is not yet ready to roll: a seek
// is in progress or the rings are less than half full.
func (p *Playback) SeekPending() bool {
	return p.dir.seeking() || p.BufferPercent() < 50
}

// Undelay shifts reads earlier by the output latency compensation.
func (p *Playback) Undelay(frames int64) {
	p.dir.undelay.Store(frames)
}

// Process fills out, one slice per channel, with the next nframes of
// audio. A short ring is an xrun: the rest of the block is silence. It
// returns the frames actually supplied.
func (p *Playback) Process(out [][]float32, nframes int64) int64 {
	if !p.running.Load() {
		silence(out, 0, nframes)
		return 0
	}

	if p.drainForSeek() {
		silence(out, 0, nframes)
		return 0
	}

	// every channel advances by the same amount even while the disk side
	// is between rings
	got := min(p.readSpace(), nframes)
	for i, r := range p.rings {
		if i < len(out) {
			r.Read(out[i][:got])
		} else {
			r.Discard(int(got))
		}
	}
	for _, o := range out[min(len(out), len(p.rings)):] {
		clear(o[:nframes])
	}

	if got < nframes {
		silence(out, got, nframes)
		p.xrun()
		metrics.PlaybackXrunsTotal.Inc()
	}

	p.post()
	return got
}

// Idle is Process for a stopped transport: out gets silence and the
// buffered audio stays put, but a pending seek still makes progress.
func (p *Playback) Idle(out [][]float32, nframes int64) {
	if p.running.Load() {
		p.drainForSeek()
	}
	silence(out, 0, nframes)
}

// drainForSeek empties the rings once per seek and reports whether a seek
// is in progress.
func (p *Playback) drainForSeek() bool {
	d := p.dir
	e := d.epoch.Load()
	if e == d.applied.Load() {
		return false
	}

	if d.ack.Load() != e {
		for _, r := range p.rings {
			r.Discard(r.ReadSpace())
		}
		d.ack.Store(e)
		p.post()
	}

	return true
}

func silence(out [][]float32, from, to int64) {
	for _, o := range out {
		clear(o[from:to])
	}
}
