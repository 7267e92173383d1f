// SPDX-License-Identifier: EPL-2.0

package diskstream

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/config"
	"github.com/ik5/audstream/internal/metrics"
	"go.uber.org/zap"
)

// Capturer is the track side of a recording: it owns the capture file and
// the region growing over it.
type Capturer interface {
	// StartCapture creates the capture file and a region anchored at frame.
	StartCapture(frame int64) error
	// WriteCapture appends nframes interleaved frames.
	WriteCapture(buf []float32, nframes int64) int64
	// FinalizeCapture closes the file and fixes the region's length.
	// frame is the transport position at the stop.
	FinalizeCapture(frame int64) error
}

// recordIO drains the rings into a Capturer.
type recordIO struct {
	capturer Capturer

	start atomic.Int64
	stop  atomic.Int64

	// disk goroutine only
	buf   []float32
	chbuf []float32
	err   error
}

func (r *recordIO) blockIO(c *core) {
	r.write(c, false)
}

// write moves whole blocks, or everything when flushing, from the rings
// to the capturer.
func (r *recordIO) write(c *core, flushing bool) {
	ch := c.channels
	limit := int64(c.diskIOBlocks) * c.nframes

	for {
		n := min(c.readSpace(), limit)
		if !flushing {
			n -= n % c.nframes
		}
		if n == 0 {
			return
		}

		if need := int(n) * ch; cap(r.buf) < need {
			r.buf = make([]float32, need)
			r.chbuf = make([]float32, n)
		}
		buf := r.buf[:int(n)*ch]

		for i, ring := range c.rings {
			ring.Read(r.chbuf[:n])
			audio.Interleave(buf, r.chbuf, ch, i, int(n))
		}

		if w := r.capturer.WriteCapture(buf, n); w != n {
			c.log.Warn("short capture write", zap.Int64("frames", n), zap.Int64("written", w))
		}
		c.frame.Add(n)
	}
}

func (r *recordIO) flush(c *core) {
	r.write(c, true)

	stop := r.stop.Load()
	if stop == math.MaxInt64 {
		stop = c.frame.Load()
	}

	if err := r.capturer.FinalizeCapture(stop); err != nil {
		r.err = fmt.Errorf("%s: finalizing capture: %w", c.name, err)
		c.log.Error("capture finalize failed", zap.Error(err))
	}
}

// Record streams a track's input from the real-time thread to disk.
type Record struct {
	*Stream[*recordIO]
}

// NewRecord creates an idle record stream writing through c.
func NewRecord(name string, channels int, cfg *config.Config, c Capturer, log *zap.Logger) *Record {
	return &Record{newStream(name, channels, cfg, &recordIO{capturer: c}, log)}
}

// Start begins capturing. Only input between startFrame and stopFrame is
// kept; a stopFrame of 0 leaves the end open. frame is the transport
// position now.
func (r *Record) Start(frame, startFrame, stopFrame int64) error {
	if r.Running() {
		return fmt.Errorf("%s: start: %w", r.name, ErrStreamActive)
	}
	if r.dir.capturer == nil {
		return ErrNoCapturer
	}

	if stopFrame == 0 {
		stopFrame = math.MaxInt64
	}

	if err := r.dir.capturer.StartCapture(startFrame); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}

	for _, ring := range r.rings {
		ring.Discard(ring.ReadSpace())
	}
	r.dir.err = nil
	r.dir.start.Store(startFrame)
	r.dir.stop.Store(stopFrame)
	r.frame.Store(max(frame, startFrame))

	r.log.Info("capture started",
		zap.Int64("frame", frame),
		zap.Int64("start", startFrame),
		zap.Int64("stop", stopFrame))

	return r.Run()
}

// Stop ends the capture at frame, unless an earlier stop was set, writes
// out what is buffered and finalizes the capture. It blocks until the
// disk goroutine is done.
func (r *Record) Stop(frame int64) error {
	if !r.Running() {
		return nil
	}

	if frame < r.dir.stop.Load() {
		r.dir.stop.Store(frame)
	}

	r.Shutdown()
	r.log.Info("capture stopped", zap.Int64("frame", frame), zap.Int64("xruns", r.Xruns()))

	return r.dir.err
}

// StopFrame is where input stops being kept, math.MaxInt64 when open.
func (r *Record) StopFrame() int64 {
	return r.dir.stop.Load()
}

// Process takes one block of input, one slice per channel, that the
// transport played at transportFrame. Only frames inside the capture
// window are kept. When the rings are short of room the block is an xrun
// and only its head is kept. It returns the frames kept.
func (r *Record) Process(in [][]float32, transportFrame, nframes int64) int64 {
	if !r.running.Load() {
		return 0
	}

	lo := max(transportFrame, r.dir.start.Load())
	hi := min(transportFrame+nframes, r.dir.stop.Load())
	if hi <= lo {
		return 0
	}

	off := lo - transportFrame
	n := hi - lo

	if space := r.writeSpace(); space < n {
		r.xrun()
		metrics.CaptureXrunsTotal.Inc()
		if space == 0 {
			return 0
		}
		n = space
	}

	for i, ring := range r.rings {
		if i < len(in) {
			ring.Write(in[i][off : off+n])
		} else {
			writeSilence(ring, n)
		}
	}

	r.post()
	return n
}

var zeros [1024]float32

func writeSilence(r *Ring, n int64) {
	for n > 0 {
		w := int64(r.Write(zeros[:min(n, int64(len(zeros)))]))
		if w == 0 {
			return
		}
		n -= w
	}
}
