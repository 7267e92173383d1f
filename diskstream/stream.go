// SPDX-License-Identifier: EPL-2.0

package diskstream

import (
	"fmt"
	"sync/atomic"

	"github.com/ik5/audstream/config"
	"github.com/ik5/audstream/internal/metrics"
	"go.uber.org/zap"
)

// transfer is the direction of a stream: what the disk goroutine does
// when woken and when told to stop.
type transfer interface {
	// blockIO moves as many blocks between the rings and the disk as it can.
	blockIO(c *core)
	// flush runs once on the disk goroutine after termination is requested.
	flush(c *core)
}

// core is the state shared by both directions.
type core struct {
	name     string
	channels int
	log      *zap.Logger

	rate            int
	secondsToBuffer float64
	diskIOKBytes    int

	nframes      int64
	totalBlocks  int
	diskIOBlocks int
	rings        []*Ring

	sem       chan struct{}
	done      chan struct{}
	running   atomic.Bool
	terminate atomic.Bool

	// frame is the timeline position of the disk side
	frame atomic.Int64
	xruns atomic.Int64
}

// Stream is the disk thread engine. It owns one ring per channel sized to
// SecondsToBuffer and a goroutine that services them whenever the
// real-time side posts the semaphore.
type Stream[T transfer] struct {
	core
	dir T
}

func newStream[T transfer](name string, channels int, cfg *config.Config, dir T, log *zap.Logger) *Stream[T] {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Stream[T]{
		core: core{
			name:            name,
			channels:        max(channels, 1),
			log:             log.With(zap.String("stream", name)),
			rate:            cfg.SampleRate,
			secondsToBuffer: cfg.SecondsToBuffer,
			diskIOKBytes:    cfg.DiskIOKBytes,
		},
		dir: dir,
	}
	s.resize(int64(cfg.BlockSize))

	return s
}

// resize sizes the rings for blocks of nframes. The ring holds a whole
// number of blocks.
func (c *core) resize(nframes int64) {
	nframes = max(nframes, 1)

	c.nframes = nframes
	c.totalBlocks = max(int(float64(c.rate)*c.secondsToBuffer/float64(nframes)), 1)
	c.diskIOBlocks = max(c.diskIOKBytes*1024/(int(nframes)*c.channels*4), 1)
	c.diskIOBlocks = min(c.diskIOBlocks, c.totalBlocks)

	c.rings = make([]*Ring, c.channels)
	for i := range c.rings {
		c.rings[i] = NewRing(c.totalBlocks * int(nframes))
	}

	c.sem = make(chan struct{}, c.totalBlocks)
}

// post wakes the disk goroutine. It never blocks: a full semaphore
// already guarantees a wake.
func (c *core) post() {
	select {
	case c.sem <- struct{}{}:
	default:
	}
}

// readSpace is the fewest frames waiting in any channel's ring.
func (c *core) readSpace() int64 {
	n := c.rings[0].ReadSpace()
	for _, r := range c.rings[1:] {
		n = min(n, r.ReadSpace())
	}
	return int64(n)
}

// buffered reports whether any channel's ring holds a frame.
func (c *core) buffered() bool {
	for _, r := range c.rings {
		if r.ReadSpace() > 0 {
			return true
		}
	}
	return false
}

// writeSpace is the fewest frames free in any channel's ring.
func (c *core) writeSpace() int64 {
	n := c.rings[0].WriteSpace()
	for _, r := range c.rings[1:] {
		n = min(n, r.WriteSpace())
	}
	return int64(n)
}

func (c *core) xrun() {
	c.xruns.Add(1)
}

// Run starts the disk goroutine.
func (s *Stream[T]) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", s.name, ErrStreamActive)
	}

	s.terminate.Store(false)
	s.done = make(chan struct{})
	metrics.ActiveStreams.Inc()

	// prime the first fill
	s.post()

	go s.loop(s.done)

	s.log.Debug("disk stream started",
		zap.Int64("block_frames", s.nframes),
		zap.Int("total_blocks", s.totalBlocks),
		zap.Int("disk_io_blocks", s.diskIOBlocks))

	return nil
}

func (s *Stream[T]) loop(done chan struct{}) {
	defer close(done)
	defer metrics.ActiveStreams.Dec()

	for range s.sem {
		if s.terminate.Load() {
			s.dir.flush(&s.core)
			return
		}

		s.dir.blockIO(&s.core)
	}
}

// Shutdown stops the disk goroutine and waits for it to flush. It must
// not be called from the real-time thread.
func (s *Stream[T]) Shutdown() {
	if !s.running.Load() {
		return
	}

	s.terminate.Store(true)
	// the goroutine may be mid-block with a full semaphore, so block
	// until the wake lands or the goroutine is gone
	select {
	case s.sem <- struct{}{}:
	case <-s.done:
	}
	<-s.done

	s.running.Store(false)
	s.log.Debug("disk stream stopped", zap.Int64("xruns", s.xruns.Load()))
}

// ResizeBuffers changes the block size. The stream must not be running,
// and the real-time side must not call Process, Idle or SeekPending until
// it returns: the rings are replaced.
func (s *Stream[T]) ResizeBuffers(nframes int64) error {
	if s.running.Load() {
		return fmt.Errorf("%s: resize: %w", s.name, ErrStreamActive)
	}

	s.resize(nframes)
	return nil
}

func (s *Stream[T]) Running() bool { return s.running.Load() }
func (s *Stream[T]) Channels() int { return s.channels }
func (s *Stream[T]) Name() string  { return s.name }

// BlockFrames is the real-time block size the rings are sized for.
func (s *Stream[T]) BlockFrames() int64 { return s.nframes }

// Frame is the timeline position of the disk side of the stream.
func (s *Stream[T]) Frame() int64 { return s.frame.Load() }

// Xruns counts blocks the real-time side could not be served.
func (s *Stream[T]) Xruns() int64 { return s.xruns.Load() }

// BufferPercent is how full the rings are.
func (s *Stream[T]) BufferPercent() int {
	total := int64(s.rings[0].Cap())
	if total == 0 {
		return 0
	}
	return int(s.readSpace() * 100 / total)
}
