// SPDX-License-Identifier: EPL-2.0

package audiofile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/formats/wav"
	"github.com/ik5/audstream/peaks"
	"go.uber.org/zap"
)

// codecFile reads through a decoder from the registry, or writes a capture
// through the WAV writer. The mutex guards the cursor and the codec state.
type codecFile struct {
	path     string
	registry *audio.Registry
	log      *zap.Logger

	mu      sync.Mutex
	f       *os.File
	src     audio.SeekableSource
	w       *wav.Writer
	pos     int64 // -1 when the decoder position is unknown
	scratch []float32

	channels   int
	sampleRate int
	length     atomic.Int64

	peaks *peaks.Peaks
}

func newCodecFile(path string, registry *audio.Registry, mipmapped bool, log *zap.Logger) *codecFile {
	if log == nil {
		log = zap.NewNop()
	}

	c := &codecFile{
		path:     path,
		registry: registry,
		log:      log.With(zap.String("path", path)),
	}
	c.peaks = peaks.New(c, mipmapped, log)

	return c
}

// create starts a capture file in PCM WAV and prepares its peak streamer.
func create(path string, channels, sampleRate, bitDepth int, registry *audio.Registry, mipmapped bool, log *zap.Logger) (*codecFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}

	w, err := wav.NewWriter(f, sampleRate, channels, bitDepth)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("creating capture file: %w", err)
	}

	c := newCodecFile(path, registry, mipmapped, log)
	c.f = f
	c.w = w
	c.channels = channels
	c.sampleRate = sampleRate

	if err := c.peaks.PrepareForWriting(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	return c, nil
}

func (c *codecFile) Path() string        { return c.path }
func (c *codecFile) Channels() int       { return c.channels }
func (c *codecFile) SampleRate() int     { return c.sampleRate }
func (c *codecFile) Length() int64       { return c.length.Load() }
func (c *codecFile) Dummy() bool         { return false }
func (c *codecFile) Peaks() *peaks.Peaks { return c.peaks }

func (c *codecFile) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src != nil || c.w != nil {
		return nil
	}

	dec, ok := c.registry.ForPath(c.path)
	if !ok {
		return fmt.Errorf("%s: %w", c.path, ErrUnsupportedFormat)
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	src, err := dec.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decoding %s: %w", c.path, err)
	}

	seekable, ok := src.(audio.SeekableSource)
	if !ok || seekable.Frames() < 0 {
		src.Close()
		f.Close()
		return fmt.Errorf("%s: %w", c.path, audio.ErrNotSeekable)
	}

	c.f = f
	c.src = seekable
	c.pos = 0
	c.channels = seekable.Channels()
	c.sampleRate = seekable.SampleRate()
	c.length.Store(seekable.Frames())

	return nil
}

func (c *codecFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w != nil {
		return c.finalizeLocked()
	}

	if c.src == nil {
		return nil
	}

	c.src.Close()
	err := c.f.Close()
	c.src, c.f = nil, nil

	return err
}

func (c *codecFile) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w == nil {
		return nil
	}

	return c.finalizeLocked()
}

func (c *codecFile) finalizeLocked() error {
	var errs []error

	errs = append(errs, c.w.Close())
	errs = append(errs, c.f.Sync())
	errs = append(errs, c.f.Close())
	c.w, c.f = nil, nil

	// the peakfile must end up newer than the audio
	errs = append(errs, c.peaks.FinishWriting())

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("finalizing %s: %w", c.path, err)
	}

	return nil
}

func (c *codecFile) Seek(frame int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seekLocked(frame)
}

func (c *codecFile) seekLocked(frame int64) bool {
	if c.src == nil {
		return false
	}

	if frame == c.pos {
		return true
	}

	if err := c.src.SeekFrame(frame); err != nil {
		c.pos = -1
		if !errors.Is(err, audio.ErrSeekOutOfRange) {
			c.log.Warn("seek failed", zap.Int64("frame", frame), zap.Error(err))
		}
		return false
	}
	c.pos = frame

	return true
}

func (c *codecFile) Read(buf []float32, channel int, nframes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readLocked(buf, channel, nframes)
}

func (c *codecFile) ReadAt(buf []float32, channel int, start, nframes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seekLocked(start) {
		return 0
	}

	return c.readLocked(buf, channel, nframes)
}

func (c *codecFile) readLocked(buf []float32, channel int, nframes int64) int64 {
	if c.src == nil || nframes <= 0 || c.pos < 0 {
		return 0
	}

	if nframes > InsaneReadFrames {
		c.log.Warn("insane read length", zap.Int64("frames", nframes))
	}

	ch := int64(c.channels)

	var dst []float32
	if channel == AllChannels {
		dst = buf[:nframes*ch]
	} else {
		if int64(cap(c.scratch)) < nframes*ch {
			c.scratch = make([]float32, nframes*ch)
		}
		dst = c.scratch[:nframes*ch]
	}

	got := 0
	for got < len(dst) {
		n, err := c.src.ReadSamples(dst[got:])
		got += n

		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Warn("read failed", zap.Int64("frame", c.pos), zap.Error(err))
				c.pos = -1
				return 0
			}
			break
		}
		if n == 0 {
			break
		}
	}

	frames := int64(got) / ch
	if channel != AllChannels {
		for i := range frames {
			buf[i] = dst[i*ch+int64(channel)]
		}
	}
	c.pos += frames

	return frames
}

func (c *codecFile) Write(buf []float32, nframes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w == nil {
		return 0
	}

	if err := c.peaks.Write(buf, nframes); err != nil {
		c.log.Warn("peak streamer write failed", zap.Error(err))
	}

	n, err := c.w.Write(buf[:nframes*int64(c.channels)])
	if err != nil {
		c.log.Warn("capture write failed", zap.Error(err))
	}
	c.length.Add(n)

	return n
}
