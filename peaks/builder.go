// SPDX-License-Identifier: EPL-2.0

package peaks

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Builder writes a complete peakfile for a finished source: the base block
// from a scan of the audio, then one coarser block per level.
type Builder struct {
	src       Source
	path      string
	mipmapped bool
	log       *zap.Logger

	f            *os.File
	w            *bufio.Writer
	pos          int64 // end of written data
	lastBlockPos int64 // -1 before the first header
	enc          []byte
}

func NewBuilder(src Source, mipmapped bool, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}

	return &Builder{
		src:       src,
		path:      Path(src.Path()),
		mipmapped: mipmapped,
		log:       log,
	}
}

// MakePeaks builds the peakfile. It reports false without touching the file
// when a complete build is already on disk.
func (b *Builder) MakePeaks() (bool, error) {
	var pf Peakfile
	err := pf.Open(b.path, b.src.Channels(), CacheMinimum)
	nblocks := pf.Blocks()
	pf.Close()

	if errors.Is(err, ErrCorruptPeakfile) {
		return false, err
	}
	if nblocks > 1 {
		return false, nil
	}

	if err := b.makeBase(); err != nil {
		b.abort()
		return false, err
	}

	if b.mipmapped {
		if err := b.makeMipmaps(); err != nil {
			b.abort()
			return false, err
		}
	}

	if err := b.finish(); err != nil {
		return false, err
	}

	return true, nil
}

// MakeMipmaps appends the coarse levels to a peakfile whose base block is
// already complete, such as one written by a Streamer.
func (b *Builder) MakeMipmaps() error {
	f, err := os.OpenFile(b.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening peakfile: %w", err)
	}

	var pf Peakfile
	if err := pf.Open(b.path, b.src.Channels(), CacheMinimum); err != nil {
		f.Close()
		return err
	}
	nblocks := pf.Blocks()
	pf.Close()

	if nblocks > 1 {
		f.Close()
		return nil
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w", err)
	}

	b.f = f
	b.w = bufio.NewWriter(f)
	b.pos = end
	b.lastBlockPos = 0

	if err := b.makeMipmaps(); err != nil {
		b.abort()
		return err
	}

	return b.finish()
}

func (b *Builder) prepareForWriting() error {
	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("creating peakfile: %w", err)
	}

	b.f = f
	b.w = bufio.NewWriter(f)
	b.pos = 0
	b.lastBlockPos = -1

	return nil
}

// writeBlockHeader starts a new block, pointing the previous header's skip
// at it.
func (b *Builder) writeBlockHeader(chunksize int64) error {
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("%w", err)
	}

	if b.lastBlockPos >= 0 {
		skip := blockHeader{Skip: uint32(b.pos - b.lastBlockPos)}.encode()
		if _, err := b.f.WriteAt(skip[4:], b.lastBlockPos+4); err != nil {
			return fmt.Errorf("patching block header: %w", err)
		}
	}

	if _, err := b.w.Write(blockHeader{Chunksize: uint32(chunksize)}.encode()); err != nil {
		return fmt.Errorf("%w", err)
	}

	b.lastBlockPos = b.pos
	b.pos += headerSize

	return nil
}

func (b *Builder) writePeaks(p []Peak) error {
	b.enc = encodePeaks(b.enc, p)
	if _, err := b.w.Write(b.enc); err != nil {
		return fmt.Errorf("writing peaks: %w", err)
	}
	b.pos += int64(len(b.enc))

	return nil
}

func (b *Builder) makeBase() error {
	if err := b.prepareForWriting(); err != nil {
		return err
	}

	if err := b.writeBlockHeader(CacheMinimum); err != nil {
		return err
	}

	channels := b.src.Channels()
	length := b.src.Length()
	buf := make([]float32, CacheMinimum*channels)
	peaks := make([]Peak, channels)

	for s := int64(0); s < length; {
		n := b.src.ReadAt(buf, allChannels, s, CacheMinimum)
		if n == 0 {
			break
		}

		scan(peaks, buf, channels, n)
		if err := b.writePeaks(peaks); err != nil {
			return err
		}
		s += n
	}

	return nil
}

func (b *Builder) makeMipmaps() error {
	channels := b.src.Channels()
	length := b.src.Length()
	peaks := make([]Peak, channels)

	cs := int64(CacheMinimum << CacheStep)
	for i := 1; i < CacheLevels; i, cs = i+1, cs<<CacheStep {
		if length/cs < 1 {
			break
		}

		// the previous level must be on disk before it is read back
		if err := b.w.Flush(); err != nil {
			return fmt.Errorf("%w", err)
		}

		var pf Peakfile
		if err := pf.Open(b.path, channels, cs>>CacheStep); err != nil {
			return fmt.Errorf("reopening level %d: %w", i-1, err)
		}

		if err := b.writeBlockHeader(cs); err != nil {
			pf.Close()
			return err
		}

		for s := int64(0); s < length; s += cs {
			n, err := pf.ReadPeaks(peaks, s, 1, cs)
			if err != nil {
				pf.Close()
				return err
			}
			if n == 0 {
				break
			}

			if err := b.writePeaks(peaks); err != nil {
				pf.Close()
				return err
			}
		}

		pf.Close()
		b.log.Debug("peak level written", zap.String("path", b.path), zap.Int64("chunksize", cs))
	}

	return nil
}

func (b *Builder) finish() error {
	defer func() { b.f, b.w = nil, nil }()

	if err := b.w.Flush(); err != nil {
		b.f.Close()
		return fmt.Errorf("%w", err)
	}
	if err := b.f.Sync(); err != nil {
		b.f.Close()
		return fmt.Errorf("%w", err)
	}

	return b.f.Close()
}

// abort removes a partial peakfile so the next build starts clean.
func (b *Builder) abort() {
	if b.f == nil {
		return
	}

	b.f.Close()
	b.f, b.w = nil, nil

	if err := os.Remove(b.path); err != nil {
		b.log.Warn("removing partial peakfile", zap.String("path", b.path), zap.Error(err))
	}
}
