// SPDX-License-Identifier: EPL-2.0

package peaks

import (
	"bufio"
	"fmt"
	"os"
)

// Streamer builds the base block of a peakfile while its audio is being
// captured. Only the disk thread that writes the audio may use it.
type Streamer struct {
	f         *os.File
	w         *bufio.Writer
	channels  int
	chunksize int64

	index int64
	peaks []Peak
	enc   []byte
}

// NewStreamer truncates path and writes the header of a single open-ended
// block.
func NewStreamer(path string, channels int, chunksize int64) (*Streamer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating peakfile: %w", err)
	}

	s := &Streamer{
		f:         f,
		w:         bufio.NewWriter(f),
		channels:  channels,
		chunksize: chunksize,
		peaks:     make([]Peak, channels),
	}

	if _, err := s.w.Write(blockHeader{Chunksize: uint32(chunksize)}.encode()); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w", err)
	}
	if err := s.Sync(); err != nil {
		f.Close()
		return nil, err
	}

	return s, nil
}

// Write folds nframes interleaved frames into the running peaks, emitting
// one peak per channel every chunksize frames.
func (s *Streamer) Write(buf []float32, nframes int64) error {
	for i := range nframes {
		frame := buf[int(i)*s.channels:]
		for c := range s.channels {
			v := frame[c]
			if v < s.peaks[c].Min {
				s.peaks[c].Min = v
			}
			if v > s.peaks[c].Max {
				s.peaks[c].Max = v
			}
		}

		s.index++
		if s.index == s.chunksize {
			if err := s.flushPeak(); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Streamer) flushPeak() error {
	s.enc = encodePeaks(s.enc, s.peaks)
	if _, err := s.w.Write(s.enc); err != nil {
		return fmt.Errorf("writing peaks: %w", err)
	}

	for c := range s.peaks {
		s.peaks[c] = Peak{}
	}
	s.index = 0

	return nil
}

// Sync makes everything written so far visible to readers.
func (s *Streamer) Sync() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// Close writes the trailing partial peak and syncs the file to disk.
func (s *Streamer) Close() error {
	defer s.f.Close()

	if s.index > 0 {
		if err := s.flushPeak(); err != nil {
			return err
		}
	}

	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}
