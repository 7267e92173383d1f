// SPDX-License-Identifier: EPL-2.0

package audstream

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/audiofile"
	"github.com/ik5/audstream/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Session ties tracks, files and the transport together. Captures are
// written into its directory.
//
// Process, ProcessInput, ProcessOutput, Seek and SeekPending are the
// real-time entry points: they never lock and never block. Everything
// else belongs on the UI or a worker thread.
type Session struct {
	dir      string
	cfg      *config.Config
	log      *zap.Logger
	registry *audio.Registry
	files    *audiofile.Table

	transport Transport

	// mu serializes track list edits and record/stop; the real-time side
	// reads the list through tracks
	mu     sync.Mutex
	tracks atomic.Pointer[[]*Track]
	closed bool
}

// New creates an empty session writing into dir. A nil cfg loads the
// configuration from the environment.
func New(dir string, cfg *config.Config, log *zap.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.Load()
	}
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session directory: %w", err)
	}

	registry := audiofile.DefaultRegistry()
	s := &Session{
		dir:      dir,
		cfg:      cfg,
		log:      log,
		registry: registry,
		files:    audiofile.NewTable(registry, cfg.SampleRate, cfg.MipmappedPeakfiles, log),
	}
	s.tracks.Store(&[]*Track{})

	log.Info("session opened",
		zap.String("dir", dir),
		zap.Int("sample_rate", cfg.SampleRate),
		zap.Int("block_size", cfg.BlockSize),
		zap.String("capture_format", cfg.CaptureFormat))

	return s, nil
}

func (s *Session) Dir() string             { return s.dir }
func (s *Session) Config() *config.Config  { return s.cfg }
func (s *Session) Files() *audiofile.Table { return s.files }
func (s *Session) Transport() *Transport   { return &s.transport }
func (s *Session) SampleRate() int         { return s.cfg.SampleRate }
func (s *Session) Tracks() []*Track        { return *s.tracks.Load() }

// AddTrack creates a track and starts its playback stream.
func (s *Session) AddTrack(name string, channels int) (*Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	old := *s.tracks.Load()
	if slices.ContainsFunc(old, func(t *Track) bool { return t.name == name }) {
		return nil, fmt.Errorf("%s: %w", name, ErrDuplicateTrack)
	}

	t := newTrack(s, name, channels)
	t.Seek(s.transport.Frame())
	if err := t.playback.Run(); err != nil {
		return nil, err
	}

	tracks := append(slices.Clone(old), t)
	s.tracks.Store(&tracks)

	s.log.Info("track added", zap.String("track", name), zap.Int("channels", channels))
	return t, nil
}

// RemoveTrack stops t's streams and releases its regions.
func (s *Session) RemoveTrack(t *Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.tracks.Load()
	i := slices.Index(old, t)
	if i < 0 {
		return nil
	}

	tracks := slices.Delete(slices.Clone(old), i, i+1)
	s.tracks.Store(&tracks)

	return t.shutdown()
}

// Track returns the track called name.
func (s *Session) Track(name string) (*Track, bool) {
	for _, t := range s.Tracks() {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// Record starts capturing on every armed track. With punch enabled the
// capture is confined to the punch range the transport is in, or the
// next one.
func (s *Session) Record() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.transport.Recording() {
		return ErrRecording
	}

	frame := s.transport.Frame()
	start, stop := s.transport.punchWindow(frame)

	var started []*Track
	for _, t := range s.Tracks() {
		if !t.Armed() {
			continue
		}

		if err := t.record.Start(frame, start, stop); err != nil {
			for _, st := range started {
				if serr := st.record.Stop(frame); serr != nil {
					err = errors.Join(err, serr)
				}
			}
			return fmt.Errorf("record: %w", err)
		}
		started = append(started, t)
	}

	s.transport.setRecording(true)
	s.log.Info("recording",
		zap.Int64("frame", frame),
		zap.Int64("punch_in", start),
		zap.Int64("punch_out", stop),
		zap.Int("tracks", len(started)))

	return nil
}

// Stop ends recording at the transport position. The record streams are
// flushed and joined concurrently.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.punchOut(s.transport.Frame())
}

func (s *Session) punchOut(frame int64) error {
	if !s.transport.Recording() {
		return nil
	}
	s.transport.setRecording(false)

	var g errgroup.Group
	for _, t := range s.Tracks() {
		if !t.record.Running() {
			continue
		}
		g.Go(func() error {
			return t.record.Stop(frame)
		})
	}

	err := g.Wait()
	s.log.Info("recording stopped", zap.Int64("frame", frame), zap.Error(err))

	return err
}

// ProcessInput feeds every armed track's input block to its record
// stream while recording.
func (s *Session) ProcessInput(nframes int64) {
	if !s.transport.Recording() {
		return
	}

	frame := s.transport.Frame()
	for _, t := range s.Tracks() {
		if t.Armed() {
			t.ProcessInput(frame, nframes)
		}
	}
}

// ProcessOutput renders every track's output block. A stopped transport
// yields silence and leaves the playback buffers alone, though seeks
// still complete.
func (s *Session) ProcessOutput(nframes int64) {
	rolling := s.transport.Rolling()
	for _, t := range s.Tracks() {
		if rolling {
			t.ProcessOutput(nframes)
		} else {
			t.idle(nframes)
		}
	}
}

// Process runs one real-time block: input, output, then the transport
// moves on if it is rolling.
func (s *Session) Process(nframes int64) {
	s.ProcessInput(nframes)
	s.ProcessOutput(nframes)

	if s.transport.Rolling() {
		s.transport.advance(nframes)
	}
}

// Seek relocates the transport and every playback stream.
func (s *Session) Seek(frame int64) {
	s.transport.Locate(frame)
	for _, t := range s.Tracks() {
		t.Seek(frame)
	}
}

// SeekPending reports whether any playback stream is still seeking or
// less than half full.
func (s *Session) SeekPending() bool {
	for _, t := range s.Tracks() {
		if t.playback.SeekPending() {
			return true
		}
	}
	return false
}

// ResizeBuffers changes the block size of every track. It fails while
// recording. Like a buffer-size change on the audio device, it must run
// while the real-time callback is not, since ports and rings are
// reallocated.
func (s *Session) ResizeBuffers(nframes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport.Recording() {
		return ErrRecording
	}

	for _, t := range s.Tracks() {
		if err := t.ResizeBuffers(nframes); err != nil {
			return err
		}
	}
	s.cfg.BlockSize = int(nframes)

	return nil
}

func (s *Session) TotalPlaybackXruns() int64 {
	var n int64
	for _, t := range s.Tracks() {
		n += t.playback.Xruns()
	}
	return n
}

func (s *Session) TotalCaptureXruns() int64 {
	var n int64
	for _, t := range s.Tracks() {
		n += t.record.Xruns()
	}
	return n
}

// InputBufferPercent is the mean fill of the record streams.
func (s *Session) InputBufferPercent() int {
	tracks := s.Tracks()
	if len(tracks) == 0 {
		return 0
	}

	total := 0
	for _, t := range tracks {
		total += t.record.BufferPercent()
	}
	return total / len(tracks)
}

// OutputBufferPercent is the mean fill of the playback streams.
func (s *Session) OutputBufferPercent() int {
	tracks := s.Tracks()
	if len(tracks) == 0 {
		return 0
	}

	total := 0
	for _, t := range tracks {
		total += t.playback.BufferPercent()
	}
	return total / len(tracks)
}

// BuildPeaks starts background peak builds for every file that needs
// them and returns how many were started. done, if not nil, is called
// once per build.
func (s *Session) BuildPeaks(done func(path string, err error)) int {
	started := 0

	for _, f := range s.files.Files() {
		if f.Dummy() || f.Length() == 0 {
			continue
		}

		p := f.Peaks()
		if p == nil || !p.NeedsMorePeaks() {
			continue
		}

		path := f.Path()
		ok := p.MakePeaksAsync(func(err error) {
			if err != nil {
				s.log.Warn("peak build failed", zap.String("path", path), zap.Error(err))
			}
			if done != nil {
				done(path, err)
			}
		})
		if ok {
			started++
		}
	}

	return started
}

// Shutdown stops recording, every stream and releases every file.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	errs := []error{s.punchOut(s.transport.Frame())}
	for _, t := range s.Tracks() {
		errs = append(errs, t.shutdown())
	}
	s.tracks.Store(&[]*Track{})

	s.log.Info("session closed")
	return errors.Join(errs...)
}
