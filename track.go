// SPDX-License-Identifier: EPL-2.0

package audstream

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ik5/audstream/audiofile"
	"github.com/ik5/audstream/diskstream"
	"github.com/ik5/audstream/region"
	"go.uber.org/zap"
)

// Track is one lane of the timeline: a sequence of regions, a playback
// stream that renders it and a record stream that captures into it.
//
// The host writes a block of input into Input() before ProcessInput and
// reads Output() after ProcessOutput.
type Track struct {
	name     string
	channels int
	session  *Session
	log      *zap.Logger

	seq      *region.Sequence
	playback *diskstream.Playback
	record   *diskstream.Record
	armed    atomic.Bool

	in, out [][]float32

	// capture is touched by the record stream's Capturer calls, which run
	// on its disk goroutine, and by Start on the UI thread.
	capMu   sync.Mutex
	capture *region.Region
	capFile audiofile.File
}

func newTrack(s *Session, name string, channels int) *Track {
	t := &Track{
		name:     name,
		channels: channels,
		session:  s,
		log:      s.log.With(zap.String("track", name)),
	}

	t.seq = region.NewSequence(t.log)
	t.playback = diskstream.NewPlayback(name, channels, s.cfg, t.seq, t.log)
	t.record = diskstream.NewRecord(name, channels, s.cfg, t, t.log)
	t.allocPorts(int64(s.cfg.BlockSize))

	return t
}

func (t *Track) allocPorts(nframes int64) {
	t.in = make([][]float32, t.channels)
	t.out = make([][]float32, t.channels)
	for i := range t.channels {
		t.in[i] = make([]float32, nframes)
		t.out[i] = make([]float32, nframes)
	}
}

func (t *Track) Name() string                   { return t.name }
func (t *Track) Channels() int                  { return t.channels }
func (t *Track) Sequence() *region.Sequence     { return t.seq }
func (t *Track) Playback() *diskstream.Playback { return t.playback }
func (t *Track) Record() *diskstream.Record     { return t.record }
func (t *Track) Input() [][]float32             { return t.in }
func (t *Track) Output() [][]float32            { return t.out }
func (t *Track) Armed() bool                    { return t.armed.Load() }
func (t *Track) Arm(armed bool)                 { t.armed.Store(armed) }

// AddRegion places the audio file at path on the track at frame start.
// Files in another format or at another rate are converted first.
func (t *Track) AddRegion(path string, start int64) (*region.Region, error) {
	s := t.session

	imported, err := audiofile.Import(path, s.cfg.SampleRate, s.cfg.CaptureBitDepth(), s.registry)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", t.name, err)
	}

	h, _ := s.files.Open(imported)
	r, err := region.New(s.files, h, start, t.log)
	if err != nil {
		s.files.Release(h)
		return nil, fmt.Errorf("track %s: %w", t.name, err)
	}

	t.seq.Add(r)
	return r, nil
}

// RemoveRegion takes r off the track and releases its file.
func (t *Track) RemoveRegion(r *region.Region) bool {
	if !t.seq.Remove(r) {
		return false
	}
	r.Release()
	return true
}

// ResizeBuffers changes the block size. The playback stream is restarted;
// the track must not be recording. Input() and Output() are reallocated,
// so the real-time callback must be quiet meanwhile.
func (t *Track) ResizeBuffers(nframes int64) error {
	if err := t.record.ResizeBuffers(nframes); err != nil {
		return err
	}

	running := t.playback.Running()
	t.playback.Shutdown()
	if err := t.playback.ResizeBuffers(nframes); err != nil {
		return err
	}
	t.allocPorts(nframes)

	if running {
		return t.playback.Run()
	}
	return nil
}

// ProcessInput hands the block in Input() to the record stream.
func (t *Track) ProcessInput(transportFrame, nframes int64) int64 {
	return t.record.Process(t.in, transportFrame, nframes)
}

// ProcessOutput fills Output() from the playback stream.
func (t *Track) ProcessOutput(nframes int64) int64 {
	return t.playback.Process(t.out, nframes)
}

// idle clears Output() for blocks where the transport is stopped.
func (t *Track) idle(nframes int64) {
	t.playback.Idle(t.out, nframes)
}

func (t *Track) Seek(frame int64) {
	t.playback.Seek(frame)
}

func (t *Track) Undelay(frames int64) {
	t.playback.Undelay(frames)
}

// StartCapture creates a new take file next to the session's files and
// a region for it anchored at frame.
func (t *Track) StartCapture(frame int64) error {
	s := t.session
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.wav", t.name, uuid.NewString()))

	h, f, err := s.files.Create(path, t.channels, s.cfg.CaptureBitDepth())
	if err != nil {
		return fmt.Errorf("track %s: %w", t.name, err)
	}

	r, err := region.NewCapture(s.files, h, frame, t.log)
	if err != nil {
		s.files.Release(h)
		return fmt.Errorf("track %s: %w", t.name, err)
	}

	t.capMu.Lock()
	t.capture, t.capFile = r, f
	t.capMu.Unlock()

	t.seq.Add(r)
	t.log.Info("capture file created", zap.String("path", f.Path()), zap.Int64("frame", frame))

	return nil
}

// WriteCapture appends to the take and grows its region.
func (t *Track) WriteCapture(buf []float32, nframes int64) int64 {
	t.capMu.Lock()
	r, f := t.capture, t.capFile
	t.capMu.Unlock()

	if r == nil {
		return 0
	}

	n := f.Write(buf, nframes)
	r.Write(n)

	return n
}

// FinalizeCapture closes the take. A take that captured nothing is
// dropped along with its file.
func (t *Track) FinalizeCapture(frame int64) error {
	t.capMu.Lock()
	r := t.capture
	t.capture, t.capFile = nil, nil
	t.capMu.Unlock()

	if r == nil {
		return nil
	}

	if f := r.File(); f.Length() == 0 {
		if err := f.Finalize(); err != nil {
			t.log.Warn("closing empty take", zap.Error(err))
		}

		path := f.Path()
		t.RemoveRegion(r)
		for _, p := range []string{path, path + ".peak"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				t.log.Warn("removing empty take", zap.String("path", p), zap.Error(err))
			}
		}
		t.log.Info("empty take discarded", zap.String("path", path))

		return nil
	}

	if err := r.Finalize(frame); err != nil {
		return fmt.Errorf("track %s: %w", t.name, err)
	}

	t.log.Info("capture finalized",
		zap.String("path", r.File().Path()),
		zap.Int64("start", r.Start()),
		zap.Int64("length", r.Length()))

	return nil
}

func (t *Track) shutdown() error {
	err := t.record.Stop(t.session.transport.Frame())
	t.playback.Shutdown()

	for _, r := range t.seq.Regions() {
		t.RemoveRegion(r)
	}

	return err
}
