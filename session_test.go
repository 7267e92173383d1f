// SPDX-License-Identifier: EPL-2.0

package audstream

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ik5/audstream/config"
	"github.com/ik5/audstream/internal/audiotest"
	"github.com/ik5/audstream/peaks"
	"go.uber.org/zap/zaptest"
)

const block = 256

func testConfig() *config.Config {
	return &config.Config{
		SecondsToBuffer:    1,
		DiskIOKBytes:       16,
		CaptureFormat:      config.CaptureWAV16,
		MipmappedPeakfiles: true,
		SampleRate:         8000,
		BlockSize:          block,
	}
}

func newSession(t *testing.T) *Session {
	t.Helper()

	s, err := New(t.TempDir(), testConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Shutdown(); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})

	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// settle runs stopped blocks until every playback stream is ready.
func settle(t *testing.T, s *Session) {
	t.Helper()

	rolling := s.Transport().Rolling()
	s.Transport().Halt()
	waitFor(t, "playback streams", func() bool {
		s.Process(block)
		return !s.SeekPending()
	})
	if rolling {
		s.Transport().Roll()
	}
}

func fill(buf []float32, v float32) {
	for i := range buf {
		buf[i] = v
	}
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestTransport_PunchWindow(t *testing.T) {
	t.Parallel()

	var tr Transport
	tr.AddPunch(PunchRange{Start: 3000, Length: 1000})
	tr.AddPunch(PunchRange{Start: 1000, Length: 500})

	if start, stop := tr.punchWindow(1200); start != 1200 || stop != 0 {
		t.Errorf("punch disabled: window = %d..%d, want 1200..0", start, stop)
	}

	tr.SetPunch(true)
	tests := []struct {
		frame, start, stop int64
	}{
		{1200, 1200, 1500},
		{1000, 1000, 1500},
		{200, 1000, 1500},
		{2000, 3000, 4000},
		{5000, 5000, 0},
	}

	for _, tt := range tests {
		if start, stop := tr.punchWindow(tt.frame); start != tt.start || stop != tt.stop {
			t.Errorf("punchWindow(%d) = %d..%d, want %d..%d", tt.frame, start, stop, tt.start, tt.stop)
		}
	}

	if p := tr.Punches(); len(p) != 2 || p[0].Start != 1000 {
		t.Errorf("Punches() = %+v, want ordered by start", p)
	}
}

func TestSession_RecordThenPlay(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	vox, err := s.AddTrack("vox", 1)
	if err != nil {
		t.Fatalf("AddTrack() error = %v", err)
	}
	vox.Arm(true)

	s.Transport().Roll()
	if err := s.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := s.Record(); !errors.Is(err, ErrRecording) {
		t.Errorf("second Record() error = %v, want ErrRecording", err)
	}

	for range 20 {
		fill(vox.Input()[0], 0.25)
		s.Process(block)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.TotalCaptureXruns() != 0 {
		t.Errorf("TotalCaptureXruns() = %d, want 0", s.TotalCaptureXruns())
	}

	regions := vox.Sequence().Regions()
	if len(regions) != 1 {
		t.Fatalf("track has %d regions, want 1", len(regions))
	}
	take := regions[0]
	if take.Start() != 0 || take.Length() != 20*block {
		t.Errorf("take = %+v, want start 0 length %d", take.Range(), 20*block)
	}

	path := take.File().Path()
	if base := filepath.Base(path); !strings.HasPrefix(base, "vox-") || filepath.Ext(base) != ".wav" {
		t.Errorf("take file name = %q", base)
	}
	if _, err := os.Stat(peaks.Path(path)); err != nil {
		t.Errorf("take has no peakfile: %v", err)
	}

	s.Seek(4 * block)
	settle(t, s)
	s.Transport().Roll()
	s.Process(block)

	out := vox.Output()[0]
	for i, v := range out[:block] {
		if !near(v, 0.25) {
			t.Fatalf("played back sample %d = %v, want 0.25", i, v)
		}
	}
}

func TestSession_PunchRecording(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	vox, err := s.AddTrack("vox", 1)
	if err != nil {
		t.Fatalf("AddTrack() error = %v", err)
	}
	vox.Arm(true)

	s.Transport().SetPunch(true)
	s.Transport().AddPunch(PunchRange{Start: 2 * block, Length: 4 * block})

	s.Transport().Roll()
	if err := s.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	for range 10 {
		fill(vox.Input()[0], 0.5)
		s.Process(block)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	regions := vox.Sequence().Regions()
	if len(regions) != 1 {
		t.Fatalf("track has %d regions, want 1", len(regions))
	}
	if r := regions[0].Range(); r.Start != 2*block || r.Length != 4*block {
		t.Errorf("take = %+v, want start %d length %d", r, 2*block, 4*block)
	}
}

func TestSession_EmptyTakeIsDiscarded(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	vox, err := s.AddTrack("vox", 2)
	if err != nil {
		t.Fatalf("AddTrack() error = %v", err)
	}
	vox.Arm(true)

	s.Transport().SetPunch(true)
	s.Transport().AddPunch(PunchRange{Start: 100000, Length: 10})

	s.Transport().Roll()
	if err := s.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	s.Process(block)
	s.Process(block)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if n := vox.Sequence().Len(); n != 0 {
		t.Errorf("track has %d regions, want 0", n)
	}
	takes, _ := filepath.Glob(filepath.Join(s.Dir(), "vox-*"))
	if len(takes) != 0 {
		t.Errorf("empty take left files behind: %v", takes)
	}
}

func TestSession_AddRegionPlaysAndBuildsPeaks(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	guide, err := s.AddTrack("guide", 1)
	if err != nil {
		t.Fatalf("AddTrack() error = %v", err)
	}

	path := audiotest.WriteWAV(t, t.TempDir(), "guide.wav", audiotest.NewConstantSource(8000, 1, 8000, 0.5))
	r, err := guide.AddRegion(path, 1000)
	if err != nil {
		t.Fatalf("AddRegion() error = %v", err)
	}
	if r.Start() != 1000 || r.Length() != 8000 {
		t.Errorf("region = %+v, want start 1000 length 8000", r.Range())
	}

	done := make(chan error, 1)
	if n := s.BuildPeaks(func(_ string, err error) { done <- err }); n != 1 {
		t.Fatalf("BuildPeaks() started %d builds, want 1", n)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("peak build error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("peak build did not finish")
	}
	if n := s.BuildPeaks(nil); n != 0 {
		t.Errorf("second BuildPeaks() started %d builds, want 0", n)
	}

	s.Seek(2048)
	settle(t, s)
	s.Transport().Roll()
	s.Process(block)

	want := audiotest.Dequantize16(0.5)
	for i, v := range guide.Output()[0][:block] {
		if !near(v, want) {
			t.Fatalf("sample %d = %v, want %v", i, v, want)
		}
	}
	if s.Transport().Frame() != 2048+block {
		t.Errorf("transport at %d, want %d", s.Transport().Frame(), 2048+block)
	}
}

func TestSession_StoppedTransportIsSilent(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	guide, err := s.AddTrack("guide", 1)
	if err != nil {
		t.Fatalf("AddTrack() error = %v", err)
	}
	path := audiotest.WriteWAV(t, t.TempDir(), "loud.wav", audiotest.NewConstantSource(8000, 1, 8000, 0.5))
	if _, err := guide.AddRegion(path, 0); err != nil {
		t.Fatalf("AddRegion() error = %v", err)
	}

	settle(t, s)
	fill(guide.Output()[0], 1)
	s.Process(block)

	for i, v := range guide.Output()[0][:block] {
		if v != 0 {
			t.Fatalf("sample %d = %v while stopped, want 0", i, v)
		}
	}
	if s.Transport().Frame() != 0 {
		t.Errorf("stopped transport moved to %d", s.Transport().Frame())
	}
}

func TestSession_TracksAndResize(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	a, err := s.AddTrack("a", 2)
	if err != nil {
		t.Fatalf("AddTrack() error = %v", err)
	}
	if _, err := s.AddTrack("a", 1); !errors.Is(err, ErrDuplicateTrack) {
		t.Errorf("duplicate AddTrack() error = %v, want ErrDuplicateTrack", err)
	}

	if got, ok := s.Track("a"); !ok || got != a {
		t.Error("Track(\"a\") did not find the track")
	}

	if err := s.ResizeBuffers(512); err != nil {
		t.Fatalf("ResizeBuffers() error = %v", err)
	}
	if len(a.Input()[1]) != 512 || a.Playback().BlockFrames() != 512 || !a.Playback().Running() {
		t.Errorf("after resize: port %d frames, block %d, running %v",
			len(a.Input()[1]), a.Playback().BlockFrames(), a.Playback().Running())
	}

	a.Arm(true)
	if err := s.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := s.ResizeBuffers(256); !errors.Is(err, ErrRecording) {
		t.Errorf("ResizeBuffers() while recording error = %v, want ErrRecording", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if err := s.RemoveTrack(a); err != nil {
		t.Errorf("RemoveTrack() error = %v", err)
	}
	if len(s.Tracks()) != 0 {
		t.Errorf("Tracks() = %d after removal", len(s.Tracks()))
	}
}

func TestSession_NoGoroutineLeaks(t *testing.T) {
	baseline := runtime.NumGoroutine()

	s, err := New(t.TempDir(), testConfig(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		tr, err := s.AddTrack(name, 2)
		if err != nil {
			t.Fatalf("AddTrack() error = %v", err)
		}
		tr.Arm(true)
	}

	if err := s.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := s.AddTrack("late", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("AddTrack() after Shutdown error = %v, want ErrClosed", err)
	}

	audiotest.AssertNoGoroutineLeaks(t, baseline, 1)
}
