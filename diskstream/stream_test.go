// SPDX-License-Identifier: EPL-2.0

package diskstream

import (
	"errors"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/ik5/audstream/config"
	"github.com/ik5/audstream/internal/audiotest"
)

// testConfig buffers ten blocks of 100 frames.
func testConfig() *config.Config {
	return &config.Config{
		SecondsToBuffer: 1,
		DiskIOKBytes:    4,
		SampleRate:      1000,
		BlockSize:       100,
	}
}

// rampReader renders the timeline frame number on every channel.
type rampReader struct{}

func (rampReader) Play(buf []float32, pos, nframes int64, channels int) int64 {
	for i := range nframes {
		for c := range channels {
			buf[int(i)*channels+c] = float32(pos + i)
		}
	}
	return nframes
}

type silentReader struct{}

func (silentReader) Play([]float32, int64, int64, int) int64 { return 0 }

func outBuffers(channels, nframes int) [][]float32 {
	out := make([][]float32, channels)
	for i := range out {
		out[i] = make([]float32, nframes)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStream_Sizing(t *testing.T) {
	t.Parallel()

	p := NewPlayback("sizing", 2, testConfig(), rampReader{}, nil)

	if p.totalBlocks != 10 {
		t.Errorf("totalBlocks = %d, want 10", p.totalBlocks)
	}
	// 4 KiB / (100 frames * 2 channels * 4 bytes)
	if p.diskIOBlocks != 5 {
		t.Errorf("diskIOBlocks = %d, want 5", p.diskIOBlocks)
	}
	if p.rings[0].Cap() != 1000 || len(p.rings) != 2 {
		t.Errorf("rings = %d of %d, want 2 of 1000", len(p.rings), p.rings[0].Cap())
	}

	if err := p.ResizeBuffers(50); err != nil {
		t.Fatalf("ResizeBuffers() error = %v", err)
	}
	if p.totalBlocks != 20 || p.BlockFrames() != 50 {
		t.Errorf("after resize totalBlocks = %d, block = %d", p.totalBlocks, p.BlockFrames())
	}
}

func TestStream_ResizeWhileRunning(t *testing.T) {
	t.Parallel()

	p := NewPlayback("resize", 1, testConfig(), rampReader{}, nil)
	if err := p.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if err := p.ResizeBuffers(64); !errors.Is(err, ErrStreamActive) {
		t.Errorf("ResizeBuffers() error = %v, want ErrStreamActive", err)
	}
	if err := p.Run(); !errors.Is(err, ErrStreamActive) {
		t.Errorf("second Run() error = %v, want ErrStreamActive", err)
	}

	p.Shutdown()
	if err := p.ResizeBuffers(64); err != nil {
		t.Errorf("ResizeBuffers() after Shutdown error = %v", err)
	}
}

func TestPlayback_FillsAndPlays(t *testing.T) {
	t.Parallel()

	p := NewPlayback("fill", 2, testConfig(), rampReader{}, nil)
	if err := p.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Shutdown()

	waitFor(t, "full buffers", func() bool { return p.BufferPercent() == 100 })
	if p.SeekPending() {
		t.Error("SeekPending() with full buffers")
	}

	out := outBuffers(2, 100)
	for block := range 3 {
		if n := p.Process(out, 100); n != 100 {
			t.Fatalf("Process() = %d, want 100", n)
		}
		for c := range 2 {
			for i := range 100 {
				if want := float32(block*100 + i); out[c][i] != want {
					t.Fatalf("block %d ch %d [%d] = %v, want %v", block, c, i, out[c][i], want)
				}
			}
		}
	}

	if p.Xruns() != 0 {
		t.Errorf("Xruns() = %d, want 0", p.Xruns())
	}
}

func TestPlayback_Undelay(t *testing.T) {
	t.Parallel()

	p := NewPlayback("undelay", 1, testConfig(), rampReader{}, nil)
	p.Undelay(10)
	if err := p.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Shutdown()

	waitFor(t, "full buffers", func() bool { return p.BufferPercent() == 100 })

	out := outBuffers(1, 100)
	p.Process(out, 100)
	if out[0][0] != 10 {
		t.Errorf("first sample = %v, want 10", out[0][0])
	}
}

func TestPlayback_SeekDrainsStaleAudio(t *testing.T) {
	t.Parallel()

	p := NewPlayback("seek", 2, testConfig(), rampReader{}, nil)
	if err := p.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Shutdown()

	waitFor(t, "full buffers", func() bool { return p.BufferPercent() == 100 })

	out := outBuffers(2, 100)
	p.Seek(5000)
	if !p.SeekPending() {
		t.Fatal("SeekPending() = false right after Seek")
	}

	// the real-time side drains and plays silence until the seek lands
	if n := p.Process(out, 100); n != 0 {
		t.Fatalf("Process() during seek = %d, want 0", n)
	}
	for i := range 100 {
		if out[0][i] != 0 {
			t.Fatalf("sample %d during seek = %v, want silence", i, out[0][i])
		}
	}

	next := float32(5000)
	waitFor(t, "seek", func() bool {
		if !p.dir.seeking() {
			return true
		}
		// a redrain may be needed; frames played once the seek lands count
		next += float32(p.Process(out, 100))
		return false
	})
	waitFor(t, "refill", func() bool { return p.BufferPercent() == 100 })

	if n := p.Process(out, 100); n != 100 {
		t.Fatalf("Process() after seek = %d, want 100", n)
	}
	for c := range 2 {
		if out[c][0] != next || out[c][99] != next+99 {
			t.Fatalf("ch %d after seek = %v..%v, want %v..%v", c, out[c][0], out[c][99], next, next+99)
		}
	}
}

// A seek landing between the per-channel writes of one block must not
// leave the later channels a block behind.
func TestPlayback_SeekBetweenChannelWrites(t *testing.T) {
	t.Parallel()

	p := NewPlayback("split", 2, testConfig(), rampReader{}, nil)
	// drive the disk side by hand
	p.running.Store(true)
	p.dir.blockIO(&p.core)

	out := outBuffers(2, 100)
	if n := p.Process(out, 100); n != 100 || out[1][0] != 0 {
		t.Fatalf("Process() = %d starting at %v, want 100 starting at 0", n, out[1][0])
	}

	stale := make([]float32, 100)
	for i := range stale {
		stale[i] = float32(1000 + i)
	}

	p.rings[0].Write(stale)
	p.Seek(5000)
	p.Process(out, 100) // drains and acknowledges
	p.rings[1].Write(stale)

	for range 4 {
		p.dir.blockIO(&p.core)
		if !p.dir.seeking() {
			break
		}
		p.Process(out, 100)
	}
	if p.dir.seeking() {
		t.Fatal("seek never applied")
	}

	if n := p.Process(out, 100); n != 100 {
		t.Fatalf("Process() after seek = %d, want 100", n)
	}
	for c := range 2 {
		if out[c][0] != 5000 || out[c][99] != 5099 {
			t.Errorf("ch %d after seek = %v..%v, want 5000..5099", c, out[c][0], out[c][99])
		}
	}
}

func TestPlayback_IdleCompletesSeek(t *testing.T) {
	t.Parallel()

	p := NewPlayback("idle", 1, testConfig(), rampReader{}, nil)
	p.Seek(700)
	if err := p.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Shutdown()

	out := outBuffers(1, 100)
	waitFor(t, "seek while idle", func() bool {
		out[0][0] = 1
		p.Idle(out, 100)
		if out[0][0] != 0 {
			t.Fatal("Idle() did not write silence")
		}
		return !p.SeekPending()
	})

	// nothing was consumed while idle
	if n := p.Process(out, 100); n != 100 || out[0][0] != 700 {
		t.Errorf("Process() = %d starting at %v, want 100 starting at 700", n, out[0][0])
	}
}

func TestPlayback_XrunFillsSilence(t *testing.T) {
	t.Parallel()

	p := NewPlayback("xrun", 1, testConfig(), silentReader{}, nil)
	if err := p.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer p.Shutdown()

	out := outBuffers(1, 100)
	out[0][0] = 1
	if n := p.Process(out, 100); n != 0 {
		t.Fatalf("Process() = %d, want 0", n)
	}
	if out[0][0] != 0 {
		t.Error("xrun did not fill silence")
	}
	if p.Xruns() != 1 {
		t.Errorf("Xruns() = %d, want 1", p.Xruns())
	}
}

func TestPlayback_ProcessWhenStopped(t *testing.T) {
	t.Parallel()

	p := NewPlayback("stopped", 1, testConfig(), rampReader{}, nil)
	out := outBuffers(1, 100)
	out[0][5] = 1

	if n := p.Process(out, 100); n != 0 || out[0][5] != 0 {
		t.Errorf("Process() on a stopped stream = %d, sample %v", n, out[0][5])
	}
	if p.Xruns() != 0 {
		t.Error("a stopped stream counted an xrun")
	}
}

// memCapturer keeps captured frames in memory.
type memCapturer struct {
	mu       sync.Mutex
	start    int64
	stop     int64
	frames   []float32
	started  int
	gate     chan struct{}
	startErr error
	finalErr error
}

func (m *memCapturer) StartCapture(frame int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	m.start = frame
	m.started++
	return nil
}

func (m *memCapturer) WriteCapture(buf []float32, nframes int64) int64 {
	if m.gate != nil {
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.frames = append(m.frames, buf...)
	return nframes
}

func (m *memCapturer) FinalizeCapture(frame int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stop = frame
	return m.finalErr
}

func inputBlock(channels int, transportFrame, nframes int64) [][]float32 {
	in := outBuffers(channels, int(nframes))
	for c := range channels {
		for i := range nframes {
			in[c][i] = float32(transportFrame+i) + float32(c)*0.5
		}
	}
	return in
}

func TestRecord_PunchWindow(t *testing.T) {
	t.Parallel()

	capt := &memCapturer{}
	r := NewRecord("punch", 2, testConfig(), capt, nil)

	if err := r.Start(0, 150, 350); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []int64{0, 50, 100, 50, 0}
	for i, w := range want {
		tf := int64(i * 100)
		if n := r.Process(inputBlock(2, tf, 100), tf, 100); n != w {
			t.Errorf("Process() at %d = %d, want %d", tf, n, w)
		}
	}

	if err := r.Stop(500); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	capt.mu.Lock()
	defer capt.mu.Unlock()

	if capt.start != 150 || capt.stop != 350 {
		t.Errorf("capture anchored %d stopped %d, want 150 and 350", capt.start, capt.stop)
	}
	if len(capt.frames) != 200*2 {
		t.Fatalf("captured %d samples, want 400", len(capt.frames))
	}
	for i := range 200 {
		l, rr := capt.frames[i*2], capt.frames[i*2+1]
		if want := float32(150 + i); l != want || rr != want+0.5 {
			t.Fatalf("frame %d = (%v, %v), want (%v, %v)", i, l, rr, want, want+0.5)
		}
	}
}

func TestRecord_OpenEnded(t *testing.T) {
	t.Parallel()

	capt := &memCapturer{}
	r := NewRecord("open", 1, testConfig(), capt, nil)

	if err := r.Start(0, 0, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if r.StopFrame() != math.MaxInt64 {
		t.Errorf("StopFrame() = %d, want unbounded", r.StopFrame())
	}

	for i := range 3 {
		tf := int64(i * 100)
		r.Process(inputBlock(1, tf, 100), tf, 100)
	}

	if err := r.Stop(300); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	capt.mu.Lock()
	defer capt.mu.Unlock()
	if len(capt.frames) != 300 || capt.stop != 300 {
		t.Errorf("captured %d frames, stopped at %d", len(capt.frames), capt.stop)
	}
	if r.Running() {
		t.Error("Running() after Stop")
	}
}

func TestRecord_XrunWhenRingIsFull(t *testing.T) {
	t.Parallel()

	capt := &memCapturer{gate: make(chan struct{})}
	r := NewRecord("xrun", 1, testConfig(), capt, nil)
	if err := r.Start(0, 0, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	const blocks = 30
	var kept int64
	for i := range blocks {
		tf := int64(i * 100)
		kept += r.Process(inputBlock(1, tf, 100), tf, 100)
	}

	// the ring holds ten blocks and the stalled writer at most ten more
	if r.Xruns() < 10 {
		t.Errorf("Xruns() = %d, want at least 10", r.Xruns())
	}
	if kept/100+r.Xruns() != blocks {
		t.Errorf("kept %d blocks and dropped %d, want %d in total", kept/100, r.Xruns(), blocks)
	}

	close(capt.gate)
	if err := r.Stop(blocks * 100); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	capt.mu.Lock()
	defer capt.mu.Unlock()
	if int64(len(capt.frames)) != kept {
		t.Errorf("captured %d frames, want %d", len(capt.frames), kept)
	}
}

func TestRecord_ShortRingKeepsHead(t *testing.T) {
	t.Parallel()

	r := NewRecord("short", 2, testConfig(), &memCapturer{}, nil)
	// no disk goroutine: the rings only fill
	r.running.Store(true)
	r.dir.stop.Store(math.MaxInt64)

	for i := range 9 {
		tf := int64(i * 100)
		if n := r.Process(inputBlock(2, tf, 100), tf, 100); n != 100 {
			t.Fatalf("Process() block %d = %d, want 100", i, n)
		}
	}

	if n := r.Process(inputBlock(2, 900, 250), 900, 250); n != 100 {
		t.Errorf("Process() into a short ring = %d, want 100", n)
	}
	if r.Xruns() != 1 {
		t.Errorf("Xruns() = %d, want 1", r.Xruns())
	}
	if n := r.Process(inputBlock(2, 1150, 100), 1150, 100); n != 0 || r.Xruns() != 2 {
		t.Errorf("Process() into a full ring = %d with %d xruns, want 0 with 2", n, r.Xruns())
	}

	got := make([]float32, 1000)
	for c, ring := range r.rings {
		if n := ring.Read(got); n != 1000 {
			t.Fatalf("ring %d holds %d frames, want 1000", c, n)
		}
		if want := 999 + float32(c)*0.5; got[999] != want {
			t.Errorf("ring %d last frame = %v, want %v", c, got[999], want)
		}
	}
}

func TestRecord_StartErrors(t *testing.T) {
	t.Parallel()

	failing := &memCapturer{startErr: errors.New("disk full")}
	r := NewRecord("fail", 1, testConfig(), failing, nil)
	if err := r.Start(0, 0, 0); err == nil {
		t.Fatal("Start() with a failing capturer succeeded")
	}
	if r.Running() {
		t.Error("stream running after a failed start")
	}

	capt := &memCapturer{}
	r = NewRecord("twice", 1, testConfig(), capt, nil)
	if err := r.Start(0, 0, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(0, 0, 0); !errors.Is(err, ErrStreamActive) {
		t.Errorf("second Start() error = %v, want ErrStreamActive", err)
	}
	if err := r.Stop(0); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if err := NewRecord("none", 1, testConfig(), nil, nil).Start(0, 0, 0); !errors.Is(err, ErrNoCapturer) {
		t.Errorf("Start() without a capturer error = %v, want ErrNoCapturer", err)
	}
}

func TestRecord_FinalizeErrorIsReported(t *testing.T) {
	t.Parallel()

	capt := &memCapturer{finalErr: errors.New("rename failed")}
	r := NewRecord("final", 1, testConfig(), capt, nil)
	if err := r.Start(0, 0, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := r.Stop(100); !errors.Is(err, capt.finalErr) {
		t.Errorf("Stop() error = %v, want the finalize error", err)
	}
}

func TestStreams_NoGoroutineLeaks(t *testing.T) {
	baseline := runtime.NumGoroutine()

	for range 5 {
		p := NewPlayback("leak", 2, testConfig(), rampReader{}, nil)
		if err := p.Run(); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		r := NewRecord("leak", 2, testConfig(), &memCapturer{}, nil)
		if err := r.Start(0, 0, 0); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		r.Process(inputBlock(2, 0, 100), 0, 100)

		p.Shutdown()
		if err := r.Stop(100); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}

	audiotest.AssertNoGoroutineLeaks(t, baseline, 1)
}
