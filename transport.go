// SPDX-License-Identifier: EPL-2.0

package audstream

import (
	"slices"
	"sync"
	"sync/atomic"
)

// PunchRange is a span of the timeline recording is confined to.
type PunchRange struct {
	Start  int64
	Length int64
}

func (p PunchRange) End() int64 { return p.Start + p.Length }

// Transport is the playhead. The frame and the rolling and recording
// flags are atomics so the real-time thread can read them freely.
type Transport struct {
	frame     atomic.Int64
	rolling   atomic.Bool
	recording atomic.Bool

	mu           sync.Mutex
	punchEnabled bool
	punches      []PunchRange
}

func (t *Transport) Frame() int64    { return t.frame.Load() }
func (t *Transport) Rolling() bool   { return t.rolling.Load() }
func (t *Transport) Recording() bool { return t.recording.Load() }
func (t *Transport) Roll()           { t.rolling.Store(true) }
func (t *Transport) Halt()           { t.rolling.Store(false) }
func (t *Transport) Locate(f int64)  { t.frame.Store(max(f, 0)) }

func (t *Transport) advance(n int64) {
	t.frame.Add(n)
}

func (t *Transport) setRecording(on bool) {
	t.recording.Store(on)
}

// SetPunch turns punch recording on or off.
func (t *Transport) SetPunch(enabled bool) {
	t.mu.Lock()
	t.punchEnabled = enabled
	t.mu.Unlock()
}

// AddPunch adds a punch range, keeping them ordered by start.
func (t *Transport) AddPunch(p PunchRange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, _ := slices.BinarySearchFunc(t.punches, p.Start, func(e PunchRange, start int64) int {
		switch {
		case e.Start < start:
			return -1
		case e.Start > start:
			return 1
		}
		return 0
	})
	t.punches = slices.Insert(t.punches, i, p)
}

func (t *Transport) Punches() []PunchRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.punches)
}

// punchWindow decides where a recording starting at frame keeps input.
// Started inside a punch range it runs to that range's end; started
// before one it waits for the next range and ends with it. Without punch
// ranges it starts at frame and stays open (stop 0).
func (t *Transport) punchWindow(frame int64) (start, stop int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start = frame
	if !t.punchEnabled {
		return start, 0
	}

	var prev, next *PunchRange
	for i := range t.punches {
		p := &t.punches[i]
		if p.Start <= frame {
			prev = p
		} else if next == nil {
			next = p
		}
	}

	switch {
	case prev != nil && frame < prev.End():
		stop = prev.End()
	case next != nil:
		start = next.Start
		stop = next.End()
	}

	return start, stop
}
