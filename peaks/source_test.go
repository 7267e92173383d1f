// SPDX-License-Identifier: EPL-2.0

package peaks

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// memSource is an in-memory Source backed by a placeholder file on disk so
// modification times can be compared.
type memSource struct {
	path     string
	data     []float32
	channels int
	gate     chan struct{} // when set, the first ReadAt waits for it to close
}

func newMemSource(t *testing.T, channels int, frames int) *memSource {
	t.Helper()

	path := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	data := make([]float32, frames*channels)
	for i := range frames {
		for c := range channels {
			v := float32(math.Sin(float64(i)*0.013+float64(c))) * float32(i%977) / 977
			data[i*channels+c] = v
		}
	}

	return &memSource{path: path, data: data, channels: channels}
}

func (m *memSource) Length() int64 { return int64(len(m.data) / m.channels) }
func (m *memSource) Channels() int { return m.channels }
func (m *memSource) Path() string  { return m.path }

func (m *memSource) ReadAt(buf []float32, channel int, start, nframes int64) int64 {
	if m.gate != nil {
		<-m.gate
	}

	if start >= m.Length() {
		return 0
	}
	n := min(nframes, m.Length()-start)

	if channel == allChannels {
		copy(buf, m.data[start*int64(m.channels):(start+n)*int64(m.channels)])
		return n
	}

	for i := range n {
		buf[i] = m.data[(start+i)*int64(m.channels)+int64(channel)]
	}
	return n
}

// expectPeaks computes the peaks of chunksize frames at a time directly
// from the samples, starting every peak at zero.
func expectPeaks(m *memSource, chunksize int64) []Peak {
	ch := m.channels
	length := m.Length()

	var out []Peak
	for s := int64(0); s < length; s += chunksize {
		n := min(chunksize, length-s)
		p := make([]Peak, ch)
		scan(p, m.data[int(s)*ch:], ch, n)
		out = append(out, p...)
	}

	return out
}

func comparePeaks(t *testing.T, label string, got, want []Peak) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("%s: got %d peaks, want %d", label, len(got), len(want))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: peak %d = %+v, want %+v", label, i, got[i], want[i])
		}
	}
}
