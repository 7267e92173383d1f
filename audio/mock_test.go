// SPDX-License-Identifier: EPL-2.0

package audio

import "io"

// genSource renders frames of fn(frame, channel) until frames run out.
type genSource struct {
	rate, channels int
	frames, pos    int
	fn             func(frame, channel int) float32
}

func newMockSource(rate, channels, frames int, fn func(frame, channel int) float32) *genSource {
	return &genSource{rate: rate, channels: channels, frames: frames, fn: fn}
}

func newSilentSource(rate, channels, frames int) *genSource {
	return newMockSource(rate, channels, frames, func(int, int) float32 { return 0 })
}

func (g *genSource) SampleRate() int { return g.rate }
func (g *genSource) Channels() int   { return g.channels }
func (g *genSource) BufSize() int    { return 4096 }
func (g *genSource) Close() error    { return nil }

func (g *genSource) ReadSamples(dst []float32) (int, error) {
	n := min(len(dst)/g.channels, g.frames-g.pos)
	for f := range n {
		for c := range g.channels {
			dst[f*g.channels+c] = g.fn(g.pos+f, c)
		}
	}
	g.pos += n

	if g.pos >= g.frames {
		return n * g.channels, io.EOF
	}
	return n * g.channels, nil
}
