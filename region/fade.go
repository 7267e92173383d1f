// SPDX-License-Identifier: EPL-2.0

package region

import "math"

// FadeType selects the gain curve of a Fade.
type FadeType int

const (
	Linear FadeType = iota
	Sigmoid
	Logarithmic
	Parabolic
	Disabled
)

func (t FadeType) String() string {
	switch t {
	case Linear:
		return "linear"
	case Sigmoid:
		return "sigmoid"
	case Logarithmic:
		return "logarithmic"
	case Parabolic:
		return "parabolic"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// Direction of a fade: In ramps up, Out ramps down.
type Direction int

const (
	In Direction = iota
	Out
)

// declickSeconds is the length of the fade applied at region edges and
// loop seams.
const declickSeconds = 0.01

// Fade is a gain ramp Length frames long.
type Fade struct {
	Type   FadeType
	Length int64
}

// DefaultFade is what new regions get for both edges.
var DefaultFade = Fade{Type: Sigmoid, Length: 256}

// declick returns the short fade used to hide discontinuities.
func declick(sampleRate int) Fade {
	return Fade{Type: Sigmoid, Length: int64(declickSeconds * float64(sampleRate))}
}

// Gain returns the curve value at fi, the position within the fade in [0, 1].
func (f Fade) Gain(fi float64) float32 {
	switch f.Type {
	case Linear:
		return float32(fi)
	case Sigmoid:
		return float32((1 - math.Cos(fi*math.Pi)) * 0.5)
	case Logarithmic:
		return float32(math.Pow(0.1, (1-fi)*3))
	case Parabolic:
		return float32(1 - (1-fi)*(1-fi))
	default:
		return 1
	}
}

// Less orders fades by length.
func (f Fade) Less(o Fade) bool {
	return f.Length < o.Length
}

// Longer returns whichever of a and b lasts longer, a on a tie.
func Longer(a, b Fade) Fade {
	if a.Less(b) {
		return b
	}
	return a
}

// span clamps nframes to what is left of the fade after start and
// returns the starting position and the per-frame increment.
func (f Fade) span(dir Direction, start, nframes int64) (fi, inc float64, n int64) {
	if f.Length <= 0 || start >= f.Length {
		return 0, 0, 0
	}

	n = min(nframes, f.Length-start)
	inc = 1 / float64(f.Length)
	fi = float64(start) / float64(f.Length)

	if dir == Out {
		fi = 1 - fi
		inc = -inc
	}

	return fi, inc, n
}

// Apply fades the mono buf. start is the position within the fade of
// buf[0]; frames past the end of the fade are left alone.
func (f Fade) Apply(buf []float32, dir Direction, start, nframes int64) {
	fi, inc, n := f.span(dir, start, min(nframes, int64(len(buf))))

	for i := range n {
		buf[i] *= f.Gain(fi)
		fi += inc
	}
}

// ApplyInterleaved is Apply for interleaved frames of channels samples.
func (f Fade) ApplyInterleaved(buf []float32, dir Direction, start, nframes int64, channels int) {
	fi, inc, n := f.span(dir, start, min(nframes, int64(len(buf)/channels)))

	for i := range n {
		g := f.Gain(fi)
		frame := buf[int(i)*channels : int(i+1)*channels]
		for c := range frame {
			frame[c] *= g
		}
		fi += inc
	}
}

// applyFade applies fade to the window [bS, bE) held in buf so that it
// begins (In) or ends (Out) exactly at edge.
func applyFade(buf []float32, channels int, fade Fade, bS, bE, edge int64, dir Direction) {
	bSS := bS
	if dir == Out {
		bSS = bS + fade.Length
	}

	var start, off int64
	if bSS > edge {
		start = bSS - edge
	} else {
		off = edge - bSS
	}

	n := (bE - bS) - off
	if n <= 0 {
		return
	}

	fade.ApplyInterleaved(buf[int(off)*channels:], dir, start, n, channels)
}
