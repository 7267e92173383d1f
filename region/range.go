// SPDX-License-Identifier: EPL-2.0

package region

// Range places a span of a source file on the timeline. Start is the
// timeline frame of the first frame played, Offset the source frame it
// comes from and Length the number of frames played.
type Range struct {
	Start  int64
	Offset int64
	Length int64
}

// End is the timeline frame just past the range.
func (r Range) End() int64 {
	return r.Start + r.Length
}

// SetLeft moves the left edge to f keeping the right edge and the
// alignment between timeline and source.
func (r *Range) SetLeft(f int64) {
	d := f - r.Start
	r.Offset += d
	r.Length -= d
	r.Start = f
}

// SetRight moves the right edge to f.
func (r *Range) SetRight(f int64) {
	r.Length = f - r.Start
}

// TrimLeft is SetLeft clamped so the range neither inverts nor reaches
// before the first frame of its source.
func (r *Range) TrimLeft(f int64) {
	f = min(f, r.End())
	f = max(f, r.Start-r.Offset)
	r.SetLeft(f)
}

// TrimRight is SetRight clamped so the range does not invert.
func (r *Range) TrimRight(f int64) {
	r.SetRight(max(f, r.Start))
}
