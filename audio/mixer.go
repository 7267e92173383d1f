// SPDX-License-Identifier: EPL-2.0

package audio

// ApplyGain scales every sample of buf by gain. A gain of exactly 1 is a no-op.
func ApplyGain(buf []float32, gain float32) {
	if gain == 1 {
		return
	}

	for i := range buf {
		buf[i] *= gain
	}
}

// InterleavedCopy copies channel srcCh of the interleaved src into channel
// dstCh of the interleaved dst, for nframes frames.
func InterleavedCopy(dst, src []float32, dstCh, srcCh, dstChannels, srcChannels, nframes int) {
	d := dstCh
	s := srcCh
	for range nframes {
		dst[d] = src[s]
		d += dstChannels
		s += srcChannels
	}
}

// InterleavedMix is InterleavedCopy that adds into dst instead of overwriting it.
func InterleavedMix(dst, src []float32, dstCh, srcCh, dstChannels, srcChannels, nframes int) {
	d := dstCh
	s := srcCh
	for range nframes {
		dst[d] += src[s]
		d += dstChannels
		s += srcChannels
	}
}

// Deinterleave extracts channel ch of the interleaved src into the mono dst.
func Deinterleave(dst, src []float32, channels, ch, nframes int) {
	if channels == 1 {
		copy(dst[:nframes], src[:nframes])
		return
	}

	s := ch
	for i := range nframes {
		dst[i] = src[s]
		s += channels
	}
}

// Interleave writes the mono src into channel ch of the interleaved dst.
func Interleave(dst, src []float32, channels, ch, nframes int) {
	if channels == 1 {
		copy(dst[:nframes], src[:nframes])
		return
	}

	d := ch
	for i := range nframes {
		dst[d] = src[i]
		d += channels
	}
}
