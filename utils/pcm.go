// SPDX-License-Identifier: EPL-2.0

package utils

// pcmScale is the divisor that maps a signed integer sample of the given
// bit depth onto [-1, 1).
func pcmScale(bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return 128.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}

// PCMToFloat32 converts a signed integer sample of bitDepth bits to float32.
func PCMToFloat32(v int, bitDepth int) float32 {
	return float32(v) / pcmScale(bitDepth)
}

// Float32ToPCM clamps x to [-1, 1] and scales it to a signed integer sample
// of bitDepth bits. The positive peak maps to the largest representable
// value, never one past it.
func Float32ToPCM(x float32, bitDepth int) int {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}

	scale := pcmScale(bitDepth)
	return int(float64(x) * (float64(scale) - 1))
}
