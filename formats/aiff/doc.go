// SPDX-License-Identifier: EPL-2.0

// Package aiff provides AIFF (Audio Interchange File Format) decoding.
//
// This package uses github.com/go-audio/aiff to decode AIFF files.
// AIFF is Apple's standard audio file format, commonly used on macOS.
//
// # Supported Formats
//
//   - PCM 8, 16, 24 and 32-bit
//   - Mono and multi-channel
//   - Any sample rate
//
// # Decoding AIFF Files
//
//	file, _ := os.Open("audio.aif")
//	source, err := aiff.Decoder{}.Decode(file)
//	if err != nil {
//	    // Handle error
//	}
//
// go-audio's AIFF decoder cannot seek by frame, so Decode reads the whole
// file and returns an *audio.BufferSource. Imported AIFF material is
// usually short; long recordings should be converted to WAV with
// audiofile.Import first.
//
// # Error Handling
//
//   - ErrNotAiffFile: the input has no FORM/AIFF header
//   - ErrUnsupportedBitDepth: a sample size the decoder cannot scale
//   - ErrUnsupportedAiffLayout: missing or empty format information
package aiff
