// SPDX-License-Identifier: EPL-2.0

// Package mp3 provides seekable MP3 decoding using github.com/hajimehoshi/go-mp3.
//
// go-mp3 always produces 16-bit stereo PCM, so every source from this
// package reports two channels; mono files are duplicated to both sides.
// The decoder reports its length and seeks only over an io.Seeker, so
// other inputs are read into memory before decoding.
//
//	f, _ := os.Open("song.mp3")
//	src, err := mp3.Decoder{}.Decode(f)
//	if err != nil {
//	    // Handle error
//	}
//
//	s := src.(audio.SeekableSource)
//	s.SeekFrame(44100)
//
// Seeking is frame exact in the decoded stream; go-mp3 decodes from the
// nearest MP3 frame and discards the lead-in.
package mp3
