// SPDX-License-Identifier: EPL-2.0

// Package audiofile is the audio file backend of the streaming engine.
//
// A File gives frame-addressed, lock-protected access to one audio file,
// whatever its codec, plus its peak cache. Files are owned by a Table,
// which shares one File per canonical path and closes it when the last
// Handle is released:
//
//	tbl := audiofile.NewTable(nil, 48000, true, logger)
//	h, f := tbl.Open("drums.wav")
//	defer tbl.Release(h)
//
//	buf := make([]float32, 1024*f.Channels())
//	n := f.ReadAt(buf, audiofile.AllChannels, 48000, 1024)
//
// Open never fails. A file that is missing or cannot be decoded is replaced
// by a Dummy that reads as silence, and the problem is logged once.
// Import is the place where unreadable input is reported to the user:
//
//	path, err := audiofile.Import("loop.mp3", 48000, 24, nil)
//
// Captures are created with Table.Create and written as PCM WAV. Every
// Write also feeds the file's peak streamer; Finalize completes both.
package audiofile
