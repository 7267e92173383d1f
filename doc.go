// SPDX-License-Identifier: EPL-2.0

// Package audstream is a disk-streaming engine for multitrack audio.
//
// A Session holds tracks, the files they play and a Transport. Each Track
// renders its regions through a playback disk stream and captures its
// input through a record disk stream, so the real-time thread only ever
// touches lock-free rings:
//
//	s, _ := audstream.New("takes", config.Load(), log)
//	vox, _ := s.AddTrack("vox", 1)
//	vox.AddRegion("guide.wav", 0)
//
//	// real-time callback
//	copy(vox.Input()[0], micBlock)
//	s.Process(nframes)
//	play(vox.Output()[0])
//
// # Packages
//
//   - audiofile: reference-counted audio files (WAV, AIFF, MP3, Ogg Vorbis)
//     with capture through WAV
//   - peaks: the on-disk peak cache, built in the background or streamed
//     during capture
//   - region: regions, fades and the per-block compositor
//   - diskstream: the playback and record engines
//   - config: settings from the environment
//
// Metrics are registered with the default Prometheus registry; logging
// goes through the zap logger handed to New.
package audstream
