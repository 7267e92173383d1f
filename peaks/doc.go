// SPDX-License-Identifier: EPL-2.0

// Package peaks maintains the waveform summary cache stored next to each
// audio file.
//
// A peakfile (<audio>.peak) is a chain of blocks. Each block starts with a
// little-endian header
//
//	chunksize uint32  frames summarized by one peak
//	skip      uint32  bytes from this header to the next, 0 for the last
//
// followed by {min, max float32} pairs, one per channel per chunk. Block 0
// has chunksize CacheMinimum and every following block doubles it
// (CacheStep), up to CacheLevels blocks or until the audio is shorter than
// the next chunksize. Every level includes the trailing partial chunk, so a
// source of M frames has ceil(M/chunksize) peaks at each level.
//
// # Building
//
// A Builder scans a finished file once to write the base block, then
// folds each level into the next. A Streamer writes the base block while a
// file is captured; once capture stops the coarse levels are appended.
//
// # Reading
//
// Peaks is the per-file controller the rest of the engine talks to:
//
//	p := peaks.New(file, true, logger)
//	if p.NeedsMorePeaks() {
//	    p.MakePeaksAsync(func(err error) { ... })
//	}
//
//	ctx := peaks.NewContext()
//	n := p.ReadPeaks(ctx, start, npeaks, chunksize)
//	draw(ctx.Peaks()[:n*channels])
//
// ReadPeaks picks the finest block whose chunksize does not exceed the
// request and folds stored peaks together when the request is coarser.
// Requests finer than CacheMinimum are computed from the audio itself.
//
// A Context holds the scratch buffers of one UI thread. Never share one
// with a disk or real-time goroutine.
//
// # Errors
//
// A peakfile with no complete block is "not ready": reads return zero
// peaks. A header with a zero chunksize is ErrCorruptPeakfile and stops
// the build that finds it.
package peaks
