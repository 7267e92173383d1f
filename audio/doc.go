// SPDX-License-Identifier: EPL-2.0

// Package audio provides low-level audio processing primitives.
//
// This package contains the building blocks the rest of the module is made of:
//   - Source and SeekableSource interfaces for decoded audio
//   - Registry for decoder lookup by format or file extension
//   - BufferSource, an in-memory seekable source
//   - Resampler for sample rate conversion on import
//   - interleave, mix and gain helpers used by the region compositor
//
// # Source Interface
//
// The Source interface is the foundation of audio processing:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// The audio file backend needs random access, so decoders that can seek also
// implement SeekableSource:
//
//	type SeekableSource interface {
//	    Source
//	    Frames() int64
//	    SeekFrame(frame int64) error
//	}
//
// Codecs that cannot seek cheaply are drained into a BufferSource with Load.
//
// # Resampling
//
// The Resampler changes the sample rate of audio using cubic interpolation:
//
//	resampler := audio.NewResampler(source, 48000)
//	buf := make([]float32, 4096)
//	n, err := resampler.ReadSamples(buf)
//
// Output frame positions are computed as exact rationals of the two rates,
// so the output length is ceil(frames × dst / src) for any pair of rates.
//
// # Format Registry
//
// The registry allows dynamic decoder registration:
//
//	registry := audio.NewRegistry()
//	registry.Register("aiff", aiff.Decoder{})
//	registry.Alias("aif", "aiff")
//	decoder, ok := registry.ForPath("/takes/bass.aif")
//
// # Channel Helpers
//
// InterleavedCopy and InterleavedMix move one channel of an interleaved
// buffer into one channel of another with different channel counts.
// Interleave and Deinterleave convert between interleaved buffers and the
// per-channel buffers of the disk streams. ApplyGain scales a block in place.
//
// # Sample Format
//
// Audio samples are represented as float32 in the range [-1.0, 1.0]:
//   - 0.0 represents silence
//   - 1.0 represents maximum positive amplitude
//   - -1.0 represents maximum negative amplitude
//
// # Error Handling
//
// Sources return io.EOF when no more data is available. Other errors indicate
// problems with the source or processing:
//
//	for {
//	    n, err := source.ReadSamples(buf)
//	    if errors.Is(err, io.EOF) {
//	        break // Normal end of stream
//	    }
//	    if err != nil {
//	        return err // Processing error
//	    }
//	    // Process n samples from buf
//	}
package audio
