// SPDX-License-Identifier: EPL-2.0

// Package wav provides seekable WAV reading and PCM WAV capture writing.
//
// Headers are parsed with github.com/go-audio/wav, and captures are encoded
// through its Encoder. Sample data is read directly from the data chunk,
// so a Reader can jump to any frame with one seek. This is what the disk
// streams need when the transport relocates.
//
// # Supported Formats
//
// Reading:
//   - PCM 8, 16, 24 and 32-bit
//   - IEEE float 32-bit
//   - Any channel count and sample rate
//
// Writing:
//   - PCM 16, 24 and 32-bit
//
// # Reading
//
//	f, _ := os.Open("take.wav")
//	r, err := wav.NewReader(f)
//	if err != nil {
//	    // Handle error
//	}
//
//	r.SeekFrame(48000)
//	buf := make([]float32, 1024*r.Channels())
//	n, err := r.ReadSamples(buf)
//
// Decoder wraps NewReader for use with an audio.Registry. Inputs that are
// not an io.ReadSeeker are buffered into memory first.
//
// A header with a zero or oversized data length, which is what an
// unfinished capture leaves behind, is corrected from the file size.
//
// # Writing
//
//	f, _ := os.Create("take.wav")
//	w, _ := wav.NewWriter(f, 48000, 2, 24)
//	w.Write(interleaved)
//	w.Close()
//	f.Close()
//
// Writer.Close patches the header sizes but leaves the file open.
//
// # Error Handling
//
//   - ErrNotWavFile: the input has no RIFF/WAVE header
//   - ErrUnsupportedEncoding: neither PCM nor IEEE float
//   - ErrUnsupportedBitDepth: a bit depth the reader or writer cannot handle
//   - ErrUnsupportedWavLayout: no data chunk, or zero channels on write
//   - ErrWriterClosed: Write after Close
package wav
