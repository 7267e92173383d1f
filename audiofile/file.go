// SPDX-License-Identifier: EPL-2.0

package audiofile

import (
	"github.com/ik5/audstream/audio"
	"github.com/ik5/audstream/formats/aiff"
	"github.com/ik5/audstream/formats/mp3"
	"github.com/ik5/audstream/formats/vorbis"
	"github.com/ik5/audstream/formats/wav"
	"github.com/ik5/audstream/peaks"
)

const (
	// AllChannels asks Read for interleaved frames of every channel.
	AllChannels = -1

	// InsaneReadFrames is the read size above which a warning is logged.
	// The read is still performed.
	InsaneReadFrames = 256 * 100
)

// File is an audio file as the streaming engine sees it. Implementations
// serialize every operation that moves the read cursor, so one File may be
// shared by several regions and disk threads.
type File interface {
	Open() error
	Close() error

	// Seek moves the read cursor; it is a no-op when already there.
	Seek(frame int64)
	// Read reads nframes from the cursor. With channel == AllChannels buf
	// receives interleaved frames, otherwise only that channel's samples.
	Read(buf []float32, channel int, nframes int64) int64
	// ReadAt seeks and reads as one operation.
	ReadAt(buf []float32, channel int, start, nframes int64) int64
	// Write appends nframes interleaved frames and feeds the peak streamer.
	Write(buf []float32, nframes int64) int64
	// Finalize ends a capture: the file header is completed and the peak
	// streamer closed. It is a no-op for files opened for reading.
	Finalize() error

	Length() int64
	Channels() int
	SampleRate() int
	Path() string
	Dummy() bool

	// Peaks is the file's peak cache. It is nil for a Dummy.
	Peaks() *peaks.Peaks
}

// DefaultRegistry returns a registry with every decoder this module ships.
func DefaultRegistry() *audio.Registry {
	r := audio.NewRegistry()

	r.Register("wav", wav.Decoder{})
	r.Register("aiff", aiff.Decoder{})
	r.Register("mp3", mp3.Decoder{})
	r.Register("ogg", vorbis.Decoder{})

	r.Alias("wave", "wav")
	r.Alias("aif", "aiff")
	r.Alias("oga", "ogg")

	return r
}
