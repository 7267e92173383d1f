// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"io"
	"path/filepath"
	"strings"
	"sync"
)

type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns number of float32 values written (not frames). When n == 0 with err == io.EOF, the stream is finished.
	ReadSamples(dst []float32) (n int, err error)

	BufSize() int

	// Close releases any resources.
	Close() error
}

// SeekableSource is a Source that can be positioned by frame.
// The audio file backend requires it for random access reads.
type SeekableSource interface {
	Source

	// Frames is the stream length in frames, or -1 when the codec cannot tell.
	Frames() int64

	// SeekFrame positions the next ReadSamples call at frame.
	SeekFrame(frame int64) error
}

// Decoder constructs a Source from an input reader.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// Registry for decoders by format key (e.g., "wav", "mp3", "ogg").
type Registry struct {
	codecs  map[string]Decoder
	aliases map[string]string

	mtx *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs:  make(map[string]Decoder),
		aliases: make(map[string]string),
		mtx:     &sync.Mutex{},
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
}

// Alias makes lookups for ext resolve to the decoder registered as format.
func (r *Registry) Alias(ext, format string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.aliases[ext] = format
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if target, ok := r.aliases[format]; ok {
		format = target
	}

	d, ok := r.codecs[format]
	return d, ok
}

// ForPath looks up the decoder by the lower-cased extension of path.
func (r *Registry) ForPath(path string) (Decoder, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return nil, false
	}

	return r.Get(ext)
}
