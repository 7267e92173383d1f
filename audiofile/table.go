// SPDX-License-Identifier: EPL-2.0

package audiofile

import (
	"path/filepath"
	"sync"

	"github.com/ik5/audstream/audio"
	"go.uber.org/zap"
)

// Handle names an open file in a Table. The zero Handle is never issued.
type Handle uint32

type entry struct {
	file File
	path string
	refs int
}

// Table owns every open audio file. Files are shared by canonical path and
// reference counted; the last Release closes the file.
type Table struct {
	registry   *audio.Registry
	sampleRate int
	mipmapped  bool
	log        *zap.Logger

	mu      sync.Mutex
	next    Handle
	entries map[Handle]*entry
	byPath  map[string]Handle
}

// NewTable creates an empty table. sampleRate is reported by the Dummy
// files that stand in for unreadable paths and used for captures.
func NewTable(registry *audio.Registry, sampleRate int, mipmapped bool, log *zap.Logger) *Table {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Table{
		registry:   registry,
		sampleRate: sampleRate,
		mipmapped:  mipmapped,
		log:        log,
		entries:    make(map[Handle]*entry),
		byPath:     make(map[string]Handle),
	}
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}

	// not created yet
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}

	return abs
}

func (t *Table) add(path string, f File) Handle {
	t.next++
	h := t.next

	t.entries[h] = &entry{file: f, path: path, refs: 1}
	t.byPath[path] = h

	return h
}

// Open returns the file at path, opening it on first use. A file that
// cannot be opened is replaced by a Dummy, so the result is never nil.
func (t *Table) Open(path string) (Handle, File) {
	path = canonical(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.byPath[path]; ok {
		e := t.entries[h]
		e.refs++
		return h, e.file
	}

	var f File = newCodecFile(path, t.registry, t.mipmapped, t.log)
	if err := f.Open(); err != nil {
		t.log.Warn("cannot open audio file, using a dummy", zap.String("path", path), zap.Error(err))
		f = NewDummy(path, 1, t.sampleRate)
	}

	return t.add(path, f), f
}

// Create starts a new capture file at path. Unlike Open, failure is
// reported to the caller.
func (t *Table) Create(path string, channels, bitDepth int) (Handle, File, error) {
	path = canonical(path)

	f, err := create(path, channels, t.sampleRate, bitDepth, t.registry, t.mipmapped, t.log)
	if err != nil {
		return 0, nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.byPath[path]; ok {
		// the old entry stays valid for its holders but is no longer found by path
		delete(t.byPath, path)
		t.log.Warn("capture replaces an open file", zap.String("path", path), zap.Uint32("handle", uint32(old)))
	}

	return t.add(path, f), f, nil
}

// Duplicate adds a reference to h and returns it.
func (t *Table) Duplicate(h Handle) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[h]; ok {
		e.refs++
	}

	return h
}

// Release drops a reference to h, closing the file at zero.
func (t *Table) Release(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return
	}

	e.refs--
	if e.refs > 0 {
		return
	}

	delete(t.entries, h)
	if t.byPath[e.path] == h {
		delete(t.byPath, e.path)
	}

	if err := e.file.Close(); err != nil {
		t.log.Warn("closing audio file", zap.String("path", e.path), zap.Error(err))
	}
}

// Get returns the file behind h.
func (t *Table) Get(h Handle) (File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return nil, false
	}

	return e.file, true
}

// Refs returns the reference count of h, 0 if it is not open.
func (t *Table) Refs(h Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[h]; ok {
		return e.refs
	}

	return 0
}

// Files returns every open file.
func (t *Table) Files() []File {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]File, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.file)
	}

	return out
}

// SampleRate is the rate new captures are written at.
func (t *Table) SampleRate() int {
	return t.sampleRate
}
