// SPDX-License-Identifier: EPL-2.0

package diskstream

import "sync/atomic"

// Ring is a fixed-size circular buffer of samples. It is safe for one
// writer and one reader running concurrently without locks: the writer
// owns the write counter, the reader owns the read counter.
type Ring struct {
	buf      []float32
	capacity int64
	written  atomic.Int64 // total samples ever written
	read     atomic.Int64 // total samples ever read or discarded
}

func NewRing(capacity int) *Ring {
	return &Ring{
		buf:      make([]float32, capacity),
		capacity: int64(capacity),
	}
}

func (rb *Ring) Cap() int {
	return int(rb.capacity)
}

// ReadSpace is the number of samples waiting to be read.
func (rb *Ring) ReadSpace() int {
	return int(rb.written.Load() - rb.read.Load())
}

// WriteSpace is the number of samples that can be written without
// overwriting unread data.
func (rb *Ring) WriteSpace() int {
	return int(rb.capacity - (rb.written.Load() - rb.read.Load()))
}

// Write copies as much of data as fits and returns how much that was.
// Only the writer may call it.
func (rb *Ring) Write(data []float32) int {
	w := rb.written.Load()
	n := min(int64(len(data)), rb.capacity-(w-rb.read.Load()))
	if n <= 0 {
		return 0
	}

	pos := w % rb.capacity
	first := copy(rb.buf[pos:], data[:n])
	copy(rb.buf, data[first:n])

	rb.written.Store(w + n)
	return int(n)
}

// Read fills dst from the oldest samples and returns how many it got.
// Only the reader may call it.
func (rb *Ring) Read(dst []float32) int {
	r := rb.read.Load()
	n := min(int64(len(dst)), rb.written.Load()-r)
	if n <= 0 {
		return 0
	}

	pos := r % rb.capacity
	first := copy(dst[:n], rb.buf[pos:])
	copy(dst[first:n], rb.buf)

	rb.read.Store(r + n)
	return int(n)
}

// Discard drops up to n unread samples. Only the reader may call it.
func (rb *Ring) Discard(n int) int {
	r := rb.read.Load()
	d := min(int64(n), rb.written.Load()-r)
	if d <= 0 {
		return 0
	}

	rb.read.Store(r + d)
	return int(d)
}
