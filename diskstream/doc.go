// SPDX-License-Identifier: EPL-2.0

// Package diskstream moves audio between disk and the real-time thread.
//
// Each stream owns one lock-free Ring per channel, sized to hold a few
// seconds of audio in whole blocks, and a disk goroutine that the real-time
// side wakes through a counting semaphore after every block. Playback keeps
// the rings full from a Reader; Record drains them into a Capturer.
//
// The real-time entry points (Process, Seek, SeekPending) only touch
// atomics and the rings. Everything that may block, including Shutdown
// and Stop, belongs on other threads.
package diskstream
