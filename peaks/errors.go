package peaks

import "errors"

var (
	// ErrCorruptPeakfile means a block header has a zero chunksize. The
	// file is damaged on disk; a build that meets one stops.
	ErrCorruptPeakfile = errors.New("corrupt peakfile: zero chunksize")

	// ErrNoPeakBlocks means the peakfile exists but holds no block yet.
	// Callers treat it as "not ready", never as a failure.
	ErrNoPeakBlocks = errors.New("peakfile has no blocks")

	ErrBuildPending = errors.New("peak build already pending")
)
