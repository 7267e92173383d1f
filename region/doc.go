// SPDX-License-Identifier: EPL-2.0

// Package region places audio files on the timeline.
//
// A Region plays a Range of one file with gain, an optional loop and
// fades. Region.Read is the compositor the playback disk thread calls for
// every block. A Sequence holds the regions of one track and renders
// blocks from all of them.
//
// Captures grow a Region with Write while the file is written and fix its
// length with Finalize once the file is closed.
package region
