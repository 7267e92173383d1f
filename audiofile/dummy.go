// SPDX-License-Identifier: EPL-2.0

package audiofile

import "github.com/ik5/audstream/peaks"

// Dummy stands in for a file that could not be opened. Reads return
// nothing and writes report success, so a missing file plays as silence.
type Dummy struct {
	path       string
	channels   int
	sampleRate int
}

func NewDummy(path string, channels, sampleRate int) *Dummy {
	return &Dummy{path: path, channels: max(1, channels), sampleRate: sampleRate}
}

func (d *Dummy) Open() error                               { return nil }
func (d *Dummy) Close() error                              { return nil }
func (d *Dummy) Seek(int64)                                {}
func (d *Dummy) Read([]float32, int, int64) int64          { return 0 }
func (d *Dummy) ReadAt([]float32, int, int64, int64) int64 { return 0 }
func (d *Dummy) Write(_ []float32, nframes int64) int64    { return nframes }
func (d *Dummy) Finalize() error                           { return nil }
func (d *Dummy) Length() int64                             { return 0 }
func (d *Dummy) Channels() int                             { return d.channels }
func (d *Dummy) SampleRate() int                           { return d.sampleRate }
func (d *Dummy) Path() string                              { return d.path }
func (d *Dummy) Dummy() bool                               { return true }
func (d *Dummy) Peaks() *peaks.Peaks                       { return nil }
