// SPDX-License-Identifier: EPL-2.0

package peaks

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

type block struct {
	chunksize int64
	start     int64 // file offset of the first peak
	groups    int64 // peaks per channel
}

// Peakfile reads one peakfile. The block chain is scanned on the first Open
// and cached until Rescan.
type Peakfile struct {
	path     string
	channels int
	f        *os.File

	scanned bool
	blocks  []block // sorted by chunksize
	cur     int

	raw []byte
}

// Open opens path, scanning it if needed, and selects the finest block whose
// chunksize does not exceed chunksize, or the finest block if none does.
// A file with no complete header returns ErrNoPeakBlocks.
func (pf *Peakfile) Open(path string, channels int, chunksize int64) error {
	if pf.f != nil && pf.path != path {
		pf.Close()
	}

	if pf.f == nil {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening peakfile: %w", err)
		}

		pf.f = f
		pf.path = path
		pf.scanned = false
	}

	pf.channels = channels

	if !pf.scanned {
		if err := pf.scan(); err != nil {
			return err
		}
	}

	if len(pf.blocks) == 0 {
		return ErrNoPeakBlocks
	}

	pf.cur = 0
	for i, b := range pf.blocks {
		if b.chunksize <= chunksize {
			pf.cur = i
		}
	}

	return nil
}

func (pf *Peakfile) scan() error {
	info, err := pf.f.Stat()
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	size := info.Size()
	group := int64(peakSize * pf.channels)

	pf.blocks = pf.blocks[:0]

	var off int64
	for {
		h, err := readHeader(pf.f, off)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w", err)
		}

		if h.Chunksize == 0 {
			pf.blocks = pf.blocks[:0]
			return fmt.Errorf("%s at offset %d: %w", pf.path, off, ErrCorruptPeakfile)
		}

		end := size
		if h.Skip != 0 {
			end = min(off+int64(h.Skip), size)
		}

		pf.blocks = append(pf.blocks, block{
			chunksize: int64(h.Chunksize),
			start:     off + headerSize,
			groups:    max(0, (end-off-headerSize)/group),
		})

		if h.Skip == 0 {
			break
		}
		off += int64(h.Skip)
	}

	sort.Slice(pf.blocks, func(i, j int) bool {
		return pf.blocks[i].chunksize < pf.blocks[j].chunksize
	})
	pf.scanned = true

	return nil
}

// Rescan drops the cached block chain; the next Open reads it again.
func (pf *Peakfile) Rescan() {
	pf.Close()
}

func (pf *Peakfile) Close() error {
	pf.scanned = false
	pf.blocks = pf.blocks[:0]

	if pf.f == nil {
		return nil
	}

	err := pf.f.Close()
	pf.f = nil

	return err
}

// Blocks returns the number of blocks found by the last scan.
func (pf *Peakfile) Blocks() int {
	return len(pf.blocks)
}

// ChunkSize is the chunksize of the selected block.
func (pf *Peakfile) ChunkSize() int64 {
	if len(pf.blocks) == 0 {
		return 0
	}
	return pf.blocks[pf.cur].chunksize
}

// Peaks is the number of peaks per channel in the selected block.
func (pf *Peakfile) Peaks() int64 {
	if len(pf.blocks) == 0 {
		return 0
	}
	return pf.blocks[pf.cur].groups
}

// frameToPeak is the index of the first peak covering frame in the
// selected block, counted in single-channel peaks.
func (pf *Peakfile) frameToPeak(frame int64) int64 {
	return frame / pf.ChunkSize() * int64(pf.channels)
}

// Ready reports whether npeaks peaks starting at frame are present. More
// than one block means the build finished, so the answer is always yes.
func (pf *Peakfile) Ready(start, npeaks int64) bool {
	if len(pf.blocks) > 1 {
		return true
	}
	if len(pf.blocks) == 0 {
		return false
	}

	return pf.Peaks()*int64(pf.channels) >= pf.frameToPeak(start)+npeaks*int64(pf.channels)
}

// ReadPeaks fills dst with npeaks peaks per channel, interleaved by
// channel, starting at frame start and covering chunksize frames each.
// When chunksize is coarser than the stored block, consecutive stored
// peaks are folded together. It returns the number of peaks per channel
// delivered, which is short at the end of the block.
func (pf *Peakfile) ReadPeaks(dst []Peak, start, npeaks, chunksize int64) (int64, error) {
	if len(pf.blocks) == 0 || npeaks <= 0 {
		return 0, nil
	}

	b := pf.blocks[pf.cur]
	ch := int64(pf.channels)

	ratio := chunksize / b.chunksize
	if ratio < 1 {
		ratio = 1
	}

	first := start / b.chunksize
	avail := b.groups - first
	if avail <= 0 {
		return 0, nil
	}

	want := min(npeaks*ratio, avail)
	need := int(want * ch * peakSize)
	if cap(pf.raw) < need {
		pf.raw = make([]byte, need)
	}
	raw := pf.raw[:need]

	n, err := pf.f.ReadAt(raw, b.start+first*ch*peakSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("reading peaks: %w", err)
	}
	got := int64(n) / (ch * peakSize)

	if ratio == 1 {
		decodePeaks(dst[:got*ch], raw)
		return got, nil
	}

	var stored [1]Peak
	var out int64
	for g := int64(0); g < got; out++ {
		acc := dst[out*ch : out*ch+ch]
		for c := range acc {
			acc[c] = Peak{}
		}

		for k := int64(0); k < ratio && g < got; k, g = k+1, g+1 {
			for c := range ch {
				decodePeaks(stored[:], raw[(g*ch+c)*peakSize:])
				acc[c].fold(stored[0])
			}
		}
	}

	return out, nil
}
