// SPDX-License-Identifier: EPL-2.0

package region

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Sequence is the ordered set of regions on one track.
type Sequence struct {
	log *zap.Logger

	mu      sync.RWMutex
	regions []*Region
}

func NewSequence(log *zap.Logger) *Sequence {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sequence{log: log}
}

// Add inserts r keeping the regions ordered by start frame.
func (s *Sequence) Add(r *Region) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := r.Start()
	i, _ := slices.BinarySearchFunc(s.regions, start, func(e *Region, t int64) int {
		switch st := e.Start(); {
		case st < t:
			return -1
		case st > t:
			return 1
		}
		return 0
	})
	s.regions = slices.Insert(s.regions, i, r)
}

// Remove takes r out of the sequence. It does not release r's file.
func (s *Sequence) Remove(r *Region) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.regions, r)
	if i < 0 {
		return false
	}
	s.regions = slices.Delete(s.regions, i, i+1)

	return true
}

// Regions returns a copy of the regions in start order.
func (s *Sequence) Regions() []*Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.regions)
}

// Len is the number of regions.
func (s *Sequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.regions)
}

// Play renders timeline frames [pos, pos+nframes) into the interleaved
// buf. Silence fills what no region covers. It always produces nframes.
func (s *Sequence) Play(buf []float32, pos, nframes int64, channels int) int64 {
	clear(buf[:nframes*int64(channels)])

	s.mu.RLock()
	defer s.mu.RUnlock()

	empty := true
	for _, r := range s.regions {
		if r.Read(buf, empty, pos, nframes, channels) > 0 {
			empty = false
		}
	}

	return nframes
}
