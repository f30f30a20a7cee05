// Package sectorset aggregates sectors read across however many
// attempts a track needed into the best available copy of each
// logical sector, and derives the overall disk geometry from what
// was actually found.
package sectorset

import "github.com/fluxengine/fluxcore/sector"

// SectorSet holds the best observed copy of every logical sector
// seen so far, keyed by (track, side, sector number).
type SectorSet struct {
	sectors map[sector.Key]sector.Sector
}

// New returns an empty SectorSet.
func New() *SectorSet {
	return &SectorSet{sectors: make(map[sector.Key]sector.Sector)}
}

// Insert merges a newly read sector into the set. The existing entry
// is replaced only if there was none yet, or if the new read's status
// is at least as good (OK > BadChecksum > Missing > Conflict, and
// Status is ordered accordingly), so a later attempt can only ever
// improve or tie the slot's status, never regress it.
func (s *SectorSet) Insert(sec sector.Sector) {
	key := sec.Key()
	existing, present := s.sectors[key]
	if !present || sec.Status <= existing.Status {
		s.sectors[key] = sec
	}
}

// Get returns the best observed copy of the given logical sector, and
// whether one has been seen at all.
func (s *SectorSet) Get(track, side, number int) (sector.Sector, bool) {
	sec, ok := s.sectors[sector.Key{Track: track, Side: side, Number: number}]
	return sec, ok
}

// All returns every sector currently held, in no particular order.
func (s *SectorSet) All() []sector.Sector {
	out := make([]sector.Sector, 0, len(s.sectors))
	for _, sec := range s.sectors {
		out = append(out, sec)
	}
	return out
}

// Geometry describes the overall shape of a disk image, derived from
// the sectors actually present rather than assumed up front.
type Geometry struct {
	Tracks        int
	Sides         int
	SectorsPerTrk int
	SectorSize    int
}

// ComputeGeometry derives a Geometry as the componentwise maximum of
// track/side/sector/sectorSize across every sector currently in s.
// Track/side/sector counts are reported as counts (one more than the
// largest index seen), while sector size is reported as the largest
// size seen directly.
func (s *SectorSet) ComputeGeometry() Geometry {
	var g Geometry
	for _, sec := range s.sectors {
		if sec.Track+1 > g.Tracks {
			g.Tracks = sec.Track + 1
		}
		if sec.Side+1 > g.Sides {
			g.Sides = sec.Side + 1
		}
		if sec.Number+1 > g.SectorsPerTrk {
			g.SectorsPerTrk = sec.Number + 1
		}
		if sec.Size > g.SectorSize {
			g.SectorSize = sec.Size
		}
	}
	return g
}
