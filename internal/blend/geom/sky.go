package geom

import (
	"fmt"
	"sort"
)

// SkyPoint is a position on the sky in ICRS degrees.
type SkyPoint struct {
	RA  float64 // right ascension (degrees)
	Dec float64 // declination (degrees)
}

// String renders the point in a compact fixed-precision form for logs.
func (p SkyPoint) String() string {
	return fmt.Sprintf("(%.6f, %+.6f)", p.RA, p.Dec)
}

// SkyRange is a half-open interval [Begin, End) of spatial-index IDs
// (HTM/HEALPix style). Ranges are the storage unit of SkyRegion.
type SkyRange struct {
	Begin uint64
	End   uint64
}

// SkyRegion is a set of sky-index ranges describing the area covered by
// an object or blend. The zero value is the empty region.
//
// The internal range list is always normalised: sorted by Begin, with
// no empty, overlapping or adjacent ranges. All constructors and
// operations preserve this invariant, so two regions covering the same
// area are structurally equal.
type SkyRegion struct {
	ranges []SkyRange
}

// NewSkyRegion builds a region from arbitrary ranges, normalising them.
func NewSkyRegion(ranges ...SkyRange) SkyRegion {
	rs := make([]SkyRange, 0, len(ranges))
	for _, r := range ranges {
		if r.End > r.Begin {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Begin < rs[j].Begin })
	merged := rs[:0]
	for _, r := range rs {
		n := len(merged)
		if n > 0 && r.Begin <= merged[n-1].End {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return SkyRegion{ranges: append([]SkyRange(nil), merged...)}
}

// IsEmpty reports whether the region covers no area.
func (s SkyRegion) IsEmpty() bool { return len(s.ranges) == 0 }

// Ranges returns a copy of the normalised range list.
func (s SkyRegion) Ranges() []SkyRange {
	return append([]SkyRange(nil), s.ranges...)
}

// Area returns the total number of index cells covered.
func (s SkyRegion) Area() uint64 {
	var total uint64
	for _, r := range s.ranges {
		total += r.End - r.Begin
	}
	return total
}

// Overlaps reports whether any cell is covered by both regions.
func (s SkyRegion) Overlaps(other SkyRegion) bool {
	i, j := 0, 0
	for i < len(s.ranges) && j < len(other.ranges) {
		a, b := s.ranges[i], other.ranges[j]
		if a.Begin < b.End && b.Begin < a.End {
			return true
		}
		if a.End <= b.Begin {
			i++
		} else {
			j++
		}
	}
	return false
}

// Union returns the region covering cells in either input.
func (s SkyRegion) Union(other SkyRegion) SkyRegion {
	return NewSkyRegion(append(s.Ranges(), other.ranges...)...)
}

// Intersect returns the region covering cells in both inputs.
func (s SkyRegion) Intersect(other SkyRegion) SkyRegion {
	var out []SkyRange
	i, j := 0, 0
	for i < len(s.ranges) && j < len(other.ranges) {
		a, b := s.ranges[i], other.ranges[j]
		begin := a.Begin
		if b.Begin > begin {
			begin = b.Begin
		}
		end := a.End
		if b.End < end {
			end = b.End
		}
		if end > begin {
			out = append(out, SkyRange{Begin: begin, End: end})
		}
		if a.End <= b.End {
			i++
		} else {
			j++
		}
	}
	return NewSkyRegion(out...)
}

// Contains reports whether every cell of other is covered by s.
func (s SkyRegion) Contains(other SkyRegion) bool {
	return s.Intersect(other).Area() == other.Area()
}

// Equal reports structural equality (same normalised range list).
func (s SkyRegion) Equal(other SkyRegion) bool {
	if len(s.ranges) != len(other.ranges) {
		return false
	}
	for i := range s.ranges {
		if s.ranges[i] != other.ranges[i] {
			return false
		}
	}
	return true
}
