package geom

import "sort"

// Span is a horizontal run of pixels: row Y, columns [X0, X1] inclusive.
type Span struct {
	Y  int
	X0 int
	X1 int
}

// Width returns the number of pixels in the span.
func (s Span) Width() int {
	if s.X1 < s.X0 {
		return 0
	}
	return s.X1 - s.X0 + 1
}

// Box is an axis-aligned pixel bounding box, [X0,X1] × [Y0,Y1] inclusive.
type Box struct {
	X0, Y0 int
	X1, Y1 int
}

// Width returns the box width in pixels (0 for an inverted box).
func (b Box) Width() int {
	if b.X1 < b.X0 {
		return 0
	}
	return b.X1 - b.X0 + 1
}

// Height returns the box height in pixels (0 for an inverted box).
func (b Box) Height() int {
	if b.Y1 < b.Y0 {
		return 0
	}
	return b.Y1 - b.Y0 + 1
}

// Contains reports whether pixel (x, y) lies inside the box.
func (b Box) Contains(x, y int) bool {
	return x >= b.X0 && x <= b.X1 && y >= b.Y0 && y <= b.Y1
}

// SpanSet is a normalised set of pixel spans: sorted by (Y, X0) with no
// overlapping or adjacent spans on the same row. The zero value is empty.
type SpanSet struct {
	spans []Span
}

// NewSpanSet builds a normalised span set from arbitrary spans.
func NewSpanSet(spans ...Span) SpanSet {
	ss := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.X1 >= s.X0 {
			ss = append(ss, s)
		}
	}
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].Y != ss[j].Y {
			return ss[i].Y < ss[j].Y
		}
		return ss[i].X0 < ss[j].X0
	})
	merged := ss[:0]
	for _, s := range ss {
		n := len(merged)
		if n > 0 && merged[n-1].Y == s.Y && s.X0 <= merged[n-1].X1+1 {
			if s.X1 > merged[n-1].X1 {
				merged[n-1].X1 = s.X1
			}
			continue
		}
		merged = append(merged, s)
	}
	return SpanSet{spans: append([]Span(nil), merged...)}
}

// IsEmpty reports whether the set contains no pixels.
func (ss SpanSet) IsEmpty() bool { return len(ss.spans) == 0 }

// Spans returns a copy of the normalised span list.
func (ss SpanSet) Spans() []Span { return append([]Span(nil), ss.spans...) }

// Count returns the total number of pixels covered.
func (ss SpanSet) Count() int {
	total := 0
	for _, s := range ss.spans {
		total += s.Width()
	}
	return total
}

// BBox returns the tight bounding box of the set. Empty sets return an
// inverted box with zero width and height.
func (ss SpanSet) BBox() Box {
	if len(ss.spans) == 0 {
		return Box{X0: 0, Y0: 0, X1: -1, Y1: -1}
	}
	b := Box{
		X0: ss.spans[0].X0, X1: ss.spans[0].X1,
		Y0: ss.spans[0].Y, Y1: ss.spans[len(ss.spans)-1].Y,
	}
	for _, s := range ss.spans {
		if s.X0 < b.X0 {
			b.X0 = s.X0
		}
		if s.X1 > b.X1 {
			b.X1 = s.X1
		}
	}
	return b
}

// Contains reports whether pixel (x, y) is in the set.
func (ss SpanSet) Contains(x, y int) bool {
	for _, s := range ss.spans {
		if s.Y == y && x >= s.X0 && x <= s.X1 {
			return true
		}
		if s.Y > y {
			break
		}
	}
	return false
}

// Overlaps reports whether the two sets share any pixel.
func (ss SpanSet) Overlaps(other SpanSet) bool {
	i, j := 0, 0
	for i < len(ss.spans) && j < len(other.spans) {
		a, b := ss.spans[i], other.spans[j]
		if a.Y == b.Y && a.X0 <= b.X1 && b.X0 <= a.X1 {
			return true
		}
		if a.Y < b.Y || (a.Y == b.Y && a.X1 < b.X1) {
			i++
		} else {
			j++
		}
	}
	return false
}

// Union returns the set covering pixels in either input.
func (ss SpanSet) Union(other SpanSet) SpanSet {
	return NewSpanSet(append(ss.Spans(), other.spans...)...)
}

// Intersect returns the set covering pixels in both inputs.
func (ss SpanSet) Intersect(other SpanSet) SpanSet {
	var out []Span
	for _, a := range ss.spans {
		for _, b := range other.spans {
			if a.Y != b.Y {
				continue
			}
			x0, x1 := a.X0, a.X1
			if b.X0 > x0 {
				x0 = b.X0
			}
			if b.X1 < x1 {
				x1 = b.X1
			}
			if x1 >= x0 {
				out = append(out, Span{Y: a.Y, X0: x0, X1: x1})
			}
		}
	}
	return NewSpanSet(out...)
}
