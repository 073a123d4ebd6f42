package geom

import "testing"

func TestImageViewSemantics(t *testing.T) {
	backing := make([]float64, 16)
	im, err := NewImageFrom(backing, 4, 4, 10, 20)
	if err != nil {
		t.Fatal(err)
	}

	// At and Set use the parent grid's coordinates.
	im.Set(10, 20, 1.5)
	im.Set(13, 23, 2.5)
	if backing[0] != 1.5 || backing[15] != 2.5 {
		t.Errorf("backing = %v, writes did not land in the caller's slice", backing)
	}
	if got := im.At(13, 23); got != 2.5 {
		t.Errorf("At(13,23) = %v, want 2.5", got)
	}

	if _, err := NewImageFrom(make([]float64, 15), 4, 4, 0, 0); err == nil {
		t.Error("undersized buffer should be rejected")
	}
}

func TestImageSub(t *testing.T) {
	a := NewImage(4, 4, 0, 0)
	for i := range a.Pix {
		a.Pix[i] = 10
	}

	// The subtrahend is a smaller image offset into a's grid; only the
	// overlapping pixels change.
	b := NewImage(2, 2, 1, 1)
	b.Pix = []float64{1, 2, 3, 4}

	changed := a.Sub(b)
	if changed != 4 {
		t.Fatalf("changed = %d, want 4", changed)
	}
	if got := a.At(1, 1); got != 9 {
		t.Errorf("At(1,1) = %v, want 9", got)
	}
	if got := a.At(2, 2); got != 6 {
		t.Errorf("At(2,2) = %v, want 6", got)
	}
	if got := a.At(0, 0); got != 10 {
		t.Errorf("At(0,0) = %v, want 10 (outside overlap)", got)
	}

	// Subtracting zeros reports no pixels touched.
	zero := NewImage(2, 2, 1, 1)
	if changed := a.Sub(zero); changed != 0 {
		t.Errorf("zero subtraction changed %d pixels, want 0", changed)
	}

	// Disjoint bounds touch nothing.
	far := NewImage(2, 2, 100, 100)
	far.Pix = []float64{1, 1, 1, 1}
	if changed := a.Sub(far); changed != 0 {
		t.Errorf("disjoint subtraction changed %d pixels, want 0", changed)
	}
}

func TestImageCloneIndependence(t *testing.T) {
	a := NewImage(2, 2, 0, 0)
	a.Pix[0] = 7
	b := a.Clone()
	b.Pix[0] = 9
	if a.Pix[0] != 7 {
		t.Error("clone shares backing storage")
	}
	if !a.Equal(a.Clone()) {
		t.Error("clone should compare equal")
	}
}

func TestMaskOr(t *testing.T) {
	m := NewMask(3, 3, 0, 0)
	m.Or(1, 1, MaskNeighbor)
	m.Or(1, 1, MaskBad)
	if got := m.At(1, 1); got != MaskNeighbor|MaskBad {
		t.Errorf("At(1,1) = %#x, want %#x", got, MaskNeighbor|MaskBad)
	}
	if got := m.At(0, 0); got != 0 {
		t.Errorf("At(0,0) = %#x, want 0", got)
	}

	// Out-of-bounds writes are dropped.
	m.Or(5, 5, MaskBad)
	if got := m.At(5, 5); got != 0 {
		t.Errorf("out-of-bounds At = %#x, want 0", got)
	}
}

func TestSpanSetNormalisation(t *testing.T) {
	ss := NewSpanSet(
		Span{Y: 1, X0: 5, X1: 9},
		Span{Y: 1, X0: 8, X1: 12},
		Span{Y: 0, X0: 0, X1: 2},
	)
	spans := ss.Spans()
	if len(spans) != 2 {
		t.Fatalf("spans = %v, want two merged rows", spans)
	}
	if spans[0].Y != 0 || spans[1] != (Span{Y: 1, X0: 5, X1: 12}) {
		t.Errorf("spans = %v", spans)
	}
	if ss.Count() != 11 {
		t.Errorf("Count = %d, want 11", ss.Count())
	}
	if !ss.Contains(10, 1) || ss.Contains(3, 0) {
		t.Error("membership wrong after merge")
	}
	bbox := ss.BBox()
	if bbox != (Box{X0: 0, Y0: 0, X1: 12, Y1: 1}) {
		t.Errorf("BBox = %v", bbox)
	}
}
