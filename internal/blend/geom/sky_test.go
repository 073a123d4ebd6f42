package geom

import "testing"

func TestNewSkyRegionNormalises(t *testing.T) {
	tests := []struct {
		name  string
		input []SkyRange
		want  []SkyRange
	}{
		{
			name:  "empty",
			input: nil,
			want:  nil,
		},
		{
			name:  "drops empty ranges",
			input: []SkyRange{{Begin: 10, End: 10}, {Begin: 5, End: 3}},
			want:  nil,
		},
		{
			name:  "sorts",
			input: []SkyRange{{Begin: 20, End: 30}, {Begin: 0, End: 10}},
			want:  []SkyRange{{Begin: 0, End: 10}, {Begin: 20, End: 30}},
		},
		{
			name:  "merges overlap",
			input: []SkyRange{{Begin: 0, End: 15}, {Begin: 10, End: 30}},
			want:  []SkyRange{{Begin: 0, End: 30}},
		},
		{
			name:  "merges adjacent",
			input: []SkyRange{{Begin: 0, End: 10}, {Begin: 10, End: 20}},
			want:  []SkyRange{{Begin: 0, End: 20}},
		},
		{
			name:  "keeps gaps",
			input: []SkyRange{{Begin: 0, End: 10}, {Begin: 11, End: 20}},
			want:  []SkyRange{{Begin: 0, End: 10}, {Begin: 11, End: 20}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewSkyRegion(tc.input...).Ranges()
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("range %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSkyRegionSetOps(t *testing.T) {
	a := NewSkyRegion(SkyRange{Begin: 0, End: 100}, SkyRange{Begin: 200, End: 300})
	b := NewSkyRegion(SkyRange{Begin: 50, End: 250})

	if !a.Overlaps(b) {
		t.Error("a should overlap b")
	}
	if a.Overlaps(NewSkyRegion(SkyRange{Begin: 150, End: 160})) {
		t.Error("a should not overlap the gap")
	}

	union := a.Union(b)
	if got := union.Area(); got != 300 {
		t.Errorf("union area = %d, want 300", got)
	}
	if !union.Contains(a) || !union.Contains(b) {
		t.Error("union must contain both operands")
	}

	inter := a.Intersect(b)
	wantInter := NewSkyRegion(SkyRange{Begin: 50, End: 100}, SkyRange{Begin: 200, End: 250})
	if !inter.Equal(wantInter) {
		t.Errorf("intersect = %v, want %v", inter.Ranges(), wantInter.Ranges())
	}

	if !a.Intersect(SkyRegion{}).IsEmpty() {
		t.Error("intersect with empty should be empty")
	}
	if !a.Union(SkyRegion{}).Equal(a) {
		t.Error("union with empty should be identity")
	}
}

func TestSkyRegionStructuralEquality(t *testing.T) {
	// Two regions covering the same area compare equal regardless of
	// how the ranges were supplied.
	a := NewSkyRegion(SkyRange{Begin: 0, End: 5}, SkyRange{Begin: 5, End: 10})
	b := NewSkyRegion(SkyRange{Begin: 0, End: 10})
	if !a.Equal(b) {
		t.Errorf("%v != %v", a.Ranges(), b.Ranges())
	}
}

func TestRegionAround(t *testing.T) {
	p := SkyPoint{RA: 200, Dec: 10}
	r := RegionAround(p, 5e-3)
	if r.IsEmpty() {
		t.Fatal("region should not be empty")
	}
	c := CellAt(p)
	if !r.Contains(NewSkyRegion(SkyRange{Begin: c, End: c + 1})) {
		t.Error("region should contain the centre cell")
	}

	// Zero radius degenerates to the single containing cell.
	single := RegionAround(p, 0)
	if got := single.Area(); got != 1 {
		t.Errorf("zero-radius area = %d, want 1", got)
	}

	// Nearby points in the same cell share a region.
	if CellAt(p) != CellAt(SkyPoint{RA: 200.0001, Dec: 10.0001}) {
		t.Error("points in the same cell should share an index")
	}
}
