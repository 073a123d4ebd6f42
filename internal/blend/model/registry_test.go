package model

import (
	"testing"

	"github.com/umbra-data/multifit/internal/blend/geom"
)

// constModel is a minimal Model for registry tests.
type constModel struct {
	value float64
}

func (m *constModel) Schema() Schema  { return Schema{"value": Leaf(Float64)} }
func (m *constModel) AsDict() Values  { return Values{"value": m.value} }
func (m *constModel) Render(Frame, *geom.Image) error {
	return ErrUnsupportedOperation
}
func (m *constModel) MaskPlanes(Frame, *geom.Mask, uint32, *geom.Image) error {
	return ErrUnsupportedOperation
}
func (m *constModel) ComputeSkyRegion(geom.SkyPoint) geom.SkyRegion {
	return geom.SkyRegion{}
}

func TestRegistryAttachOverwrites(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatalf("new registry has %d entries", r.Len())
	}

	first := &constModel{value: 1}
	second := &constModel{value: 2}
	r.Attach("moments", first)
	r.Attach("sersic", &constModel{value: 3})
	r.Attach("moments", second)

	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	if got := r.Get("moments"); got != Model(second) {
		t.Errorf("Get returned %+v, want the later attachment", got)
	}
	if r.Get("missing") != nil {
		t.Error("Get of unknown key should be nil")
	}

	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "moments" || keys[1] != "sersic" {
		t.Errorf("Keys = %v, want sorted [moments sersic]", keys)
	}
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	r.Attach("moments", &constModel{value: 1})

	snap := r.Snapshot()
	delete(snap, "moments")
	if r.Len() != 1 {
		t.Error("mutating a snapshot should not affect the registry")
	}
}

func TestCheckDict(t *testing.T) {
	if _, err := CheckDict(&constModel{value: 4}); err != nil {
		t.Fatalf("valid model rejected: %v", err)
	}
}
