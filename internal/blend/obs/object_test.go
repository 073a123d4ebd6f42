package obs_test

import (
	"testing"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/obs"
	"github.com/umbra-data/multifit/internal/testutil"
)

func TestAttachModelRegionNeverShrinks(t *testing.T) {
	pos := geom.SkyPoint{RA: 200, Dec: 10}
	wide := &testutil.GaussianModel{Center: pos, Flux: 100, Sigma: 8, PixelScale: 1e-4}
	narrow := &testutil.GaussianModel{Center: pos, Flux: 100, Sigma: 1, PixelScale: 1e-4}

	o := obs.NewObjectData(1, geom.NewSkyRegion(), pos)
	o.AttachModel("moments", wide)
	covered := o.SkyRegion()
	if !covered.Contains(wide.ComputeSkyRegion(pos)) {
		t.Fatal("attaching a model must grow the region to cover it")
	}

	// Replacing the model under the same key keeps earlier coverage.
	o.AttachModel("moments", narrow)
	if !o.SkyRegion().Contains(covered) {
		t.Error("replacing a model must not shrink the region")
	}
	if !o.SkyRegion().Contains(narrow.ComputeSkyRegion(pos)) {
		t.Error("region must still cover the replacement model")
	}
	if got := o.Models.Get("moments"); got != narrow {
		t.Error("registry must hold the replacement model")
	}
}
