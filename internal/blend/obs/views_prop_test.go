package obs_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// Property: for any sparse (object × exposure) matrix, both projections
// flatten back to exactly the flat key set. No entry is duplicated,
// dropped, or invented by a view.
func TestViewsProjectionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		nObjects := rapid.IntRange(1, 5).Draw(rt, "objects")
		nExposures := rapid.IntRange(1, 5).Draw(rt, "exposures")

		objects := make([]*obs.ObjectData, nObjects)
		for i := range objects {
			p := geom.SkyPoint{RA: float64(i), Dec: float64(i)}
			objects[i] = obs.NewObjectData(obs.ObjectID(i+1), geom.RegionAround(p, 1e-3), p)
		}
		blend, err := obs.NewBlendData(objects...)
		if err != nil {
			rt.Fatal(err)
		}

		wcs := geom.IdentityWCS()
		bounds := geom.Box{X0: 0, Y0: 0, X1: 7, Y1: 7}
		var refs []*obs.ObsRef
		want := map[obs.Key]bool{}
		for i, o := range objects {
			for e := 0; e < nExposures; e++ {
				if !rapid.Bool().Draw(rt, "keep") {
					continue
				}
				expID := obs.ExposureID(100 + e)
				refs = append(refs, obs.NewObsRef(o, expID, false, "r", wcs, objects[i].SkyRegion(), bounds, nil))
				want[obs.Key{Object: o.ID, Exposure: expID}] = true
			}
		}
		if len(refs) == 0 {
			rt.Skip("empty matrix")
		}

		stack, err := obs.NewBlendObsRefStack(blend, refs...)
		if err != nil {
			rt.Fatal(err)
		}

		got := map[obs.Key]bool{}
		for expID, view := range stack.ByExposure() {
			for _, id := range view.ObjectIDs() {
				k := obs.Key{Object: id, Exposure: expID}
				if got[k] {
					rt.Fatalf("duplicate entry %s in exposure views", k)
				}
				got[k] = true
			}
		}
		if len(got) != len(want) {
			rt.Fatalf("exposure views cover %d keys, want %d", len(got), len(want))
		}
		for k := range want {
			if !got[k] {
				rt.Fatalf("exposure views dropped %s", k)
			}
		}

		got = map[obs.Key]bool{}
		for id, view := range stack.ByObject() {
			for _, expID := range view.ExposureIDs() {
				k := obs.Key{Object: id, Exposure: expID}
				if got[k] {
					rt.Fatalf("duplicate entry %s in object views", k)
				}
				got[k] = true
			}
		}
		if len(got) != len(want) {
			rt.Fatalf("object views cover %d keys, want %d", len(got), len(want))
		}
	})
}
