package testutil

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/model"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// MemoryLoader is an in-memory obs.Loader. Every FetchStamp returns
// freshly allocated buffers, matching the storage contract, so tests
// can mutate loaded data without corrupting the fixture.
type MemoryLoader struct {
	mu      sync.Mutex
	stamps  map[obs.Key]*memStamp
	fail    map[obs.Key]error
	fetches int
}

type memStamp struct {
	image  *geom.Image
	mask   *geom.Mask
	weight *geom.Image
	psf    *geom.Image
}

// NewMemoryLoader returns an empty loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{
		stamps: make(map[obs.Key]*memStamp),
		fail:   make(map[obs.Key]error),
	}
}

// Put stores a stamp for (object, exposure). Buffers are copied in.
func (l *MemoryLoader) Put(k obs.Key, image *geom.Image, mask *geom.Mask, weight *geom.Image, psf *geom.Image) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := &memStamp{image: image.Clone()}
	if mask != nil {
		s.mask = mask.Clone()
	}
	if weight != nil {
		s.weight = weight.Clone()
	}
	if psf != nil {
		s.psf = psf.Clone()
	}
	l.stamps[k] = s
}

// FailKey makes loads of k fail with err, for partition-failure tests.
func (l *MemoryLoader) FailKey(k obs.Key, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail[k] = err
}

// Fetches returns the number of successful FetchStamp calls.
func (l *MemoryLoader) Fetches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches
}

// FetchStamp implements obs.Loader.
func (l *MemoryLoader) FetchStamp(_ context.Context, ref *obs.ObsRef) (*obs.Stamp, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := ref.Key()
	if err, ok := l.fail[k]; ok {
		return nil, err
	}
	s, ok := l.stamps[k]
	if !ok {
		return nil, fmt.Errorf("no stamp for %s", k)
	}
	l.fetches++
	out := &obs.Stamp{Image: s.image.Clone()}
	if s.mask != nil {
		out.Mask = s.mask.Clone()
	}
	if s.weight != nil {
		out.Weight = s.weight.Clone()
	}
	if s.psf != nil {
		out.PSF = obs.NewPSF(s.psf.Clone(), nil)
	}
	return out, nil
}

// GaussianModel is a circular Gaussian test double implementing
// model.Model, used as the subtraction model in deblender tests.
type GaussianModel struct {
	Center     geom.SkyPoint
	Flux       float64
	FluxSigma  float64
	Sigma      float64 // pixels
	PixelScale float64 // degrees per pixel
}

// Schema implements model.Model.
func (g *GaussianModel) Schema() model.Schema {
	return model.Schema{
		"flux": model.Group(model.Schema{
			"value": model.Leaf(model.Float64),
			"sigma": model.Leaf(model.Float64),
		}),
		"radius": model.Leaf(model.Float64),
	}
}

// AsDict implements model.Model.
func (g *GaussianModel) AsDict() model.Values {
	return model.Values{
		"flux": model.Values{
			"value": g.Flux,
			"sigma": g.FluxSigma,
		},
		"radius": g.Sigma,
	}
}

// Render adds the Gaussian into out.
func (g *GaussianModel) Render(frame model.Frame, out *geom.Image) error {
	cx, cy, err := frame.WCS.SkyToPixel(g.Center)
	if err != nil {
		return err
	}
	norm := g.Flux / (2 * math.Pi * g.Sigma * g.Sigma)
	b := out.Bounds()
	for y := b.Y0; y <= b.Y1; y++ {
		for x := b.X0; x <= b.X1; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			e := -0.5 * (dx*dx + dy*dy) / (g.Sigma * g.Sigma)
			if e < -30 {
				continue
			}
			out.Set(x, y, out.At(x, y)+norm*math.Exp(e))
		}
	}
	return nil
}

// MaskPlanes flags pixels above one percent of the peak.
func (g *GaussianModel) MaskPlanes(frame model.Frame, out *geom.Mask, planes uint32, rendered *geom.Image) error {
	if rendered == nil {
		b := out.Bounds()
		fresh := geom.NewImage(b.Width(), b.Height(), b.X0, b.Y0)
		if err := g.Render(frame, fresh); err != nil {
			return err
		}
		rendered = fresh
	}
	threshold := 0.01 * g.Flux / (2 * math.Pi * g.Sigma * g.Sigma)
	b := out.Bounds()
	for y := b.Y0; y <= b.Y1; y++ {
		for x := b.X0; x <= b.X1; x++ {
			if rendered.Bounds().Contains(x, y) && rendered.At(x, y) >= threshold {
				out.Or(x, y, planes)
			}
		}
	}
	return nil
}

// ComputeSkyRegion returns a five-sigma circle.
func (g *GaussianModel) ComputeSkyRegion(position geom.SkyPoint) geom.SkyRegion {
	scale := g.PixelScale
	if scale <= 0 {
		scale = geom.GridResolution
	}
	return geom.RegionAround(position, 5*g.Sigma*scale)
}

// Scene is a synthetic blend of two Gaussian objects observed in two
// exposures, with known ground truth.
type Scene struct {
	Blend  *obs.BlendData
	Stack  *obs.BlendObsRefStack
	Loader *MemoryLoader

	ObjectA obs.ObjectID
	ObjectB obs.ObjectID
	Exp1    obs.ExposureID
	Exp2    obs.ExposureID

	TruthA *GaussianModel
	TruthB *GaussianModel
}

// Scene geometry shared by all fixtures.
const (
	sceneSize  = 48
	pixScale   = 1e-4 // degrees per pixel
	sceneRA0   = 200.0
	sceneDec0  = 10.0
	fluxA      = 1000.0
	fluxB      = 600.0
	sigmaPix   = 2.0
	background = 0.5
)

// NewTwoObjectScene builds the standard fixture: objects 1 and 2
// blended in exposures 101 and 102. Both objects share one stamp
// footprint per exposure, each containing the summed light of both
// plus a flat background, unit weights, and a clear mask.
func NewTwoObjectScene(t *testing.T) *Scene {
	t.Helper()

	wcs := &geom.WCS{PixelToSkyTransform: geom.AffineTransform{
		XX: pixScale, YY: pixScale, X0: sceneRA0, Y0: sceneDec0,
	}}
	centerA := wcs.PixelToSky(18, 24)
	centerB := wcs.PixelToSky(30, 24)

	truthA := &GaussianModel{Center: centerA, Flux: fluxA, FluxSigma: 5, Sigma: sigmaPix, PixelScale: pixScale}
	truthB := &GaussianModel{Center: centerB, Flux: fluxB, FluxSigma: 5, Sigma: sigmaPix, PixelScale: pixScale}

	objA := obs.NewObjectData(1, truthA.ComputeSkyRegion(centerA), centerA)
	objB := obs.NewObjectData(2, truthB.ComputeSkyRegion(centerB), centerB)
	blend, err := obs.NewBlendData(objA, objB)
	AssertNoError(t, err)

	loader := NewMemoryLoader()
	bounds := geom.Box{X0: 0, Y0: 0, X1: sceneSize - 1, Y1: sceneSize - 1}
	region := objA.SkyRegion().Union(objB.SkyRegion())
	frame := model.Frame{Bounds: bounds, WCS: wcs}

	exposures := []obs.ExposureID{101, 102}
	var refs []*obs.ObsRef
	for _, expID := range exposures {
		image := geom.NewImage(sceneSize, sceneSize, 0, 0)
		for i := range image.Pix {
			image.Pix[i] = background
		}
		AssertNoError(t, truthA.Render(frame, image))
		AssertNoError(t, truthB.Render(frame, image))
		weight := geom.NewImage(sceneSize, sceneSize, 0, 0)
		for i := range weight.Pix {
			weight.Pix[i] = 1
		}
		mask := geom.NewMask(sceneSize, sceneSize, 0, 0)

		refA := obs.NewObsRef(objA, expID, false, "r", wcs, region, bounds, loader)
		refB := obs.NewObsRef(objB, expID, false, "r", wcs, region, bounds, loader)
		AssertNoError(t, refA.AddNeighbor(refB))
		AssertNoError(t, refB.AddNeighbor(refA))
		loader.Put(refA.Key(), image, mask, weight, nil)
		loader.Put(refB.Key(), image, mask, weight, nil)
		refs = append(refs, refA, refB)
	}

	stack, err := obs.NewBlendObsRefStack(blend, refs...)
	AssertNoError(t, err)

	return &Scene{
		Blend:   blend,
		Stack:   stack,
		Loader:  loader,
		ObjectA: objA.ID,
		ObjectB: objB.ID,
		Exp1:    exposures[0],
		Exp2:    exposures[1],
		TruthA:  truthA,
		TruthB:  truthB,
	}
}

// AttachTruthModels attaches the ground-truth Gaussians to both
// object-level registries under key, so a model-subtract deblender has
// something to subtract.
func (s *Scene) AttachTruthModels(key string) {
	s.Blend.Object(s.ObjectA).AttachModel(key, s.TruthA)
	s.Blend.Object(s.ObjectB).AttachModel(key, s.TruthB)
}
