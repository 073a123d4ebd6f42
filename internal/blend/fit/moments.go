package fit

import (
	"context"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// DefaultAlgorithmKey is the registry key the moments fitter writes
// under when none is configured.
const DefaultAlgorithmKey = "moments"

// DefaultBadPlanes are the mask planes excluded from moment sums and
// the least-squares fit.
const DefaultBadPlanes = geom.MaskBad | geom.MaskNeighbor | geom.MaskSaturated

// Moments is a single-object fitter measuring weighted second moments
// and flux. Per exposure it measures a centroid and moment matrix from
// the unmasked pixels, then fits amplitude and background by weighted
// linear least squares against a unit-flux Gaussian profile. The
// per-exposure results are attached as FluxModels on each ObsRef; the
// inverse-variance combination over exposures is attached as a
// MomentsModel on the ObjectData.
//
// Moments reads pixels but never writes them.
type Moments struct {
	Unimplemented

	// Key is the algorithm identifier used for all attached Models;
	// empty means DefaultAlgorithmKey.
	Key string

	// BadPlanes overrides DefaultBadPlanes when non-zero.
	BadPlanes uint32
}

// AlgorithmKey returns the effective registry key.
func (f *Moments) AlgorithmKey() string {
	if f.Key == "" {
		return DefaultAlgorithmKey
	}
	return f.Key
}

// ProcessBlend decomposes by object and fits each independently.
func (f *Moments) ProcessBlend(ctx context.Context, refs *obs.BlendObsRefStack) error {
	po := PerObject{Object: f}
	return po.ProcessBlend(ctx, refs)
}

// ProcessObject loads the object's exposure stack, fits every exposure,
// and attaches the per-exposure and combined Models.
func (f *Moments) ProcessObject(ctx context.Context, refs *obs.ObsRefStack) error {
	data, err := refs.Load(ctx)
	if err != nil {
		return err
	}
	bad := f.BadPlanes
	if bad == 0 {
		bad = DefaultBadPlanes
	}

	var (
		sumW, sumWF          float64
		sumRA, sumDec        float64
		sumIxx, sumIyy       float64
		sumIxy, sumScale     float64
		fitted               int64
		varianceAccumBadExps int
	)
	for _, expID := range data.ExposureIDs() {
		od := data.Entry(expID)
		meas, err := measureExposure(od, bad)
		if err != nil {
			// A single unusable exposure does not fail the object.
			log.Printf("fit: skipping %s: %v", od.Ref.Key(), err)
			continue
		}
		center := od.WCS.PixelToSky(meas.cx, meas.cy)
		od.Ref.Models.Attach(f.AlgorithmKey(), &FluxModel{
			Exposure:   int64(expID),
			Flux:       meas.flux,
			FluxSigma:  meas.fluxSigma,
			Background: meas.background,
			Center:     center,
		})

		w := 0.0
		if meas.fluxSigma > 0 {
			w = 1 / (meas.fluxSigma * meas.fluxSigma)
		} else {
			varianceAccumBadExps++
			w = 1
		}
		sumW += w
		sumWF += w * meas.flux
		sumRA += w * center.RA
		sumDec += w * center.Dec
		sumIxx += w * meas.ixx
		sumIyy += w * meas.iyy
		sumIxy += w * meas.ixy
		sumScale += od.WCS.PixelScale()
		fitted++
	}
	if fitted == 0 {
		return fmt.Errorf("object %d: no usable exposures", refs.Object.ID)
	}
	if varianceAccumBadExps > 0 {
		log.Printf("fit: object %d: %d exposure(s) had no flux variance, combined with unit weight",
			refs.Object.ID, varianceAccumBadExps)
	}

	combined := &MomentsModel{
		Center:     geom.SkyPoint{RA: sumRA / sumW, Dec: sumDec / sumW},
		Flux:       sumWF / sumW,
		FluxSigma:  math.Sqrt(1 / sumW),
		Ixx:        sumIxx / sumW,
		Iyy:        sumIyy / sumW,
		Ixy:        sumIxy / sumW,
		NExposures: fitted,
		PixelScale: sumScale / float64(fitted),
	}
	refs.Object.AttachModel(f.AlgorithmKey(), combined)
	return nil
}

// exposureMeasurement is the result of fitting one exposure.
type exposureMeasurement struct {
	flux, fluxSigma float64
	background      float64
	cx, cy          float64
	ixx, iyy, ixy   float64
	npix            int
}

// measureExposure computes flux-weighted moments over the unmasked
// pixels, then fits (amplitude, background) by weighted least squares
// against the unit-flux Gaussian those moments describe.
func measureExposure(od *obs.ObsData, badPlanes uint32) (exposureMeasurement, error) {
	b := od.Image.Bounds()

	// Pass 1: flux-weighted centroid and second moments. Negative
	// pixels carry no moment weight.
	var sumF, sumX, sumY float64
	usable := 0
	for y := b.Y0; y <= b.Y1; y++ {
		for x := b.X0; x <= b.X1; x++ {
			if !pixelUsable(od, x, y, badPlanes) {
				continue
			}
			usable++
			v := od.Image.At(x, y)
			if v <= 0 {
				continue
			}
			sumF += v
			sumX += v * float64(x)
			sumY += v * float64(y)
		}
	}
	if usable == 0 {
		return exposureMeasurement{}, fmt.Errorf("no usable pixels")
	}
	if sumF <= 0 {
		return exposureMeasurement{}, fmt.Errorf("no positive flux in %d usable pixels", usable)
	}
	cx, cy := sumX/sumF, sumY/sumF

	var ixx, iyy, ixy float64
	for y := b.Y0; y <= b.Y1; y++ {
		for x := b.X0; x <= b.X1; x++ {
			if !pixelUsable(od, x, y, badPlanes) {
				continue
			}
			v := od.Image.At(x, y)
			if v <= 0 {
				continue
			}
			dx := float64(x) - cx
			dy := float64(y) - cy
			ixx += v * dx * dx
			iyy += v * dy * dy
			ixy += v * dx * dy
		}
	}
	ixx /= sumF
	iyy /= sumF
	ixy /= sumF
	// Collapsed moments make the profile singular; a quarter pixel is
	// the resolution floor.
	if ixx < 0.25 {
		ixx = 0.25
	}
	if iyy < 0.25 {
		iyy = 0.25
	}

	// Pass 2: weighted least squares for (flux, background) with the
	// design matrix [unit Gaussian profile | 1].
	det := ixx*iyy - ixy*ixy
	if det < minMomentDet {
		det = minMomentDet
	}
	norm := 1 / (2 * math.Pi * math.Sqrt(det))

	rows := make([]float64, 0, usable*2)
	ys := make([]float64, 0, usable)
	ws := make([]float64, 0, usable)
	for y := b.Y0; y <= b.Y1; y++ {
		for x := b.X0; x <= b.X1; x++ {
			if !pixelUsable(od, x, y, badPlanes) {
				continue
			}
			dx := float64(x) - cx
			dy := float64(y) - cy
			e := -0.5 * (iyy*dx*dx - 2*ixy*dx*dy + ixx*dy*dy) / det
			profile := 0.0
			if e > -30 {
				profile = norm * math.Exp(e)
			}
			rows = append(rows, profile, 1)
			ys = append(ys, od.Image.At(x, y))
			ws = append(ws, pixelWeight(od, x, y))
		}
	}
	n := len(ys)
	a := mat.NewDense(n, 2, rows)
	w := mat.NewDiagDense(n, ws)
	y := mat.NewVecDense(n, ys)

	var wa mat.Dense
	wa.Mul(w, a)
	var ata mat.Dense
	ata.Mul(a.T(), &wa)
	var atb mat.VecDense
	atb.MulVec(wa.T(), y)

	var sol mat.VecDense
	if err := sol.SolveVec(&ata, &atb); err != nil {
		return exposureMeasurement{}, fmt.Errorf("normal equations are singular: %w", err)
	}
	var cov mat.Dense
	fluxSigma := 0.0
	if err := cov.Inverse(&ata); err == nil && cov.At(0, 0) > 0 {
		fluxSigma = math.Sqrt(cov.At(0, 0))
	}

	return exposureMeasurement{
		flux:       sol.AtVec(0),
		fluxSigma:  fluxSigma,
		background: sol.AtVec(1),
		cx:         cx,
		cy:         cy,
		ixx:        ixx,
		iyy:        iyy,
		ixy:        ixy,
		npix:       n,
	}, nil
}

// pixelUsable reports whether a pixel participates in the fit: inside
// the buffers, not flagged with a bad plane, and positively weighted.
func pixelUsable(od *obs.ObsData, x, y int, badPlanes uint32) bool {
	if od.Mask != nil && od.Mask.At(x, y)&badPlanes != 0 {
		return false
	}
	if od.Weight != nil && od.Weight.At(x, y) <= 0 {
		return false
	}
	return true
}

// pixelWeight returns the inverse-variance weight of a pixel, treating
// a missing weight buffer as unit weights.
func pixelWeight(od *obs.ObsData, x, y int) float64 {
	if od.Weight == nil {
		return 1
	}
	return od.Weight.At(x, y)
}
