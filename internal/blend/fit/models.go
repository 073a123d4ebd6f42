package fit

import (
	"fmt"
	"math"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/model"
)

// MaskThresholdFraction is the fraction of a model's peak surface
// brightness above which MaskPlanes flags a pixel.
const MaskThresholdFraction = 0.01

// minMomentDet guards against degenerate (collapsed) moment matrices.
const minMomentDet = 1e-6

// MomentsModel is the object-level result of the moments fitter: total
// flux with uncertainty, sky centroid, and second moments, combined
// over all fitted exposures. It renders as an elliptical Gaussian, so
// it can serve as the subtraction model for a model-subtract deblender.
type MomentsModel struct {
	Center     geom.SkyPoint
	Flux       float64
	FluxSigma  float64
	Ixx        float64 // second moments, pixel²
	Iyy        float64
	Ixy        float64
	NExposures int64
	PixelScale float64 // mean degrees per pixel of the fitted exposures
}

// Schema implements model.Model.
func (m *MomentsModel) Schema() model.Schema {
	return model.Schema{
		"flux": model.Group(model.Schema{
			"value": model.Leaf(model.Float64),
			"sigma": model.Leaf(model.Float64),
		}),
		"centroid": model.Group(model.Schema{
			"ra":  model.Leaf(model.Float64),
			"dec": model.Leaf(model.Float64),
		}),
		"shape": model.Group(model.Schema{
			"ixx": model.Leaf(model.Float64),
			"iyy": model.Leaf(model.Float64),
			"ixy": model.Leaf(model.Float64),
		}),
		"n_exposures": model.Leaf(model.Int64),
	}
}

// AsDict implements model.Model.
func (m *MomentsModel) AsDict() model.Values {
	return model.Values{
		"flux": model.Values{
			"value": m.Flux,
			"sigma": m.FluxSigma,
		},
		"centroid": model.Values{
			"ra":  m.Center.RA,
			"dec": m.Center.Dec,
		},
		"shape": model.Values{
			"ixx": m.Ixx,
			"iyy": m.Iyy,
			"ixy": m.Ixy,
		},
		"n_exposures": m.NExposures,
	}
}

// Render adds the model's elliptical Gaussian into out, evaluated in
// the given frame. The observation itself is never touched.
func (m *MomentsModel) Render(frame model.Frame, out *geom.Image) error {
	if frame.WCS == nil {
		return fmt.Errorf("rendering moments model: frame has no wcs")
	}
	cx, cy, err := frame.WCS.SkyToPixel(m.Center)
	if err != nil {
		return fmt.Errorf("rendering moments model: %w", err)
	}
	det := m.Ixx*m.Iyy - m.Ixy*m.Ixy
	if det < minMomentDet {
		det = minMomentDet
	}
	norm := m.Flux / (2 * math.Pi * math.Sqrt(det))
	b := out.Bounds()
	for y := b.Y0; y <= b.Y1; y++ {
		for x := b.X0; x <= b.X1; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			e := -0.5 * (m.Iyy*dx*dx - 2*m.Ixy*dx*dy + m.Ixx*dy*dy) / det
			if e < -30 {
				continue
			}
			out.Set(x, y, out.At(x, y)+norm*math.Exp(e))
		}
	}
	return nil
}

// MaskPlanes sets planes on pixels where the model's surface brightness
// is at least MaskThresholdFraction of its peak. rendered, when
// supplied, must come from Render against the same frame; the result is
// bit-identical with or without it.
func (m *MomentsModel) MaskPlanes(frame model.Frame, out *geom.Mask, planes uint32, rendered *geom.Image) error {
	if rendered == nil {
		b := out.Bounds()
		fresh := geom.NewImage(b.Width(), b.Height(), b.X0, b.Y0)
		if err := m.Render(frame, fresh); err != nil {
			return err
		}
		rendered = fresh
	}
	det := m.Ixx*m.Iyy - m.Ixy*m.Ixy
	if det < minMomentDet {
		det = minMomentDet
	}
	peak := m.Flux / (2 * math.Pi * math.Sqrt(det))
	threshold := MaskThresholdFraction * peak
	mb, rb := out.Bounds(), rendered.Bounds()
	for y := maxOf(mb.Y0, rb.Y0); y <= minOf(mb.Y1, rb.Y1); y++ {
		for x := maxOf(mb.X0, rb.X0); x <= minOf(mb.X1, rb.X1); x++ {
			if rendered.At(x, y) >= threshold {
				out.Or(x, y, planes)
			}
		}
	}
	return nil
}

// ComputeSkyRegion returns a circle of five effective sigma around the
// given position. The region may be generous but never too small.
func (m *MomentsModel) ComputeSkyRegion(position geom.SkyPoint) geom.SkyRegion {
	sigma := math.Sqrt(math.Max(m.Ixx, m.Iyy))
	scale := m.PixelScale
	if scale <= 0 {
		scale = geom.GridResolution
	}
	radius := 5 * sigma * scale
	if radius < geom.GridResolution {
		radius = geom.GridResolution
	}
	return geom.RegionAround(position, radius)
}

// FluxModel is the exposure-level result of the moments fitter: the
// object's flux, fitted background and measured centroid in one
// exposure. It carries no
// spatial profile of its own, so rendering and masking are unsupported.
type FluxModel struct {
	Exposure   int64
	Flux       float64
	FluxSigma  float64
	Background float64
	Center     geom.SkyPoint
}

// Schema implements model.Model.
func (m *FluxModel) Schema() model.Schema {
	return model.Schema{
		"flux": model.Group(model.Schema{
			"value": model.Leaf(model.Float64),
			"sigma": model.Leaf(model.Float64),
		}),
		"centroid": model.Group(model.Schema{
			"ra":  model.Leaf(model.Float64),
			"dec": model.Leaf(model.Float64),
		}),
		"background": model.Leaf(model.Float64),
		"exposure":   model.Leaf(model.Int64),
	}
}

// AsDict implements model.Model.
func (m *FluxModel) AsDict() model.Values {
	return model.Values{
		"flux": model.Values{
			"value": m.Flux,
			"sigma": m.FluxSigma,
		},
		"centroid": model.Values{
			"ra":  m.Center.RA,
			"dec": m.Center.Dec,
		},
		"background": m.Background,
		"exposure":   m.Exposure,
	}
}

// Render is unsupported: a flux model has no spatial profile.
func (m *FluxModel) Render(model.Frame, *geom.Image) error {
	return fmt.Errorf("flux model render: %w", model.ErrUnsupportedOperation)
}

// MaskPlanes is unsupported: a flux model has no spatial profile.
func (m *FluxModel) MaskPlanes(model.Frame, *geom.Mask, uint32, *geom.Image) error {
	return fmt.Errorf("flux model mask: %w", model.ErrUnsupportedOperation)
}

// ComputeSkyRegion returns a single-cell region at the position.
func (m *FluxModel) ComputeSkyRegion(position geom.SkyPoint) geom.SkyRegion {
	return geom.RegionAround(position, geom.GridResolution)
}

func minOf(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}
