package obs

import (
	"fmt"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/model"
)

// ObsData is the materialized counterpart of an ObsRef: the live pixel
// cut-out of one object in one exposure. The core never caches ObsData;
// callers discard it after processing.
type ObsData struct {
	Image        *geom.Image
	Mask         *geom.Mask
	Weight       *geom.Image
	PSF          *PSF
	WCS          *geom.WCS
	Transmission *geom.SED

	// Ref points back to the reference that produced this data, so
	// algorithms can write results onto the correct registries and
	// mutate neighbour state in place.
	Ref *ObsRef
}

// Frame returns the pixel frame models are evaluated against for this
// observation.
func (d *ObsData) Frame() model.Frame {
	return model.Frame{Bounds: d.Image.Bounds(), WCS: d.WCS}
}

// PixelMutation is the receipt of one in-place pixel mutation that
// removed a neighbour's flux from an ObsData. It is the only accepted
// evidence for transitioning that neighbour to Subtracted on the
// corresponding ObsRef.
type PixelMutation struct {
	Object        ObjectID
	Exposure      ExposureID
	Neighbor      ObjectID
	PixelsChanged int
	PixelsMasked  int
}

// SubtractNeighbor removes a rendering of the named neighbour from the
// image in place and returns the mutation receipt. The rendering is
// subtracted over the overlap of the two footprints; a rendering that
// touches no pixels yields an ErrNeighborInconsistency, since the
// caller would otherwise mark a neighbour Subtracted with nothing
// removed.
func (d *ObsData) SubtractNeighbor(neighbor ObjectID, rendered *geom.Image) (PixelMutation, error) {
	if d.Ref == nil {
		return PixelMutation{}, fmt.Errorf("%w: data has no back-reference", ErrNeighborInconsistency)
	}
	if rendered == nil {
		return PixelMutation{}, fmt.Errorf("%w: nil rendering for neighbor %d", ErrNeighborInconsistency, neighbor)
	}
	changed := d.Image.Sub(rendered)
	if changed == 0 {
		return PixelMutation{}, fmt.Errorf("%w: rendering of neighbor %d does not touch %s",
			ErrNeighborInconsistency, neighbor, d.Ref.Key())
	}
	return PixelMutation{
		Object:        d.Ref.ObjectID(),
		Exposure:      d.Ref.Exposure,
		Neighbor:      neighbor,
		PixelsChanged: changed,
	}, nil
}

// MaskNeighborResidual sets the MaskNeighbor plane on pixels of the
// rendering at or above threshold, marking them unsuitable for
// single-object fitting. Weights are deliberately left untouched:
// zeroing weight pixels is reserved for downstream consumers acting on
// the mask. Returns the number of pixels newly covered.
func (d *ObsData) MaskNeighborResidual(rendered *geom.Image, threshold float64) int {
	if d.Mask == nil || rendered == nil {
		return 0
	}
	mb, rb := d.Mask.Bounds(), rendered.Bounds()
	x0, x1 := maxOf(mb.X0, rb.X0), minOf(mb.X1, rb.X1)
	y0, y1 := maxOf(mb.Y0, rb.Y0), minOf(mb.Y1, rb.Y1)
	masked := 0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if rendered.At(x, y) >= threshold {
				d.Mask.Or(x, y, geom.MaskNeighbor)
				masked++
			}
		}
	}
	return masked
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
