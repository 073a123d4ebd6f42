package model

import (
	"errors"

	"github.com/umbra-data/multifit/internal/blend/geom"
)

// ErrUnsupportedOperation is returned when an algorithm or Model method
// is invoked on a variant that does not implement it. The call fails;
// it is never retried against the same variant.
var ErrUnsupportedOperation = errors.New("operation not supported by this implementation")

// Frame describes the pixel coordinate system a Model is evaluated
// against: the footprint in exposure pixel coordinates and the WCS that
// ties it to the sky. Any observation sharing this frame yields the
// same rendering.
type Frame struct {
	Bounds geom.Box
	WCS    *geom.WCS
}

// Model is the result of a single algorithm fitting a single object,
// source, or PSF, holding both the best-fit value and its uncertainty.
//
// Render must never mutate the observation it is evaluated against;
// it writes only into the supplied output image.
type Model interface {
	// Schema describes the output record, one entry per object.
	Schema() Schema

	// AsDict returns the fitted values as a nested mapping whose key
	// set and leaf types exactly match Schema. Implementations return
	// values that pass Schema().Validate.
	AsDict() Values

	// Render draws the model into out, in the pixel frame described by
	// frame. out must cover (a subset of) frame.Bounds.
	Render(frame Frame, out *geom.Image) error

	// MaskPlanes sets planes in out on pixels heavily influenced by
	// this object. rendered may carry the result of a prior Render call
	// against the same frame; implementations must produce identical
	// bits whether or not it is supplied.
	MaskPlanes(frame Frame, out *geom.Mask, planes uint32, rendered *geom.Image) error

	// ComputeSkyRegion returns a region covering all pixels this model
	// influences when evaluated at the given sky position. The region
	// may be generous but never too small.
	ComputeSkyRegion(position geom.SkyPoint) geom.SkyRegion
}

// CheckDict validates m.AsDict against m.Schema, wrapping any
// disagreement in ErrSchemaMismatch. The output collaborator calls this
// before persisting a record.
func CheckDict(m Model) (Values, error) {
	vals := m.AsDict()
	if err := m.Schema().Validate(vals); err != nil {
		return nil, err
	}
	return vals, nil
}
