package deblend

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/model"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// DefaultMaskThreshold is the rendered-flux level at or above which a
// subtracted neighbour's pixels are masked as unsuitable for
// single-object fitting.
const DefaultMaskThreshold = 1e-3

// ModelSubtract is a single-exposure deblender that removes each
// neighbour by rendering an existing Model of it and subtracting the
// rendering from the object's image. Neighbours without a usable Model
// stay Present; their pixels are untouched.
//
// It creates no Models of its own.
type ModelSubtract struct {
	Unimplemented

	// ModelKey is the algorithm identifier of the Models used for
	// neighbour renderings. The neighbour's exposure-level registry is
	// consulted first, then its object-level registry.
	ModelKey string

	// MaskThreshold gates the MaskNeighbor plane; zero means
	// DefaultMaskThreshold.
	MaskThreshold float64
}

// ProcessStack decomposes by exposure and reassembles, per the
// single-exposure contract.
func (d *ModelSubtract) ProcessStack(ctx context.Context, refs *obs.BlendObsRefStack) (*obs.BlendObsDataStack, error) {
	pe := PerExposure{Exposure: d}
	return pe.ProcessStack(ctx, refs)
}

// ProcessExposure loads the exposure's data and subtracts every
// neighbour for which a Model is available, updating presence state on
// the references in place.
func (d *ModelSubtract) ProcessExposure(ctx context.Context, bref *obs.BlendObsRef) (*obs.BlendObsData, error) {
	data, err := bref.Load(ctx)
	if err != nil {
		return nil, err
	}
	threshold := d.MaskThreshold
	if threshold == 0 {
		threshold = DefaultMaskThreshold
	}

	for _, id := range bref.ObjectIDs() {
		ref := bref.Entry(id)
		od := data.Entry(id)
		for _, nid := range ref.NeighborIDs() {
			if state, ok := ref.NeighborState(nid); !ok || state != obs.Present {
				continue
			}
			nref, ok := ref.NeighborRef(nid)
			if !ok {
				continue
			}
			m := neighborModel(nref, d.ModelKey)
			if m == nil {
				// No model to subtract; the neighbour stays Present.
				continue
			}
			rendered := geom.NewImage(od.Image.Width, od.Image.Height, od.Image.X0, od.Image.Y0)
			if err := m.Render(od.Frame(), rendered); err != nil {
				return nil, fmt.Errorf("rendering neighbor %d for %s: %w", nid, ref.Key(), err)
			}
			receipt, err := od.SubtractNeighbor(nid, rendered)
			if err != nil {
				if errors.Is(err, obs.ErrNeighborInconsistency) {
					// The rendering does not reach this stamp, so there
					// is no flux to remove; leave the neighbour Present.
					log.Printf("deblend: neighbor %d contributes no flux to %s, leaving present", nid, ref.Key())
					continue
				}
				return nil, err
			}
			if err := ref.MarkSubtracted(nid, receipt); err != nil {
				return nil, err
			}
			od.MaskNeighborResidual(rendered, threshold)
		}
	}
	return data, nil
}

// neighborModel resolves the Model used to subtract a neighbour:
// exposure-level result first, object-level second.
func neighborModel(nref *obs.ObsRef, key string) model.Model {
	if m := nref.Models.Get(key); m != nil {
		return m
	}
	return nref.Object.Models.Get(key)
}
