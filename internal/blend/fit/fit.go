package fit

import (
	"context"
	"fmt"
	"sort"

	"github.com/umbra-data/multifit/internal/blend/model"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// Fitter measures object properties from the references of a blend.
//
// ProcessBlend delivers results only by attaching Models to registries
// reachable from the stack (object-level, observation-level, or PSF).
// It must not mutate any pixel buffer. There is no required return
// value beyond that in-place attachment.
//
// No deblend-before-fit ordering is enforced here: a Fitter run on
// non-deblended data produces structurally legal (if scientifically
// useless) results. Pipeline ordering is the caller's responsibility.
type Fitter interface {
	ProcessBlend(ctx context.Context, refs *obs.BlendObsRefStack) error
}

// ObjectFitter measures a single object from its exposure stack, with
// no cross-object information. Implementations are usually run through
// PerObject; the aggregate effect across objects must equal what a
// whole-blend fitter would produce.
type ObjectFitter interface {
	ProcessObject(ctx context.Context, refs *obs.ObsRefStack) error
}

// Unimplemented provides failing defaults for both fitter contracts.
type Unimplemented struct{}

// ProcessBlend always fails with ErrUnsupportedOperation.
func (Unimplemented) ProcessBlend(context.Context, *obs.BlendObsRefStack) error {
	return fmt.Errorf("fitter ProcessBlend: %w", model.ErrUnsupportedOperation)
}

// ProcessObject always fails with ErrUnsupportedOperation.
func (Unimplemented) ProcessObject(context.Context, *obs.ObsRefStack) error {
	return fmt.Errorf("fitter ProcessObject: %w", model.ErrUnsupportedOperation)
}

// PerObject adapts an ObjectFitter to the whole-blend contract: it
// decomposes the stack with ByObject and fits each object
// independently.
type PerObject struct {
	Object ObjectFitter
}

// ProcessBlend implements Fitter.
func (p *PerObject) ProcessBlend(ctx context.Context, refs *obs.BlendObsRefStack) error {
	if p.Object == nil {
		return fmt.Errorf("per-object fitter has no object implementation: %w", model.ErrUnsupportedOperation)
	}
	views := refs.ByObject()
	ids := make([]obs.ObjectID, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := p.Object.ProcessObject(ctx, views[id]); err != nil {
			return fmt.Errorf("fitting object %d: %w", id, err)
		}
	}
	return nil
}
