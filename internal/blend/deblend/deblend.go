package deblend

import (
	"context"
	"fmt"
	"sort"

	"github.com/umbra-data/multifit/internal/blend/model"
	"github.com/umbra-data/multifit/internal/blend/obs"
)

// Deblender removes neighbour flux from the observations of a blend.
//
// ProcessStack must obtain its result via the reference stack's Load
// (directly or per exposure) and then modify each ObsData in place. It
// updates neighbour presence on the references as it subtracts: a
// neighbour transitions Present → Subtracted only when its flux has
// actually been removed from the pixels, and the transition is never
// reversed within one call.
type Deblender interface {
	ProcessStack(ctx context.Context, refs *obs.BlendObsRefStack) (*obs.BlendObsDataStack, error)
}

// ExposureDeblender handles one exposure of a blend at a time, with no
// cross-exposure information. Implementations are usually run through
// PerExposure, which decomposes a stack and reassembles the results;
// processing each exposure in isolation must produce the same output.
type ExposureDeblender interface {
	ProcessExposure(ctx context.Context, ref *obs.BlendObsRef) (*obs.BlendObsData, error)
}

// Unimplemented provides failing defaults for both deblender contracts.
// Embed it in partial implementations; calls reach the embedded method
// only when the variant genuinely does not support the operation, and
// fail that call without retry.
type Unimplemented struct{}

// ProcessStack always fails with ErrUnsupportedOperation.
func (Unimplemented) ProcessStack(context.Context, *obs.BlendObsRefStack) (*obs.BlendObsDataStack, error) {
	return nil, fmt.Errorf("deblender ProcessStack: %w", model.ErrUnsupportedOperation)
}

// ProcessExposure always fails with ErrUnsupportedOperation.
func (Unimplemented) ProcessExposure(context.Context, *obs.BlendObsRef) (*obs.BlendObsData, error) {
	return nil, fmt.Errorf("deblender ProcessExposure: %w", model.ErrUnsupportedOperation)
}

// PerExposure adapts an ExposureDeblender to the whole-stack contract:
// it decomposes the stack with ByExposure, processes each exposure
// independently, and reassembles the per-exposure results into the full
// data stack with the reference stack's exact key set.
type PerExposure struct {
	Exposure ExposureDeblender
}

// ProcessStack implements Deblender.
func (p *PerExposure) ProcessStack(ctx context.Context, refs *obs.BlendObsRefStack) (*obs.BlendObsDataStack, error) {
	if p.Exposure == nil {
		return nil, fmt.Errorf("per-exposure deblender has no exposure implementation: %w", model.ErrUnsupportedOperation)
	}
	views := refs.ByExposure()
	ids := make([]obs.ExposureID, 0, len(views))
	for id := range views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	results := make(map[obs.ExposureID]*obs.BlendObsData, len(views))
	for _, id := range ids {
		out, err := p.Exposure.ProcessExposure(ctx, views[id])
		if err != nil {
			return nil, fmt.Errorf("deblending exposure %d: %w", id, err)
		}
		results[id] = out
	}
	return obs.AssembleByExposure(refs, results)
}
