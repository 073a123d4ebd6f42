// Package obs owns the object × exposure data hierarchy at the centre
// of blended-source processing.
//
// The hierarchy has two parallel halves. The Reference half (ObjectData,
// BlendData, ObsRef, BlendObsRef, ObsRefStack, BlendObsRefStack) is
// lightweight bookkeeping: it records what data exists and how to load
// it, and never holds pixel buffers. The Data half (ObsData,
// BlendObsData, ObsDataStack, BlendObsDataStack) is produced on demand
// by Load and holds live image/mask/weight buffers. The core never
// caches Data objects; callers own their lifetime.
//
// Blend-level stacks store one flat mapping keyed by
// (object id, exposure id) and derive the ByExposure and ByObject views
// on access. The views are lossless re-indexings of the flat mapping,
// never a second source of truth.
//
// Neighbour presence is an explicit two-state machine per
// (object, exposure, neighbour) triple: Present → Subtracted. The
// transition is only permitted as a side effect of a successful pixel
// mutation, witnessed by a PixelMutation receipt.
//
// Dependency rule: obs may import geom and model only. Algorithm
// packages (deblend, fit) import obs, never the reverse.
package obs
