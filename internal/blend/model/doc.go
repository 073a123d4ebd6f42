// Package model defines the Model contract — the result of one
// algorithm fit to one object, source, or PSF — together with the
// schema machinery the output collaborator relies on and the Registry
// container that owns Models on behalf of an entity.
//
// A Model holds both a best-fit value and its uncertainty. Models come
// in three flavours by ownership, not by type:
//   - object-level (exposure-independent), held by obs.ObjectData;
//   - source-level (one object in one exposure), held by obs.ObsRef;
//   - PSF-level, held by obs.PSF.
//
// There is no per-filter Model concept: algorithms that fit per-band
// parameters expose them as distinct named fields of an object Model.
//
// Dependency rule: model may import geom only.
package model
