package obs

import (
	"context"
	"fmt"
	"sort"
)

// BlendObsRefStack is the full (object × exposure) matrix of references
// for a blend, stored as a single flat mapping keyed by
// (object id, exposure id). The ByExposure and ByObject views are
// computed on access and are lossless re-indexings of the flat mapping.
type BlendObsRefStack struct {
	Blend   *BlendData
	entries map[Key]*ObsRef
}

// NewBlendObsRefStack assembles the matrix from references. Every
// reference's object must be a member of the blend, keys must be
// unique, and references sharing an exposure must agree on the
// exposure's coadd flag and filter.
func NewBlendObsRefStack(blend *BlendData, refs ...*ObsRef) (*BlendObsRefStack, error) {
	s := &BlendObsRefStack{Blend: blend, entries: make(map[Key]*ObsRef, len(refs))}
	byExposure := make(map[ExposureID]*ObsRef)
	for _, r := range refs {
		if !blend.Contains(r.ObjectID()) {
			return nil, fmt.Errorf("%w: object %d is not in the blend", ErrNeighborInconsistency, r.ObjectID())
		}
		k := r.Key()
		if _, dup := s.entries[k]; dup {
			return nil, fmt.Errorf("duplicate entry %s in blend stack", k)
		}
		if first, ok := byExposure[r.Exposure]; ok {
			if first.IsCoadd != r.IsCoadd || first.Filter != r.Filter {
				return nil, fmt.Errorf("exposure %d metadata disagrees between objects %d and %d",
					r.Exposure, first.ObjectID(), r.ObjectID())
			}
		} else {
			byExposure[r.Exposure] = r
		}
		s.entries[k] = r
	}
	return s, nil
}

// Entry returns the reference at (object, exposure), or nil.
func (s *BlendObsRefStack) Entry(k Key) *ObsRef { return s.entries[k] }

// Len returns the number of (object, exposure) entries.
func (s *BlendObsRefStack) Len() int { return len(s.entries) }

// Keys returns the flat keys sorted by (object, exposure).
func (s *BlendObsRefStack) Keys() []Key {
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// ByExposure groups the flat mapping by exposure id. Each value's
// inner mapping is exactly the {object id: reference} set for that
// exposure. The view is computed on access; repeated calls yield
// structurally equal results and never mutate the stack.
func (s *BlendObsRefStack) ByExposure() map[ExposureID]*BlendObsRef {
	out := make(map[ExposureID]*BlendObsRef)
	for k, r := range s.entries {
		view, ok := out[k.Exposure]
		if !ok {
			view = &BlendObsRef{
				Blend:    s.Blend,
				Exposure: k.Exposure,
				IsCoadd:  r.IsCoadd,
				Filter:   r.Filter,
				entries:  make(map[ObjectID]*ObsRef),
			}
			out[k.Exposure] = view
		}
		view.entries[k.Object] = r
		view.Region = view.Region.Union(r.Region)
	}
	return out
}

// ByObject groups the flat mapping by object id. Each value's inner
// mapping is exactly the {exposure id: reference} set for that object.
func (s *BlendObsRefStack) ByObject() map[ObjectID]*ObsRefStack {
	out := make(map[ObjectID]*ObsRefStack)
	for k, r := range s.entries {
		view, ok := out[k.Object]
		if !ok {
			view = &ObsRefStack{Object: r.Object, entries: make(map[ExposureID]*ObsRef)}
			out[k.Object] = view
		}
		view.entries[k.Exposure] = r
	}
	return out
}

// Load materializes the full matrix. Atomic: a failure in any child
// aborts the whole call and no data stack is returned; on success the
// result's key set equals the reference stack's exactly.
func (s *BlendObsRefStack) Load(ctx context.Context) (*BlendObsDataStack, error) {
	out := &BlendObsDataStack{
		Blend:   s.Blend,
		Ref:     s,
		entries: make(map[Key]*ObsData, len(s.entries)),
	}
	for _, k := range s.Keys() {
		data, err := s.entries[k].Load(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("loading blend stack: %w", err)
		}
		out.entries[k] = data
	}
	return out, nil
}

// BlendObsDataStack is the materialized (object × exposure) matrix of a
// blend: the flat mapping from (object id, exposure id) to live pixel
// data, with the same derived views as the reference stack.
type BlendObsDataStack struct {
	Blend   *BlendData
	Ref     *BlendObsRefStack
	entries map[Key]*ObsData
}

// Entry returns the data at (object, exposure), or nil.
func (s *BlendObsDataStack) Entry(k Key) *ObsData { return s.entries[k] }

// Len returns the number of (object, exposure) entries.
func (s *BlendObsDataStack) Len() int { return len(s.entries) }

// Keys returns the flat keys sorted by (object, exposure).
func (s *BlendObsDataStack) Keys() []Key {
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// ByExposure groups the flat mapping by exposure id, pairing each view
// with the matching reference-side view.
func (s *BlendObsDataStack) ByExposure() map[ExposureID]*BlendObsData {
	refViews := map[ExposureID]*BlendObsRef{}
	if s.Ref != nil {
		refViews = s.Ref.ByExposure()
	}
	out := make(map[ExposureID]*BlendObsData)
	for k, d := range s.entries {
		view, ok := out[k.Exposure]
		if !ok {
			view = &BlendObsData{
				Blend:    s.Blend,
				Exposure: k.Exposure,
				Ref:      refViews[k.Exposure],
				entries:  make(map[ObjectID]*ObsData),
			}
			if view.Ref != nil {
				view.Region = view.Ref.Region
			}
			out[k.Exposure] = view
		}
		view.entries[k.Object] = d
	}
	return out
}

// ByObject groups the flat mapping by object id, pairing each view with
// the matching reference-side view.
func (s *BlendObsDataStack) ByObject() map[ObjectID]*ObsDataStack {
	refViews := map[ObjectID]*ObsRefStack{}
	if s.Ref != nil {
		refViews = s.Ref.ByObject()
	}
	out := make(map[ObjectID]*ObsDataStack)
	for k, d := range s.entries {
		view, ok := out[k.Object]
		if !ok {
			view = &ObsDataStack{
				Object:  s.Blend.Object(k.Object),
				Ref:     refViews[k.Object],
				entries: make(map[ExposureID]*ObsData),
			}
			out[k.Object] = view
		}
		view.entries[k.Exposure] = d
	}
	return out
}

// AssembleByExposure rebuilds a full data stack from independently
// produced per-exposure results. The union of the per-exposure entries
// must reproduce the reference stack's key set exactly; any missing or
// extra entry is an error (no child silently dropped).
func AssembleByExposure(refs *BlendObsRefStack, exposures map[ExposureID]*BlendObsData) (*BlendObsDataStack, error) {
	out := &BlendObsDataStack{
		Blend:   refs.Blend,
		Ref:     refs,
		entries: make(map[Key]*ObsData, refs.Len()),
	}
	for expID, view := range exposures {
		for id, d := range view.entries {
			k := Key{Object: id, Exposure: expID}
			if refs.Entry(k) == nil {
				return nil, fmt.Errorf("assembled entry %s is not in the reference stack", k)
			}
			out.entries[k] = d
		}
	}
	if out.Len() != refs.Len() {
		return nil, fmt.Errorf("assembled stack has %d entries, reference stack has %d", out.Len(), refs.Len())
	}
	return out, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Object != keys[j].Object {
			return keys[i].Object < keys[j].Object
		}
		return keys[i].Exposure < keys[j].Exposure
	})
}
