package obs

import (
	"context"
	"fmt"
	"sort"

	"github.com/umbra-data/multifit/internal/blend/geom"
)

// BlendObsRef is one exposure's view across all objects of a blend (or
// a declared subset): a mapping from object id to that object's ObsRef
// in this exposure, plus the combined sky region.
type BlendObsRef struct {
	Blend    *BlendData
	Exposure ExposureID
	IsCoadd  bool
	Filter   string
	Region   geom.SkyRegion

	entries map[ObjectID]*ObsRef
}

// NewBlendObsRef assembles a per-exposure view from member references.
// Every reference must belong to an object of the blend, belong to the
// same exposure, and agree on the exposure's coadd flag and filter.
func NewBlendObsRef(blend *BlendData, exposure ExposureID, refs ...*ObsRef) (*BlendObsRef, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("blend exposure %d has no references", exposure)
	}
	b := &BlendObsRef{
		Blend:    blend,
		Exposure: exposure,
		IsCoadd:  refs[0].IsCoadd,
		Filter:   refs[0].Filter,
		entries:  make(map[ObjectID]*ObsRef, len(refs)),
	}
	for _, r := range refs {
		if r.Exposure != exposure {
			return nil, fmt.Errorf("reference %s does not belong to exposure %d", r.Key(), exposure)
		}
		if !blend.Contains(r.ObjectID()) {
			return nil, fmt.Errorf("%w: object %d is not in the blend", ErrNeighborInconsistency, r.ObjectID())
		}
		if r.IsCoadd != b.IsCoadd || r.Filter != b.Filter {
			return nil, fmt.Errorf("exposure %d metadata disagrees between objects %d and %d",
				exposure, refs[0].ObjectID(), r.ObjectID())
		}
		if _, dup := b.entries[r.ObjectID()]; dup {
			return nil, fmt.Errorf("duplicate object %d in exposure %d", r.ObjectID(), exposure)
		}
		b.entries[r.ObjectID()] = r
		b.Region = b.Region.Union(r.Region)
	}
	return b, nil
}

// Entry returns the reference for one object, or nil.
func (b *BlendObsRef) Entry(id ObjectID) *ObsRef { return b.entries[id] }

// Len returns the number of member objects.
func (b *BlendObsRef) Len() int { return len(b.entries) }

// ObjectIDs returns member object ids in ascending order.
func (b *BlendObsRef) ObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Load materializes every member reference. The call is atomic: any
// child failure aborts the whole load and no BlendObsData is returned.
func (b *BlendObsRef) Load(ctx context.Context) (*BlendObsData, error) {
	out := &BlendObsData{
		Blend:    b.Blend,
		Exposure: b.Exposure,
		Region:   b.Region,
		Ref:      b,
		entries:  make(map[ObjectID]*ObsData, len(b.entries)),
	}
	for _, id := range b.ObjectIDs() {
		data, err := b.entries[id].Load(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("loading exposure %d: %w", b.Exposure, err)
		}
		out.entries[id] = data
	}
	return out, nil
}

// BlendObsData is the materialized counterpart of BlendObsRef: one
// exposure's pixel data across all objects of the blend.
type BlendObsData struct {
	Blend    *BlendData
	Exposure ExposureID
	Region   geom.SkyRegion
	Ref      *BlendObsRef

	entries map[ObjectID]*ObsData
}

// Entry returns the data for one object, or nil.
func (b *BlendObsData) Entry(id ObjectID) *ObsData { return b.entries[id] }

// Len returns the number of member objects.
func (b *BlendObsData) Len() int { return len(b.entries) }

// ObjectIDs returns member object ids in ascending order.
func (b *BlendObsData) ObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
