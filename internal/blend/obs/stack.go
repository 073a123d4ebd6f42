package obs

import (
	"context"
	"fmt"
	"sort"
)

// ObsRefStack collects all exposures of one object: a mapping from
// exposure id to the object's ObsRef in that exposure.
type ObsRefStack struct {
	Object  *ObjectData
	entries map[ExposureID]*ObsRef
}

// NewObsRefStack assembles the per-object stack. Every reference must
// belong to the object, and exposure ids must be unique.
func NewObsRefStack(object *ObjectData, refs ...*ObsRef) (*ObsRefStack, error) {
	s := &ObsRefStack{Object: object, entries: make(map[ExposureID]*ObsRef, len(refs))}
	for _, r := range refs {
		if r.ObjectID() != object.ID {
			return nil, fmt.Errorf("reference %s does not belong to object %d", r.Key(), object.ID)
		}
		if _, dup := s.entries[r.Exposure]; dup {
			return nil, fmt.Errorf("duplicate exposure %d for object %d", r.Exposure, object.ID)
		}
		s.entries[r.Exposure] = r
	}
	return s, nil
}

// Entry returns the reference for one exposure, or nil.
func (s *ObsRefStack) Entry(exposure ExposureID) *ObsRef { return s.entries[exposure] }

// Len returns the number of exposures.
func (s *ObsRefStack) Len() int { return len(s.entries) }

// ExposureIDs returns the exposure ids in ascending order.
func (s *ObsRefStack) ExposureIDs() []ExposureID {
	ids := make([]ExposureID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Load materializes every exposure. Atomic: any child failure aborts
// the whole call.
func (s *ObsRefStack) Load(ctx context.Context) (*ObsDataStack, error) {
	out := &ObsDataStack{
		Object:  s.Object,
		Ref:     s,
		entries: make(map[ExposureID]*ObsData, len(s.entries)),
	}
	for _, id := range s.ExposureIDs() {
		data, err := s.entries[id].Load(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("loading object %d: %w", s.Object.ID, err)
		}
		out.entries[id] = data
	}
	return out, nil
}

// ObsDataStack is the materialized counterpart of ObsRefStack: all
// exposures' pixel data for one object.
type ObsDataStack struct {
	Object  *ObjectData
	Ref     *ObsRefStack
	entries map[ExposureID]*ObsData
}

// Entry returns the data for one exposure, or nil.
func (s *ObsDataStack) Entry(exposure ExposureID) *ObsData { return s.entries[exposure] }

// Len returns the number of exposures.
func (s *ObsDataStack) Len() int { return len(s.entries) }

// ExposureIDs returns the exposure ids in ascending order.
func (s *ObsDataStack) ExposureIDs() []ExposureID {
	ids := make([]ExposureID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
