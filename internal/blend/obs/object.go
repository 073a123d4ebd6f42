package obs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/model"
)

// ObjectData aggregates everything known about one physical sky object
// that does not depend on any particular exposure: identity, position,
// the union sky region over all attached models, and the registry of
// exposure-independent Models (shear, multi-band fluxes, and so on).
// Exposure-specific Models belong on ObsRef, not here.
type ObjectData struct {
	ID       ObjectID
	Position geom.SkyPoint

	// Models holds exposure-independent fit results keyed by algorithm
	// identifier.
	Models *model.Registry

	mu     sync.Mutex
	region geom.SkyRegion
}

// NewObjectData creates an ObjectData with the given seed region
// (typically the detection footprint from the catalog collaborator).
func NewObjectData(id ObjectID, region geom.SkyRegion, position geom.SkyPoint) *ObjectData {
	return &ObjectData{
		ID:       id,
		Position: position,
		Models:   model.NewRegistry(),
		region:   region,
	}
}

// SkyRegion returns the current union region for the object.
func (o *ObjectData) SkyRegion() geom.SkyRegion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.region
}

// AttachModel stores m under key in the object-level registry and grows
// the object's sky region by the model's own region. The region only
// ever grows: replacing a model under an existing key does not shrink
// coverage claimed by earlier attachments.
func (o *ObjectData) AttachModel(key string, m model.Model) {
	o.Models.Attach(key, m)
	r := m.ComputeSkyRegion(o.Position)
	o.mu.Lock()
	o.region = o.region.Union(r)
	o.mu.Unlock()
}

// BlendData groups objects whose light overlaps on the sky, so they
// must be considered jointly. Its sky region is the union of its
// members' regions at construction time.
type BlendData struct {
	region  geom.SkyRegion
	objects map[ObjectID]*ObjectData
}

// NewBlendData builds a BlendData from member objects. Object ids must
// be unique within the blend.
func NewBlendData(objects ...*ObjectData) (*BlendData, error) {
	b := &BlendData{objects: make(map[ObjectID]*ObjectData, len(objects))}
	for _, o := range objects {
		if _, dup := b.objects[o.ID]; dup {
			return nil, fmt.Errorf("duplicate object %d in blend", o.ID)
		}
		b.objects[o.ID] = o
		b.region = b.region.Union(o.SkyRegion())
	}
	return b, nil
}

// SkyRegion returns the blend's union region.
func (b *BlendData) SkyRegion() geom.SkyRegion { return b.region }

// Object returns the member with the given id, or nil.
func (b *BlendData) Object(id ObjectID) *ObjectData { return b.objects[id] }

// Contains reports whether id is a member of the blend.
func (b *BlendData) Contains(id ObjectID) bool {
	_, ok := b.objects[id]
	return ok
}

// Len returns the number of member objects.
func (b *BlendData) Len() int { return len(b.objects) }

// ObjectIDs returns the member ids in ascending order.
func (b *BlendData) ObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(b.objects))
	for id := range b.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
