package obs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/model"
)

// Stamp is the raw pixel payload the storage collaborator produces for
// one reference: freshly allocated buffers covering the reference's
// pixel bounds, plus the PSF and transmission at that observation.
type Stamp struct {
	Image        *geom.Image
	Mask         *geom.Mask
	Weight       *geom.Image
	PSF          *PSF
	Transmission *geom.SED
}

// Loader is the storage collaborator behind Load. Implementations fetch
// pixel data for a reference's footprint; they may batch or retry
// internally, but a returned error means no usable stamp exists.
// The core wraps all loader errors in ErrLoadFailure.
type Loader interface {
	FetchStamp(ctx context.Context, ref *ObsRef) (*Stamp, error)
}

// Buffers carries caller-owned backing stores for Load. When a Buffers
// is supplied, all three slices must be non-nil and sized to the
// reference's pixel bounds; the returned ObsData's image, mask and
// weight are then views over these slices (zero copy). When Buffers is
// nil, Load allocates fresh storage.
type Buffers struct {
	Image  []float64
	Mask   []uint32
	Weight []float64
}

type neighborEntry struct {
	ref   *ObsRef
	state Presence
}

// ObsRef is the handle to one object's appearance in one exposure. It
// records where the postage stamp lives and which neighbouring objects
// may overlap it, without holding pixel data.
type ObsRef struct {
	// Object is the owning exposure-independent record.
	Object *ObjectData
	// Exposure identifies the frame; IsCoadd and Filter describe it.
	Exposure ExposureID
	IsCoadd  bool
	Filter   string
	// WCS ties the exposure pixel grid to the sky.
	WCS *geom.WCS
	// Region is the sky footprint of the stamp; Bounds is the same
	// footprint in exposure pixel coordinates.
	Region geom.SkyRegion
	Bounds geom.Box
	// Models holds fit results specific to this exposure (forced
	// photometry and the like). Exposure-independent results belong on
	// Object.Models.
	Models *model.Registry

	loader Loader

	mu        sync.Mutex
	neighbors map[ObjectID]*neighborEntry
}

// NewObsRef constructs a reference handle. The loader is the storage
// collaborator that will materialize pixel data on Load.
func NewObsRef(object *ObjectData, exposure ExposureID, isCoadd bool, filter string,
	wcs *geom.WCS, region geom.SkyRegion, bounds geom.Box, loader Loader) *ObsRef {
	return &ObsRef{
		Object:    object,
		Exposure:  exposure,
		IsCoadd:   isCoadd,
		Filter:    filter,
		WCS:       wcs,
		Region:    region,
		Bounds:    bounds,
		Models:    model.NewRegistry(),
		loader:    loader,
		neighbors: make(map[ObjectID]*neighborEntry),
	}
}

// ObjectID returns the owning object's id.
func (r *ObsRef) ObjectID() ObjectID { return r.Object.ID }

// Key returns the (object, exposure) index of this reference.
func (r *ObsRef) Key() Key { return Key{Object: r.Object.ID, Exposure: r.Exposure} }

// AddNeighbor records that neighbour may overlap this stamp. The
// neighbour starts Present. An object is never its own neighbour.
func (r *ObsRef) AddNeighbor(neighbor *ObsRef) error {
	if neighbor == nil {
		return fmt.Errorf("%w: nil neighbor for %s", ErrNeighborInconsistency, r.Key())
	}
	if neighbor.ObjectID() == r.ObjectID() {
		return fmt.Errorf("%w: object %d cannot neighbor itself", ErrNeighborInconsistency, r.ObjectID())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.neighbors[neighbor.ObjectID()] = &neighborEntry{ref: neighbor, state: Present}
	return nil
}

// Neighbors returns the references of neighbours still Present in this
// stamp's pixels. The map is a copy; mutating it does not affect the
// reference.
func (r *ObsRef) Neighbors() map[ObjectID]*ObsRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[ObjectID]*ObsRef)
	for id, e := range r.neighbors {
		if e.state == Present {
			out[id] = e.ref
		}
	}
	return out
}

// NeighborIDs returns all known neighbour ids (regardless of state) in
// ascending order.
func (r *ObsRef) NeighborIDs() []ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]ObjectID, 0, len(r.neighbors))
	for id := range r.neighbors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NeighborState returns the presence state of the given neighbour id.
func (r *ObsRef) NeighborState(id ObjectID) (Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.neighbors[id]
	if !ok {
		return Present, false
	}
	return e.state, true
}

// NeighborRef returns the neighbour's reference regardless of state.
func (r *ObsRef) NeighborRef(id ObjectID) (*ObsRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.neighbors[id]
	if !ok {
		return nil, false
	}
	return e.ref, true
}

// MarkSubtracted transitions the neighbour to Subtracted. The receipt
// must witness an actual pixel mutation on this reference's ObsData for
// this neighbour; anything else is rejected with
// ErrNeighborInconsistency. Marking an already-Subtracted neighbour
// with a valid receipt is a no-op (the transition is monotonic).
func (r *ObsRef) MarkSubtracted(id ObjectID, receipt PixelMutation) error {
	if receipt.Object != r.ObjectID() || receipt.Exposure != r.Exposure {
		return fmt.Errorf("%w: receipt for %s applied to %s",
			ErrNeighborInconsistency, Key{receipt.Object, receipt.Exposure}, r.Key())
	}
	if receipt.Neighbor != id {
		return fmt.Errorf("%w: receipt names neighbor %d, marking %d",
			ErrNeighborInconsistency, receipt.Neighbor, id)
	}
	if receipt.PixelsChanged == 0 {
		return fmt.Errorf("%w: no pixels changed subtracting neighbor %d from %s",
			ErrNeighborInconsistency, id, r.Key())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.neighbors[id]
	if !ok {
		return fmt.Errorf("%w: unknown neighbor %d for %s", ErrNeighborInconsistency, id, r.Key())
	}
	e.state = Subtracted
	return nil
}

// ResetNeighbors returns every neighbour to Present. Used by callers
// re-running a deblend from freshly loaded pixels; never called inside
// a single deblend pass.
func (r *ObsRef) ResetNeighbors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.neighbors {
		e.state = Present
	}
}

// Load materializes the pixel data this reference describes.
//
// The call is atomic: it returns a fully populated ObsData (pixels,
// PSF, back-reference) or an error wrapping ErrLoadFailure, never a
// partial result. If buffers is non-nil, its three slices must all be
// supplied and sized to Bounds; the result's image, mask and weight
// then alias those slices. If buffers is nil, fresh storage is
// allocated by the loader.
func (r *ObsRef) Load(ctx context.Context, buffers *Buffers) (*ObsData, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("%w: no loader attached to %s", ErrLoadFailure, r.Key())
	}
	stamp, err := r.loader.FetchStamp(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailure, r.Key(), err)
	}
	if stamp == nil || stamp.Image == nil {
		return nil, fmt.Errorf("%w: %s: loader returned no image", ErrLoadFailure, r.Key())
	}

	data := &ObsData{
		Image:        stamp.Image,
		Mask:         stamp.Mask,
		Weight:       stamp.Weight,
		PSF:          stamp.PSF,
		WCS:          r.WCS,
		Transmission: stamp.Transmission,
		Ref:          r,
	}
	if buffers == nil {
		return data, nil
	}

	if buffers.Image == nil || buffers.Mask == nil || buffers.Weight == nil {
		return nil, fmt.Errorf("%w: %s: caller buffers must be supplied together", ErrLoadFailure, r.Key())
	}
	w, h := r.Bounds.Width(), r.Bounds.Height()
	img, err := geom.NewImageFrom(buffers.Image, w, h, r.Bounds.X0, r.Bounds.Y0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: image buffer: %v", ErrLoadFailure, r.Key(), err)
	}
	msk, err := geom.NewMaskFrom(buffers.Mask, w, h, r.Bounds.X0, r.Bounds.Y0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: mask buffer: %v", ErrLoadFailure, r.Key(), err)
	}
	wgt, err := geom.NewImageFrom(buffers.Weight, w, h, r.Bounds.X0, r.Bounds.Y0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: weight buffer: %v", ErrLoadFailure, r.Key(), err)
	}

	// Copy the fetched pixels into the caller's storage, then hand back
	// views over that storage. The caller sees every later in-place
	// mutation through its own slices.
	copy(img.Pix, stamp.Image.Pix)
	if stamp.Mask != nil {
		copy(msk.Bits, stamp.Mask.Bits)
	}
	if stamp.Weight != nil {
		copy(wgt.Pix, stamp.Weight.Pix)
	}
	data.Image = img
	data.Mask = msk
	data.Weight = wgt
	return data, nil
}
