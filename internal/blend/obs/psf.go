package obs

import (
	"fmt"

	"github.com/umbra-data/multifit/internal/blend/geom"
	"github.com/umbra-data/multifit/internal/blend/model"
)

// PSF is the point-spread function at one observation. It owns a model
// registry of its own (PSF-fitting algorithms attach results here) and
// a realized kernel image in the PSF's natural coordinate system.
type PSF struct {
	// Models holds PSF-level fit results keyed by algorithm identifier.
	Models *model.Registry

	kernel *geom.Image
	wcs    *geom.WCS
}

// NewPSF builds a PSF from a realized kernel image. wcs defines the
// kernel's natural coordinate system; nil means the identity system.
func NewPSF(kernel *geom.Image, wcs *geom.WCS) *PSF {
	if wcs == nil {
		wcs = geom.IdentityWCS()
	}
	return &PSF{Models: model.NewRegistry(), kernel: kernel, wcs: wcs}
}

// Kernel returns the realized kernel image (shared, not copied).
func (p *PSF) Kernel() *geom.Image { return p.kernel }

// ObsData returns an image of the PSF as a self-contained observation:
// nil mask and weight, no transmission, no PSF of its own, no
// neighbours, no back-reference, and the WCS of the PSF's natural
// coordinate system. The image is a copy, so callers may mutate it
// freely.
func (p *PSF) ObsData() (*ObsData, error) {
	if p.kernel == nil {
		return nil, fmt.Errorf("%w: psf has no realized kernel", ErrLoadFailure)
	}
	return &ObsData{
		Image: p.kernel.Clone(),
		WCS:   p.wcs,
	}, nil
}
