package geom

import (
	"fmt"
	"math"
)

// AffineTransform maps (x, y) -> (XX*x + XY*y + X0, YX*x + YY*y + Y0).
type AffineTransform struct {
	XX, XY float64
	YX, YY float64
	X0, Y0 float64
}

// IdentityTransform returns the identity affine transform.
func IdentityTransform() AffineTransform {
	return AffineTransform{XX: 1, YY: 1}
}

// Apply maps a point through the transform.
func (t AffineTransform) Apply(x, y float64) (float64, float64) {
	return t.XX*x + t.XY*y + t.X0, t.YX*x + t.YY*y + t.Y0
}

// Invert returns the inverse transform, or an error if the linear part
// is singular.
func (t AffineTransform) Invert() (AffineTransform, error) {
	det := t.XX*t.YY - t.XY*t.YX
	if det == 0 {
		return AffineTransform{}, fmt.Errorf("affine transform is singular")
	}
	inv := AffineTransform{
		XX: t.YY / det, XY: -t.XY / det,
		YX: -t.YX / det, YY: t.XX / det,
	}
	inv.X0 = -(inv.XX*t.X0 + inv.XY*t.Y0)
	inv.Y0 = -(inv.YX*t.X0 + inv.YY*t.Y0)
	return inv, nil
}

// Compose returns the transform equivalent to applying u first, then t.
func (t AffineTransform) Compose(u AffineTransform) AffineTransform {
	return AffineTransform{
		XX: t.XX*u.XX + t.XY*u.YX,
		XY: t.XX*u.XY + t.XY*u.YY,
		YX: t.YX*u.XX + t.YY*u.YX,
		YY: t.YX*u.XY + t.YY*u.YY,
		X0: t.XX*u.X0 + t.XY*u.Y0 + t.X0,
		Y0: t.YX*u.X0 + t.YY*u.Y0 + t.Y0,
	}
}

// WCS maps between exposure pixel coordinates and sky coordinates using
// a local affine approximation (adequate at postage-stamp scales).
type WCS struct {
	// PixelToSkyTransform maps pixel (x, y) to (RA, Dec) degrees.
	PixelToSkyTransform AffineTransform
}

// IdentityWCS returns a WCS whose pixel grid coincides with the sky
// grid. Used for PSF natural coordinate systems and tests.
func IdentityWCS() *WCS {
	return &WCS{PixelToSkyTransform: IdentityTransform()}
}

// PixelToSky maps pixel coordinates to a sky position.
func (w *WCS) PixelToSky(x, y float64) SkyPoint {
	ra, dec := w.PixelToSkyTransform.Apply(x, y)
	return SkyPoint{RA: ra, Dec: dec}
}

// SkyToPixel maps a sky position to pixel coordinates.
func (w *WCS) SkyToPixel(p SkyPoint) (float64, float64, error) {
	inv, err := w.PixelToSkyTransform.Invert()
	if err != nil {
		return 0, 0, fmt.Errorf("wcs is not invertible: %w", err)
	}
	x, y := inv.Apply(p.RA, p.Dec)
	return x, y, nil
}

// PixelScale returns the mean linear scale (degrees per pixel).
func (w *WCS) PixelScale() float64 {
	t := w.PixelToSkyTransform
	det := t.XX*t.YY - t.XY*t.YX
	return math.Sqrt(math.Abs(det))
}
