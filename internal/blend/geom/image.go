package geom

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Standard mask planes. Planes are bit positions in a Mask pixel.
const (
	// MaskBad marks pixels unusable for any measurement (defects,
	// cosmic rays, missing data).
	MaskBad uint32 = 1 << 0
	// MaskNeighbor marks pixels heavily influenced by a neighbouring
	// object and unsuitable for single-object fitting.
	MaskNeighbor uint32 = 1 << 1
	// MaskEdge marks pixels at the exposure boundary.
	MaskEdge uint32 = 1 << 2
	// MaskSaturated marks pixels at or above the detector full well.
	MaskSaturated uint32 = 1 << 3
)

// Image is a rectangular float64 pixel buffer with an origin offset
// (X0, Y0) locating pixel [0,0] of the buffer in the parent exposure's
// pixel grid. Pixels are stored row-major.
//
// An Image constructed with NewImageFrom shares its backing slice with
// the caller: writes through either alias are visible to both. Use
// Clone to sever the aliasing.
type Image struct {
	Pix    []float64
	Width  int
	Height int
	X0     int
	Y0     int
}

// NewImage allocates a zero-filled image of the given size and origin.
func NewImage(width, height, x0, y0 int) *Image {
	return &Image{
		Pix:    make([]float64, width*height),
		Width:  width,
		Height: height,
		X0:     x0,
		Y0:     y0,
	}
}

// NewImageFrom wraps an existing buffer as an image view (no copy).
// The buffer length must equal width*height.
func NewImageFrom(pix []float64, width, height, x0, y0 int) (*Image, error) {
	if len(pix) != width*height {
		return nil, fmt.Errorf("image buffer length %d does not match %dx%d", len(pix), width, height)
	}
	return &Image{Pix: pix, Width: width, Height: height, X0: x0, Y0: y0}, nil
}

// Bounds returns the image footprint in parent-grid coordinates.
func (im *Image) Bounds() Box {
	return Box{X0: im.X0, Y0: im.Y0, X1: im.X0 + im.Width - 1, Y1: im.Y0 + im.Height - 1}
}

// At returns the pixel at parent-grid coordinates (x, y).
func (im *Image) At(x, y int) float64 {
	return im.Pix[(y-im.Y0)*im.Width+(x-im.X0)]
}

// Set writes the pixel at parent-grid coordinates (x, y).
func (im *Image) Set(x, y int, v float64) {
	im.Pix[(y-im.Y0)*im.Width+(x-im.X0)] = v
}

// Clone returns a deep copy with a fresh backing slice.
func (im *Image) Clone() *Image {
	out := &Image{Pix: make([]float64, len(im.Pix)), Width: im.Width, Height: im.Height, X0: im.X0, Y0: im.Y0}
	copy(out.Pix, im.Pix)
	return out
}

// Sub subtracts other from im in place over the overlap of their
// footprints, returning the number of pixels changed.
func (im *Image) Sub(other *Image) int {
	a, b := im.Bounds(), other.Bounds()
	x0, x1 := maxInt(a.X0, b.X0), minInt(a.X1, b.X1)
	y0, y1 := maxInt(a.Y0, b.Y0), minInt(a.Y1, b.Y1)
	changed := 0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			v := other.At(x, y)
			if v != 0 {
				im.Set(x, y, im.At(x, y)-v)
				changed++
			}
		}
	}
	return changed
}

// Sum returns the total of all pixel values.
func (im *Image) Sum() float64 { return floats.Sum(im.Pix) }

// Equal reports whether two images have identical geometry and
// bit-identical pixels.
func (im *Image) Equal(other *Image) bool {
	if other == nil || im.Width != other.Width || im.Height != other.Height ||
		im.X0 != other.X0 || im.Y0 != other.Y0 {
		return im == other
	}
	return floats.Equal(im.Pix, other.Pix)
}

// Mask is a rectangular bit-plane buffer aligned with an Image. As with
// Image, a mask built with NewMaskFrom aliases the caller's buffer.
type Mask struct {
	Bits   []uint32
	Width  int
	Height int
	X0     int
	Y0     int
}

// NewMask allocates a cleared mask of the given size and origin.
func NewMask(width, height, x0, y0 int) *Mask {
	return &Mask{
		Bits:   make([]uint32, width*height),
		Width:  width,
		Height: height,
		X0:     x0,
		Y0:     y0,
	}
}

// NewMaskFrom wraps an existing buffer as a mask view (no copy).
func NewMaskFrom(bits []uint32, width, height, x0, y0 int) (*Mask, error) {
	if len(bits) != width*height {
		return nil, fmt.Errorf("mask buffer length %d does not match %dx%d", len(bits), width, height)
	}
	return &Mask{Bits: bits, Width: width, Height: height, X0: x0, Y0: y0}, nil
}

// Bounds returns the mask footprint in parent-grid coordinates.
func (m *Mask) Bounds() Box {
	return Box{X0: m.X0, Y0: m.Y0, X1: m.X0 + m.Width - 1, Y1: m.Y0 + m.Height - 1}
}

// At returns the planes set at parent-grid coordinates (x, y).
func (m *Mask) At(x, y int) uint32 {
	return m.Bits[(y-m.Y0)*m.Width+(x-m.X0)]
}

// Or sets the given planes at parent-grid coordinates (x, y).
func (m *Mask) Or(x, y int, planes uint32) {
	m.Bits[(y-m.Y0)*m.Width+(x-m.X0)] |= planes
}

// Clone returns a deep copy with a fresh backing slice.
func (m *Mask) Clone() *Mask {
	out := &Mask{Bits: make([]uint32, len(m.Bits)), Width: m.Width, Height: m.Height, X0: m.X0, Y0: m.Y0}
	copy(out.Bits, m.Bits)
	return out
}

// Equal reports identical geometry and bit-identical planes.
func (m *Mask) Equal(other *Mask) bool {
	if other == nil || m.Width != other.Width || m.Height != other.Height ||
		m.X0 != other.X0 || m.Y0 != other.Y0 {
		return m == other
	}
	for i, b := range m.Bits {
		if other.Bits[i] != b {
			return false
		}
	}
	return true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
