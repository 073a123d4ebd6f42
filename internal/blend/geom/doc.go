// Package geom owns the geometric and numeric value types shared by the
// blend processing layers: sky regions, pixel spans, pixel images and
// masks, affine transforms, WCS mappings, and spectral energy
// distributions.
//
// Everything in this package is a value type with a small algebra
// (union, intersection, overlap tests, coordinate mapping). No package
// here knows anything about objects, blends, exposures or algorithms.
//
// Dependency rule: geom is a leaf. It may not import any other
// internal/blend package.
package geom
