// Package fit defines the Fitter contract — algorithms that measure
// object properties and attach Models to registries — and the weighted
// second-moments fitter used by the default pipeline.
//
// The dividing line from deblenders: fitters never mutate any pixel
// buffer. Every image, mask and weight in the input stack is
// bit-identical before and after ProcessBlend. Results are delivered
// exclusively by attaching Models to object-level and observation-level
// registries.
package fit
