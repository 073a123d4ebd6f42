// Package deblend defines the Deblender contract — algorithms that
// separate blended objects so each can be fit on its own — and the
// model-subtraction deblender used by the default pipeline.
//
// Deblenders are the only algorithms allowed to mutate pixels. They may
// modify image (and possibly weight) values to subtract neighbours, and
// may set mask planes on pixels unsuitable for single-object fitting.
// They never zero weight pixels as a masking substitute; acting on the
// mask is the downstream consumer's job. Every subtraction is recorded
// on the reference side by transitioning that neighbour's presence
// state, and only there.
package deblend
