// Package pipeline is the composition root for blend processing: it
// wires a deblender and a fitter over the partitions of a blend's
// (object × exposure) matrix and runs them with bounded parallelism.
//
// Deblending partitions by exposure, fitting partitions by object.
// Partitions are isolated: no shared mutable pixel buffer crosses a
// partition boundary, a partition's results become visible to the
// aggregate only after the partition completes, and a failing partition
// reports its error while leaving its slice of the aggregate absent.
// Cancellation is honoured at partition granularity.
//
// This package imports the layer packages (obs, deblend, fit, storage);
// none of them import pipeline.
package pipeline
