// Package sqlite implements the external collaborators of the blend
// core against the survey sqlite database: the catalog store that
// builds reference graphs, the stamp store that materializes pixel
// data behind Load, the model store that persists flattened fit
// records, and the run store for pipeline bookkeeping.
//
// The core packages (obs, deblend, fit) know nothing of this package;
// they see the stamp store only as an obs.Loader.
package sqlite
