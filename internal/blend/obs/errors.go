package obs

import "errors"

// ErrLoadFailure wraps any failure of the storage collaborator to
// produce pixel data for a Reference. Loads are atomic: when a load
// fails, no partially populated Data object is returned, and stack
// loads abort without dropping children silently.
var ErrLoadFailure = errors.New("load failure")

// ErrNeighborInconsistency is returned when a neighbour-state mutation
// is rejected: marking a neighbour Subtracted without a corresponding
// pixel mutation, referencing a neighbour id absent from the blend, or
// supplying a mutation receipt for the wrong (object, exposure) pair.
// Rejection happens at the point of mutation, never deferred.
var ErrNeighborInconsistency = errors.New("neighbor state inconsistency")
