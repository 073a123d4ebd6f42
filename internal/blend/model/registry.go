package model

import (
	"sort"
	"sync"
)

// Registry is the keyed Model container owned by an entity (object,
// source, or PSF). Keys are algorithm identifiers. Attaching under an
// existing key replaces that entry; distinct keys never collide and are
// never merged.
//
// A Registry is safe for concurrent readers. The processing contract
// allows at most one writer per algorithm invocation, but the registry
// still locks writes so a misbehaving caller corrupts results, not
// memory.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Attach stores m under the algorithm identifier key, replacing any
// previous entry for that key.
func (r *Registry) Attach(key string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[key] = m
}

// Get returns the Model attached under key, or nil if none is.
func (r *Registry) Get(key string) Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[key]
}

// Keys returns the sorted algorithm identifiers with attached Models.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.models))
	for k := range r.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of attached Models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Snapshot returns a point-in-time copy of the key→Model mapping.
// Models themselves are shared; the mapping is not. Used when a
// registry crosses a partition boundary so in-flight writes on one
// side never alias reads on the other.
func (r *Registry) Snapshot() map[string]Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Model, len(r.models))
	for k, v := range r.models {
		out[k] = v
	}
	return out
}
