// Package venue provides the venue registry and a constant-product AMM
// venue implementation. All venue dispatch in the engine goes through the
// registry, so supporting a new venue means implementing core.Venue and
// registering it once.
package venue

import (
	"fmt"
	"sync"

	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

// Registry maps VenueKind to a Venue implementation.
type Registry struct {
	mu     sync.RWMutex
	venues map[core.VenueKind]core.Venue
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{venues: make(map[core.VenueKind]core.Venue)}
}

// Register adds or replaces the venue for its kind.
func (r *Registry) Register(v core.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[v.Kind()] = v
}

// Get returns the venue for kind, or ErrUnknownVenue if none is registered.
func (r *Registry) Get(kind core.VenueKind) (core.Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownVenue, kind)
	}
	return v, nil
}

// Kinds returns the registered venue kinds in unspecified order.
func (r *Registry) Kinds() []core.VenueKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]core.VenueKind, 0, len(r.venues))
	for k := range r.venues {
		kinds = append(kinds, k)
	}
	return kinds
}
