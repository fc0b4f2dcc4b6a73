// Package registry holds the in-memory relay_id -> RelaySpec table every
// connection and the validator consult on every frame (spec.md §4.3).
package registry

import (
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/store"
)

// ErrNotActive is returned by Get when relayID is unknown or disabled.
var ErrNotActive = errors.New("relay is not active")

// Registry is the process-wide relay_id -> RelaySpec table. Grounded on
// original_source/relay/client_manager.py's NostrClientManager._active_relays
// dict, reshaped around xsync.MapOf so readers (every connection's hot path)
// never block on a registry-wide mutex while Enable/Disable mutate it.
type Registry struct {
	relays *xsync.MapOf[string, config.RelaySpec]
	store  *store.Store
}

// New constructs an empty Registry backed by s for persistence.
func New(s *store.Store) *Registry {
	return &Registry{
		relays: xsync.NewMapOf[string, config.RelaySpec](),
		store:  s,
	}
}

// Hydrate loads every enabled relay's spec from the store into memory,
// overwriting entries with the same relay_id; entries the store does not
// return are left in place. Call once at startup.
func (r *Registry) Hydrate() error {
	specs, err := r.store.ActiveRelaySpecs()
	if err != nil {
		return fmt.Errorf("hydrate registry: %w", err)
	}
	for relayID, spec := range specs {
		r.relays.Store(relayID, spec)
	}
	return nil
}

// Get returns the active RelaySpec for relayID, or ErrNotActive if the
// relay doesn't exist or isn't enabled.
func (r *Registry) Get(relayID string) (config.RelaySpec, error) {
	spec, ok := r.relays.Load(relayID)
	if !ok {
		return config.RelaySpec{}, ErrNotActive
	}
	return spec, nil
}

// Enable adds or replaces relayID's spec and marks it active, persisting
// the change via the store. Grounded on
// original_source/relay/client_manager.py's enable_relay.
func (r *Registry) Enable(relayID string, spec config.RelaySpec) error {
	spec.RelayID = relayID
	spec.Enabled = true

	existing, err := r.store.GetRelay(relayID)
	if err != nil {
		return fmt.Errorf("enable relay %s: %w", relayID, err)
	}
	if existing == nil {
		if _, err := r.store.CreateRelay(spec.Name, "", "", "", spec); err != nil {
			return fmt.Errorf("enable relay %s: %w", relayID, err)
		}
	} else {
		if err := r.store.UpdateRelay(relayID, spec.Name, existing.Description, existing.PubKey, existing.Contact, spec); err != nil {
			return fmt.Errorf("enable relay %s: %w", relayID, err)
		}
	}

	r.relays.Store(relayID, spec)
	return nil
}

// Disable marks relayID inactive: it is removed from the in-memory table
// (so Get immediately starts returning ErrNotActive) and persisted as
// disabled, but its spec row and event history are left intact. Grounded
// on original_source/relay/client_manager.py's disable_relay +
// _stop_clients_for_relay (the connection-eviction half lives in
// internal/relay.Manager.Disable, which stops the connections and then
// calls this).
func (r *Registry) Disable(relayID string) error {
	spec, ok := r.relays.Load(relayID)
	if ok {
		spec.Enabled = false
		existing, err := r.store.GetRelay(relayID)
		if err == nil && existing != nil {
			if err := r.store.UpdateRelay(relayID, existing.Name, existing.Description, existing.PubKey, existing.Contact, spec); err != nil {
				return fmt.Errorf("disable relay %s: %w", relayID, err)
			}
		}
	}

	r.relays.Delete(relayID)
	return nil
}

// Active reports whether relayID currently has an enabled spec in memory.
func (r *Registry) Active(relayID string) bool {
	_, ok := r.relays.Load(relayID)
	return ok
}

// Row returns relayID's full stored row, including the identity metadata
// (description/pubkey/contact) that RelaySpec itself doesn't carry, or nil
// if relayID has no stored row. Used by the NIP-11 info handler.
func (r *Registry) Row(relayID string) (*store.RelayRow, error) {
	return r.store.GetRelay(relayID)
}

// Range calls fn for every active relay.
// fn returning false stops iteration early, matching xsync.MapOf.Range.
func (r *Registry) Range(fn func(relayID string, spec config.RelaySpec) bool) {
	r.relays.Range(fn)
}
