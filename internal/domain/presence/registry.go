package presence

import (
	"sort"
	"sync"
)

// ConnectionID identifies one transport connection for the lifetime of that
// connection. The transport layer mints these; the registry treats them as
// opaque keys.
type ConnectionID string

// IsValid checks that the connection id is not empty.
func (c ConnectionID) IsValid() bool {
	return len(c) > 0
}

// Registry is the single shared bookkeeping structure of the hub: it maps
// active, announced connections to the identity they announced.
//
// Invariants:
//   - every entry holds a validated identity; a connection that never
//     announced has no entry and appears in no snapshot
//   - Register, Unregister and Snapshot serialize against each other, so a
//     snapshot is never taken mid-mutation
//   - Snapshot deduplicates by identity id: two tabs of the same user
//     collapse to one entry (last writer wins, see docs in Register)
type Registry struct {
	mu      sync.RWMutex
	entries map[ConnectionID]Identity
	// order tracks registration sequence per connection so that dedup is
	// deterministic: the most recently registered connection wins.
	order map[ConnectionID]uint64
	seq   uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[ConnectionID]Identity),
		order:   make(map[ConnectionID]uint64),
	}
}

// Register associates identity with the given connection. Calling it again
// for the same connection overwrites the previous identity, which is how a
// client re-announces. When two different connections announce the same
// identity id, the one registered last supplies the surviving record for
// snapshots (last-writer-wins).
func (r *Registry) Register(connID ConnectionID, identity Identity) error {
	if !connID.IsValid() {
		return ErrEmptyConnID
	}
	if err := identity.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.entries[connID] = identity
	r.order[connID] = r.seq
	return nil
}

// Unregister removes the connection's entry. It is a no-op, not an error,
// for a connection that never announced or was already removed.
func (r *Registry) Unregister(connID ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, connID)
	delete(r.order, connID)
}

// Snapshot returns the deduplicated-by-id list of currently announced
// identities, sorted by id so the result is deterministic for a given
// registry state.
func (r *Registry) Snapshot() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	winners := make(map[string]ConnectionID, len(r.entries))
	for connID, identity := range r.entries {
		prev, ok := winners[identity.ID]
		if !ok || r.order[connID] > r.order[prev] {
			winners[identity.ID] = connID
		}
	}

	snapshot := make([]Identity, 0, len(winners))
	for _, connID := range winners {
		snapshot = append(snapshot, r.entries[connID])
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// Identity returns the identity announced on the given connection, if any.
func (r *Registry) Identity(connID ConnectionID) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.entries[connID]
	return identity, ok
}

// Len returns the number of announced connections (not deduplicated).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
