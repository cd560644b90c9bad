package presence

import (
	"sync"
)

// Reconciler implements the client-side join detection algorithm: it diffs
// each received snapshot against the set of peer ids seen in the previous
// one and reports which arrivals are genuinely new.
//
// Rules:
//   - the very first snapshot after a connect emits no joins, regardless of
//     how many peers are already online (those are pre-existing, not new)
//   - on later snapshots, every id that is present now, was absent from the
//     cached set and is not the local user counts as exactly one join
//   - a peer that leaves and comes back is reported again: its id left the
//     cache on the snapshot where it was absent
//
// Apply must not run concurrently with itself; the internal mutex serializes
// callers so a transport that delivers frames from multiple goroutines still
// processes snapshots one at a time, in arrival order.
type Reconciler struct {
	mu        sync.Mutex
	selfID    string
	cache     map[string]struct{}
	seenFirst bool
}

// NewReconciler creates a reconciler for the local user with the given id.
func NewReconciler(selfID string) *Reconciler {
	return &Reconciler{
		selfID: selfID,
		cache:  make(map[string]struct{}),
	}
}

// Apply ingests one snapshot and returns the peers that joined since the
// previous one. The returned slice preserves snapshot order and is empty
// (never nil) for the first snapshot after construction or Reset.
func (r *Reconciler) Apply(snapshot []Identity) []Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := make([]Identity, 0)
	if r.seenFirst {
		for _, peer := range snapshot {
			if peer.ID == r.selfID {
				continue
			}
			if _, known := r.cache[peer.ID]; !known {
				joined = append(joined, peer)
			}
		}
	}

	r.cache = IDsOf(snapshot)
	r.seenFirst = true
	return joined
}

// Reset clears the cached set and re-arms first-snapshot silence. Called on
// disconnect so that the next connection's initial snapshot is again treated
// as pre-existing peers.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]struct{})
	r.seenFirst = false
}

// HasReceivedFirstSnapshot reports whether a snapshot has been applied since
// construction or the last Reset.
func (r *Reconciler) HasReceivedFirstSnapshot() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seenFirst
}
