package presence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

func TestIdentity_ValidateUsesSharedSentinel(t *testing.T) {
	err := Identity{Name: "no id"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrIdentityEmpty)
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestRegistry_SnapshotNeverContainsDuplicateIDs(t *testing.T) {
	r := NewRegistry()

	// Same user announced from three tabs, another user from one.
	require.NoError(t, r.Register("conn-1", Identity{ID: "u1", Name: "Aruzhan"}))
	require.NoError(t, r.Register("conn-2", Identity{ID: "u1", Name: "Aruzhan (tab 2)"}))
	require.NoError(t, r.Register("conn-3", Identity{ID: "u2", Name: "Bekzat"}))
	require.NoError(t, r.Register("conn-4", Identity{ID: "u1", Name: "Aruzhan (tab 3)"}))

	snapshot := r.Snapshot()
	assert.Len(t, snapshot, 2)

	seen := map[string]int{}
	for _, identity := range snapshot {
		seen[identity.ID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "id %s appears %d times", id, count)
	}
}

func TestRegistry_DuplicateIDLastWriterWins(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("conn-1", Identity{ID: "u1", Name: "first tab"}))
	require.NoError(t, r.Register("conn-2", Identity{ID: "u1", Name: "second tab"}))

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "second tab", snapshot[0].Name)

	// Closing the winning tab resurfaces the older one.
	r.Unregister("conn-2")
	snapshot = r.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "first tab", snapshot[0].Name)
}

func TestRegistry_ReannounceOverwritesIdentity(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("conn-1", Identity{ID: "u1", Name: "old name"}))
	require.NoError(t, r.Register("conn-1", Identity{ID: "u1", Name: "new name"}))

	assert.Equal(t, 1, r.Len())
	identity, ok := r.Identity("conn-1")
	require.True(t, ok)
	assert.Equal(t, "new name", identity.Name)
}

func TestRegistry_UnregisterUnknownConnIsNoop(t *testing.T) {
	r := NewRegistry()

	// Disconnect before any announce must not panic or error.
	r.Unregister("never-registered")
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_SnapshotIsDeterministic(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("u%02d", i)
		require.NoError(t, r.Register(ConnectionID("conn-"+id), Identity{ID: id}))
	}

	first := r.Snapshot()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Snapshot())
	}
}

func TestRegistry_RejectsInvalidInput(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("", Identity{ID: "u1"}), ErrEmptyConnID)
	assert.ErrorIs(t, r.Register("conn-1", Identity{ID: "  "}), ErrEmptyIdentityID)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RandomisedDedupInvariant(t *testing.T) {
	r := NewRegistry()

	// A fixed pseudo-random walk of register/unregister calls; after every
	// step the snapshot must be duplicate-free.
	for step := 0; step < 200; step++ {
		connID := ConnectionID(fmt.Sprintf("conn-%d", step%17))
		userID := fmt.Sprintf("u%d", step%7)

		if step%5 == 3 {
			r.Unregister(connID)
		} else {
			require.NoError(t, r.Register(connID, Identity{ID: userID}))
		}

		seen := map[string]struct{}{}
		for _, identity := range r.Snapshot() {
			_, dup := seen[identity.ID]
			require.False(t, dup, "duplicate id %s at step %d", identity.ID, step)
			seen[identity.ID] = struct{}{}
		}
	}
}
