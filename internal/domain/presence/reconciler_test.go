package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	peerA = Identity{ID: "a", Name: "Aruzhan"}
	peerB = Identity{ID: "b", Name: "Bekzat"}
	peerC = Identity{ID: "c", Name: "Camila"}
	me    = Identity{ID: "me", Name: "Local"}
)

func TestReconciler_FirstSnapshotIsSilent(t *testing.T) {
	// Regardless of how many peers are already online, the first snapshot
	// after connect produces no join notifications.
	for _, preexisting := range [][]Identity{
		{},
		{me},
		{me, peerA},
		{me, peerA, peerB, peerC},
	} {
		r := NewReconciler(me.ID)
		joined := r.Apply(preexisting)
		assert.NotNil(t, joined)
		assert.Empty(t, joined)
		assert.True(t, r.HasReceivedFirstSnapshot())
	}
}

func TestReconciler_DetectsNewArrival(t *testing.T) {
	r := NewReconciler(me.ID)

	r.Apply([]Identity{me, peerA, peerB})
	joined := r.Apply([]Identity{me, peerA, peerB, peerC})

	require.Len(t, joined, 1)
	assert.Equal(t, peerC, joined[0])

	// The cache advanced: applying the same snapshot again yields nothing.
	assert.Empty(t, r.Apply([]Identity{me, peerA, peerB, peerC}))
}

func TestReconciler_RejoinCountsAgain(t *testing.T) {
	r := NewReconciler(me.ID)

	r.Apply([]Identity{me, peerA, peerB})
	assert.Empty(t, r.Apply([]Identity{me, peerA})) // B left, no join

	joined := r.Apply([]Identity{me, peerA, peerB}) // B rejoined
	require.Len(t, joined, 1)
	assert.Equal(t, peerB, joined[0])
}

func TestReconciler_NeverReportsSelf(t *testing.T) {
	r := NewReconciler(me.ID)

	r.Apply([]Identity{peerA})
	// The local user reappearing (e.g. after a registry hiccup) is not a join.
	joined := r.Apply([]Identity{peerA, me})
	assert.Empty(t, joined)
}

func TestReconciler_MultipleArrivalsInOneSnapshot(t *testing.T) {
	r := NewReconciler(me.ID)

	r.Apply([]Identity{me})
	joined := r.Apply([]Identity{me, peerA, peerB})

	require.Len(t, joined, 2)
	assert.Equal(t, []Identity{peerA, peerB}, joined)
}

func TestReconciler_ResetRearmsFirstSnapshotRule(t *testing.T) {
	r := NewReconciler(me.ID)

	r.Apply([]Identity{me})
	require.Len(t, r.Apply([]Identity{me, peerA}), 1)

	// Disconnect: cache destroyed, next snapshot is "initial" again even
	// though it contains peers unseen by the old cache.
	r.Reset()
	assert.False(t, r.HasReceivedFirstSnapshot())
	assert.Empty(t, r.Apply([]Identity{me, peerA, peerB, peerC}))

	// And the rule re-engages for later snapshots.
	joined := r.Apply([]Identity{me, peerA, peerB, peerC, {ID: "d"}})
	require.Len(t, joined, 1)
	assert.Equal(t, "d", joined[0].ID)
}
