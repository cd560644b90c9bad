package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addOne(t *testing.T, s *Store, owner OwnerID, title string) *Notification {
	t.Helper()
	n, err := s.Add(Draft{
		OwnerID: owner,
		Type:    TypePeerJoined,
		Title:   title,
		Message: title + " is online",
	})
	require.NoError(t, err)
	return n
}

func TestStore_AddStampsFields(t *testing.T) {
	s := NewStore()
	before := time.Now()

	n := addOne(t, s, "u1", "Bekzat joined")

	assert.True(t, n.ID.IsValid())
	assert.False(t, n.IsRead)
	assert.False(t, n.CreatedAt.Before(before))
	assert.Equal(t, OwnerID("u1"), n.OwnerID)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := NewStore()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}

	addOne(t, s, "u1", "first")
	addOne(t, s, "u1", "second")
	addOne(t, s, "u1", "third")

	list := s.List("u1", 0)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "second", list[1].Title)
	assert.Equal(t, "first", list[2].Title)

	limited := s.List("u1", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "third", limited[0].Title)
}

func TestStore_UnreadCount(t *testing.T) {
	s := NewStore()

	first := addOne(t, s, "u1", "one")
	addOne(t, s, "u1", "two")
	addOne(t, s, "u1", "three")

	assert.Equal(t, 3, s.UnreadCount("u1"))

	s.MarkRead("u1", first.ID)
	assert.Equal(t, 2, s.UnreadCount("u1"))

	s.ClearAll("u1")
	assert.Equal(t, 0, s.UnreadCount("u1"))
	assert.Empty(t, s.List("u1", 0))
}

func TestStore_MarkReadUnknownIDIsNoop(t *testing.T) {
	s := NewStore()
	addOne(t, s, "u1", "one")

	s.MarkRead("u1", "no-such-id")
	s.MarkRead("u2", "no-such-owner-either")
	assert.Equal(t, 1, s.UnreadCount("u1"))
}

func TestStore_OwnersAreIsolated(t *testing.T) {
	s := NewStore()
	addOne(t, s, "u1", "for u1")
	addOne(t, s, "u2", "for u2")

	assert.Equal(t, 1, s.UnreadCount("u1"))
	assert.Equal(t, 1, s.UnreadCount("u2"))

	s.ClearAll("u1")
	assert.Equal(t, 0, s.UnreadCount("u1"))
	assert.Equal(t, 1, s.UnreadCount("u2"))
}

func TestStore_NoDeduplication(t *testing.T) {
	s := NewStore()

	// Duplicate suppression belongs to the presence reconciler, not here.
	addOne(t, s, "u1", "Bekzat joined")
	addOne(t, s, "u1", "Bekzat joined")
	assert.Equal(t, 2, s.UnreadCount("u1"))
}

func TestStore_AddValidation(t *testing.T) {
	s := NewStore()

	_, err := s.Add(Draft{Type: TypePeerJoined, Title: "no owner"})
	assert.Error(t, err)

	_, err = s.Add(Draft{OwnerID: "u1", Type: "bogus", Title: "bad type"})
	assert.Error(t, err)

	_, err = s.Add(Draft{OwnerID: "u1", Type: TypeSystem, Title: "   "})
	assert.Error(t, err)
}
