package presence

import (
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// SnapshotEvent is published on every membership change and on every
// snapshot a client receives. Consumers (dashboard, directory, matchmaker)
// subscribe read-only instead of re-deriving presence themselves.
type SnapshotEvent struct {
	shared.BaseEvent
	Users []Identity `json:"users"`
}

// Payload implements shared.Event.
func (e SnapshotEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"users": e.Users,
		"count": len(e.Users),
	}
}

// NewSnapshotEvent creates a SnapshotEvent. The aggregate id is the id of
// the actor that observed the snapshot: the hub's node id on the server, the
// local user id on a client.
func NewSnapshotEvent(observerID string, users []Identity) SnapshotEvent {
	return SnapshotEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPresenceSnapshot, observerID),
		Users:     users,
	}
}

// PeerJoinedEvent is emitted by the client reconciler for every genuinely
// new arrival after the first snapshot.
type PeerJoinedEvent struct {
	shared.BaseEvent
	Peer Identity `json:"peer"`
}

// Payload implements shared.Event.
func (e PeerJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"peer_id":     e.Peer.ID,
		"peer_name":   e.Peer.Name,
		"peer_avatar": e.Peer.Avatar,
	}
}

// NewPeerJoinedEvent creates a PeerJoinedEvent observed by the local user.
func NewPeerJoinedEvent(observerID string, peer Identity) PeerJoinedEvent {
	return PeerJoinedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPeerJoined, observerID),
		Peer:      peer,
	}
}
