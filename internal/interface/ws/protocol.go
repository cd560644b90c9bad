// Package ws implements the WebSocket presence hub: the upgrade handler,
// per-connection sessions, and the broadcast fan-out that keeps every
// connected client's view of "who is online" current.
package ws

import (
	"encoding/json"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// Frame types on the wire. The protocol is deliberately tiny: clients announce
// themselves once, the hub pushes full membership snapshots.
const (
	// FrameUserJoined is sent by a client right after connecting, carrying its Identity.
	FrameUserJoined = "USER_JOINED"

	// FramePresenceUpdate is sent by the hub to every connection after any
	// registry change. Carries the full deduplicated online set.
	FramePresenceUpdate = "PRESENCE_UPDATE"
)

// inboundFrame is the envelope for client→hub messages.
type inboundFrame struct {
	Type string            `json:"type"`
	User presence.Identity `json:"user"`
}

// presenceUpdateFrame is the hub→client snapshot envelope.
type presenceUpdateFrame struct {
	Type  string              `json:"type"`
	Users []presence.Identity `json:"users"`
}

// decodeInbound parses a client frame. Strict: the payload must be valid JSON,
// the type must be known, and the announced identity must carry a non-empty id.
// Anything else is a protocol error; callers drop the frame silently.
func decodeInbound(data []byte) (presence.Identity, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return presence.Identity{}, shared.ErrMalformedFrame
	}

	if frame.Type != FrameUserJoined {
		return presence.Identity{}, shared.ErrUnknownFrameType
	}

	if err := frame.User.Validate(); err != nil {
		return presence.Identity{}, shared.ErrMalformedFrame
	}

	return frame.User, nil
}

// encodePresenceUpdate serializes a snapshot for broadcast.
// A nil slice is encoded as an empty users array, never null.
func encodePresenceUpdate(users []presence.Identity) ([]byte, error) {
	if users == nil {
		users = []presence.Identity{}
	}

	return json.Marshal(presenceUpdateFrame{
		Type:  FramePresenceUpdate,
		Users: users,
	})
}
