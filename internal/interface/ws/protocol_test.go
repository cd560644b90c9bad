package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

func TestDecodeInbound_ValidAnnounce(t *testing.T) {
	raw := `{"type":"USER_JOINED","user":{"id":"u-1","name":"Aida","avatar":"https://cdn/a.png"}}`

	identity, err := decodeInbound([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.ID)
	assert.Equal(t, "Aida", identity.Name)
	assert.Equal(t, "https://cdn/a.png", identity.Avatar)
}

func TestDecodeInbound_MalformedJSON(t *testing.T) {
	_, err := decodeInbound([]byte(`{"type":"USER_JOINED",`))
	assert.ErrorIs(t, err, shared.ErrProtocol)
}

func TestDecodeInbound_UnknownType(t *testing.T) {
	_, err := decodeInbound([]byte(`{"type":"PING","user":{"id":"u-1"}}`))
	assert.ErrorIs(t, err, shared.ErrProtocol)
}

func TestDecodeInbound_MissingUserID(t *testing.T) {
	_, err := decodeInbound([]byte(`{"type":"USER_JOINED","user":{"name":"ghost"}}`))
	assert.ErrorIs(t, err, shared.ErrProtocol)
}

func TestDecodeInbound_OutboundTypeRejected(t *testing.T) {
	// Clients must not echo hub frames back.
	_, err := decodeInbound([]byte(`{"type":"PRESENCE_UPDATE","users":[]}`))
	assert.ErrorIs(t, err, shared.ErrProtocol)
}

func TestEncodePresenceUpdate_EmptySetIsArray(t *testing.T) {
	frame, err := encodePresenceUpdate(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PRESENCE_UPDATE","users":[]}`, string(frame))
}

func TestEncodePresenceUpdate_RoundTrip(t *testing.T) {
	users := []presence.Identity{
		{ID: "u-1", Name: "Aida", Avatar: "a.png"},
		{ID: "u-2", Name: "Bek"},
	}

	frame, err := encodePresenceUpdate(users)
	require.NoError(t, err)

	var decoded presenceUpdateFrame
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, FramePresenceUpdate, decoded.Type)
	assert.Equal(t, users, decoded.Users)
}
