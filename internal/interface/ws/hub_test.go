package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type hubFixture struct {
	hub    *Hub
	server *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	return newMirroredHubFixture(t, nil)
}

func newMirroredHubFixture(t *testing.T, mirror Mirror) *hubFixture {
	t.Helper()

	cfg := DefaultHubConfig()
	cfg.Logger = discardLogger()

	hub := NewHub(cfg, nil, mirror)
	handler := NewHandler(hub, nil, discardLogger())
	server := httptest.NewServer(handler)

	t.Cleanup(func() {
		hub.Shutdown()
		server.Close()
	})

	return &hubFixture{hub: hub, server: server}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func announce(t *testing.T, conn *websocket.Conn, id, name string) {
	t.Helper()

	frame := fmt.Sprintf(`{"type":"USER_JOINED","user":{"id":%q,"name":%q,"avatar":""}}`, id, name)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []presence.Identity {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame presenceUpdateFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, FramePresenceUpdate, frame.Type)

	return frame.Users
}

func snapshotIDs(users []presence.Identity) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// waitForSnapshotSize reads snapshots until one has the expected size.
func waitForSnapshotSize(t *testing.T, conn *websocket.Conn, size int) []presence.Identity {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		users := readSnapshot(t, conn)
		if len(users) == size {
			return users
		}
	}
	t.Fatalf("never received snapshot of size %d", size)
	return nil
}

func TestHub_JoiningClientReceivesItself(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t)
	announce(t, conn, "u-1", "Aida")

	users := readSnapshot(t, conn)
	assert.Equal(t, []string{"u-1"}, snapshotIDs(users))
}

func TestHub_BroadcastReachesEveryConnection(t *testing.T) {
	f := newHubFixture(t)

	conn1 := f.dial(t)
	announce(t, conn1, "u-1", "Aida")
	readSnapshot(t, conn1) // [u-1]

	conn2 := f.dial(t)
	announce(t, conn2, "u-2", "Bek")

	users1 := readSnapshot(t, conn1)
	users2 := readSnapshot(t, conn2)

	assert.ElementsMatch(t, []string{"u-1", "u-2"}, snapshotIDs(users1))
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, snapshotIDs(users2))
}

func TestHub_UnannouncedConnectionReceivesBroadcasts(t *testing.T) {
	f := newHubFixture(t)

	observer := f.dial(t) // never announces

	active := f.dial(t)
	announce(t, active, "u-1", "Aida")

	users := readSnapshot(t, observer)
	assert.Equal(t, []string{"u-1"}, snapshotIDs(users))

	// The silent observer holds no registry slot.
	assert.Equal(t, 1, f.hub.OnlineCount())
	assert.Equal(t, 2, f.hub.SessionCount())
}

func TestHub_MalformedFramesAreDroppedSilently(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t)

	for _, raw := range []string{
		`not json at all`,
		`{"type":"SHRUG"}`,
		`{"type":"USER_JOINED","user":{"name":"no id"}}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
	}

	// No broadcast was triggered.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, f.hub.OnlineCount())
}

func TestHub_ConnectionUsableAfterMalformedFrame(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))

	announce(t, conn, "u-1", "Aida")
	users := readSnapshot(t, conn)
	assert.Equal(t, []string{"u-1"}, snapshotIDs(users))
}

func TestHub_DisconnectShrinksSnapshot(t *testing.T) {
	f := newHubFixture(t)

	conn1 := f.dial(t)
	announce(t, conn1, "u-1", "Aida")
	readSnapshot(t, conn1)

	conn2 := f.dial(t)
	announce(t, conn2, "u-2", "Bek")
	waitForSnapshotSize(t, conn1, 2)

	require.NoError(t, conn2.Close())

	users := waitForSnapshotSize(t, conn1, 1)
	assert.Equal(t, []string{"u-1"}, snapshotIDs(users))
}

func TestHub_SendFailureIsIsolated(t *testing.T) {
	f := newHubFixture(t)

	// A dead session planted directly in the hub: its queue rejects
	// everything, as if the peer hung and the queue filled up.
	dead := &Session{
		id:     "dead-conn",
		hub:    f.hub,
		logger: discardLogger(),
		send:   make(chan []byte),
		done:   make(chan struct{}),
	}
	dead.close()
	f.hub.mu.Lock()
	f.hub.sessions[dead] = struct{}{}
	f.hub.mu.Unlock()
	require.NoError(t, f.hub.registry.Register(dead.id, presence.Identity{ID: "ghost"}))

	healthy := f.dial(t)
	announce(t, healthy, "u-1", "Aida")

	// Delivery to the healthy connection is unaffected.
	users := waitForSnapshotSize(t, healthy, 1)
	assert.Equal(t, []string{"u-1"}, snapshotIDs(users))

	// The dead session was detached and its identity dropped.
	assert.Eventually(t, func() bool {
		for _, u := range f.hub.Snapshot() {
			if u.ID == "ghost" {
				return false
			}
		}
		return f.hub.SessionCount() == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHub_SnapshotsArriveInOrder(t *testing.T) {
	f := newHubFixture(t)

	observer := f.dial(t) // never announces, just watches

	for i := 1; i <= 5; i++ {
		conn := f.dial(t)
		announce(t, conn, fmt.Sprintf("u-%d", i), fmt.Sprintf("User %d", i))

		// Wait for the observer to see this membership change before
		// triggering the next, so the expected sequence is deterministic.
		users := readSnapshot(t, observer)
		assert.Len(t, users, i)
	}
}

// TestHub_ConcurrentAnnouncesKeepSnapshotsMonotonic hammers the hub with
// announces landing on parallel read loops. The registry only grows during
// the burst, so every connection must see snapshot sizes that never shrink:
// a smaller snapshot after a larger one means fan-out ran out of order.
func TestHub_ConcurrentAnnouncesKeepSnapshotsMonotonic(t *testing.T) {
	const (
		observers  = 8
		announcers = 4
	)

	for trial := 0; trial < 5; trial++ {
		f := newHubFixture(t)

		watching := make([]*websocket.Conn, observers)
		for i := range watching {
			watching[i] = f.dial(t) // never announces, just watches
		}

		errs := make(chan error, announcers)
		for i := 0; i < announcers; i++ {
			conn := f.dial(t)
			go func(i int, conn *websocket.Conn) {
				frame := fmt.Sprintf(
					`{"type":"USER_JOINED","user":{"id":"u-%d","name":"User %d","avatar":""}}`, i, i)
				errs <- conn.WriteMessage(websocket.TextMessage, []byte(frame))
			}(i, conn)
		}
		for i := 0; i < announcers; i++ {
			require.NoError(t, <-errs)
		}

		for i, conn := range watching {
			seen := 0
			for j := 0; j < announcers; j++ {
				users := readSnapshot(t, conn)
				require.GreaterOrEqual(t, len(users), seen,
					"trial %d observer %d: snapshot of %d users after %d while the registry only grew",
					trial, i, len(users), seen)
				seen = len(users)
			}
			assert.Equal(t, announcers, seen)
		}

		f.hub.Shutdown()
	}
}

// countingMirror records how many join/leave projections the hub emitted.
type countingMirror struct {
	mu     sync.Mutex
	joins  int
	leaves int
}

func (m *countingMirror) RecordJoin(presence.Identity, int) {
	m.mu.Lock()
	m.joins++
	m.mu.Unlock()
}

func (m *countingMirror) RecordLeave(presence.Identity, int) {
	m.mu.Lock()
	m.leaves++
	m.mu.Unlock()
}

func (m *countingMirror) SyncSnapshot([]presence.Identity) {}

func (m *countingMirror) joinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joins
}

func TestHub_SimultaneousTabsRecordOneJoin(t *testing.T) {
	mirror := &countingMirror{}
	f := newMirroredHubFixture(t, mirror)

	const tabs = 4
	errs := make(chan error, tabs)
	for i := 0; i < tabs; i++ {
		conn := f.dial(t)
		go func(conn *websocket.Conn) {
			frame := `{"type":"USER_JOINED","user":{"id":"u-1","name":"Aida","avatar":""}}`
			errs <- conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}(conn)
	}
	for i := 0; i < tabs; i++ {
		require.NoError(t, <-errs)
	}

	require.Eventually(t, func() bool {
		return f.hub.registry.Len() == tabs
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.hub.OnlineCount())
	assert.Equal(t, 1, mirror.joinCount())
}

func TestHub_DuplicateIDsCollapseInBroadcast(t *testing.T) {
	f := newHubFixture(t)

	tab1 := f.dial(t)
	announce(t, tab1, "u-1", "Aida")
	readSnapshot(t, tab1)

	tab2 := f.dial(t)
	announce(t, tab2, "u-1", "Aida")

	users := readSnapshot(t, tab2)
	assert.Equal(t, []string{"u-1"}, snapshotIDs(users))
	assert.Equal(t, 2, f.hub.SessionCount())
	assert.Equal(t, 1, f.hub.OnlineCount())
}
