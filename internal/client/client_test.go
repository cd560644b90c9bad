package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/application/command"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/infrastructure/messaging"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/interface/ws"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// snapshotRecorder captures presence.snapshot events from the bus.
type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots [][]presence.Identity
}

func (r *snapshotRecorder) record(e shared.Event) error {
	se, ok := e.(presence.SnapshotEvent)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, se.Users)
	return nil
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *snapshotRecorder) last() []presence.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *snapshotRecorder) lastIDs() []string {
	ids := []string{}
	for _, u := range r.last() {
		ids = append(ids, u.ID)
	}
	return ids
}

type clientFixture struct {
	url string
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()

	cfg := ws.DefaultHubConfig()
	cfg.Logger = discardLogger()
	hub := ws.NewHub(cfg, nil, nil)
	server := httptest.NewServer(ws.NewHandler(hub, nil, discardLogger()))

	t.Cleanup(func() {
		hub.Shutdown()
		server.Close()
	})

	return &clientFixture{
		url: "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
	}
}

// participant bundles one simulated user: client, feed, and observers.
type participant struct {
	client   *Client
	store    *notification.Store
	owner    notification.OwnerID
	recorder *snapshotRecorder
}

func newParticipant(t *testing.T, f *clientFixture, id, name string) *participant {
	t.Helper()

	store := notification.NewStore()
	push := command.NewPushNotificationHandler(store, nil, nil, discardLogger())

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	recorder := &snapshotRecorder{}
	require.NoError(t, bus.Subscribe(shared.EventPresenceSnapshot, recorder.record))

	c, err := New(Config{
		URL:      f.url,
		Self:     presence.Identity{ID: id, Name: name},
		Notifier: &CommandNotifier{Handler: push},
		Bus:      bus,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &participant{
		client:   c,
		store:    store,
		owner:    notification.OwnerID(id),
		recorder: recorder,
	}
}

func waitSnapshots(t *testing.T, p *participant, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.recorder.count() >= n
	}, 3*time.Second, 10*time.Millisecond, "expected at least %d snapshots", n)
}

func TestClient_TwoUsersEndToEnd(t *testing.T) {
	f := newClientFixture(t)

	// U1 connects into an empty hub.
	u1 := newParticipant(t, f, "u-1", "Aida")
	require.NoError(t, u1.client.Dial(context.Background()))

	waitSnapshots(t, u1, 1)
	assert.Equal(t, []string{"u-1"}, u1.recorder.lastIDs())
	assert.Zero(t, u1.store.UnreadCount(u1.owner), "first snapshot must be silent")

	// U2 joins; U1 must see them as a new arrival.
	u2 := newParticipant(t, f, "u-2", "Bek")
	require.NoError(t, u2.client.Dial(context.Background()))

	waitSnapshots(t, u1, 2)
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, u1.recorder.lastIDs())

	require.Eventually(t, func() bool {
		return u1.store.UnreadCount(u1.owner) == 1
	}, 3*time.Second, 10*time.Millisecond)

	feed := u1.store.List(u1.owner, 0)
	require.Len(t, feed, 1)
	assert.Equal(t, notification.TypePeerJoined, feed[0].Type)
	assert.Contains(t, feed[0].Title, "Bek")

	// U2's first snapshot already contains both users: no notifications.
	waitSnapshots(t, u2, 1)
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, u2.recorder.lastIDs())
	assert.Zero(t, u2.store.UnreadCount(u2.owner))
}

func TestClient_RejoinNotifiesAgain(t *testing.T) {
	f := newClientFixture(t)

	u1 := newParticipant(t, f, "u-1", "Aida")
	require.NoError(t, u1.client.Dial(context.Background()))
	waitSnapshots(t, u1, 1)

	// U2 joins, leaves, and rejoins.
	u2 := newParticipant(t, f, "u-2", "Bek")
	require.NoError(t, u2.client.Dial(context.Background()))
	waitSnapshots(t, u1, 2)

	require.NoError(t, u2.client.Close())
	waitSnapshots(t, u1, 3)

	require.NoError(t, u2.client.Dial(context.Background()))
	waitSnapshots(t, u1, 4)

	require.Eventually(t, func() bool {
		return u1.store.UnreadCount(u1.owner) == 2
	}, 3*time.Second, 10*time.Millisecond, "join + rejoin should notify twice")
}

func TestClient_CloseResetsStateAndPublishesEmptySet(t *testing.T) {
	f := newClientFixture(t)

	u1 := newParticipant(t, f, "u-1", "Aida")
	require.NoError(t, u1.client.Dial(context.Background()))
	waitSnapshots(t, u1, 1)

	before := u1.recorder.count()
	require.NoError(t, u1.client.Close())

	assert.False(t, u1.client.Connected())
	waitSnapshots(t, u1, before+1)
	assert.Empty(t, u1.recorder.lastIDs(), "teardown publishes the fail-safe empty set")

	// Reconnect re-enters the first-snapshot rule: no notification spam
	// for peers who were already online.
	u2 := newParticipant(t, f, "u-2", "Bek")
	require.NoError(t, u2.client.Dial(context.Background()))

	require.NoError(t, u1.client.Dial(context.Background()))
	require.Eventually(t, func() bool {
		ids := u1.recorder.lastIDs()
		return len(ids) == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Zero(t, u1.store.UnreadCount(u1.owner))
}

func TestClient_DoubleDialRejected(t *testing.T) {
	f := newClientFixture(t)

	u1 := newParticipant(t, f, "u-1", "Aida")
	require.NoError(t, u1.client.Dial(context.Background()))

	err := u1.client.Dial(context.Background())
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestClient_DialFailureSurfacesTransportError(t *testing.T) {
	c, err := New(Config{
		URL:    "ws://127.0.0.1:1/ws", // nothing listens here
		Self:   presence.Identity{ID: "u-1", Name: "Aida"},
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Dial(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConnectionFailed)
	assert.ErrorIs(t, err, shared.ErrTransport)
	assert.False(t, c.Connected())
}

func TestClient_AnnounceRequiresConnection(t *testing.T) {
	f := newClientFixture(t)
	u1 := newParticipant(t, f, "u-1", "Aida")

	err := u1.client.Announce(presence.Identity{ID: "u-1", Name: "Aida"})
	assert.ErrorIs(t, err, shared.ErrNotConnected)

	require.NoError(t, u1.client.Dial(context.Background()))
	require.NoError(t, u1.client.Close())

	err = u1.client.Announce(presence.Identity{ID: "u-1", Name: "Aida"})
	assert.ErrorIs(t, err, shared.ErrNotConnected)
}

func TestClient_ReannounceUpdatesDisplayName(t *testing.T) {
	f := newClientFixture(t)

	u1 := newParticipant(t, f, "u-1", "Aida")
	require.NoError(t, u1.client.Dial(context.Background()))
	waitSnapshots(t, u1, 1)

	// The id is the registry key; Announce may only refresh display data.
	err := u1.client.Announce(presence.Identity{ID: "someone-else", Name: "Aida"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	require.NoError(t, u1.client.Announce(presence.Identity{ID: "u-1", Name: "Aida K."}))

	require.Eventually(t, func() bool {
		users := u1.recorder.last()
		return len(users) == 1 && users[0].Name == "Aida K."
	}, 3*time.Second, 10*time.Millisecond, "re-announce should overwrite the registered name")
}

func TestClient_CloseWhenNotConnectedIsNoop(t *testing.T) {
	f := newClientFixture(t)
	u1 := newParticipant(t, f, "u-1", "Aida")
	assert.NoError(t, u1.client.Close())
}
