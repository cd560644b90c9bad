package messaging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

type testEvent struct {
	shared.BaseEvent
	Data map[string]interface{}
}

func (e testEvent) Payload() map[string]interface{} {
	return e.Data
}

func newTestEvent(eventType shared.EventType, aggregateID string) testEvent {
	return testEvent{
		BaseEvent: shared.NewBaseEvent(eventType, aggregateID),
		Data:      map[string]interface{}{"aggregate_id": aggregateID},
	}
}

func syncBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
	}
}

func TestInMemoryEventBus_SubscribeAndPublish(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	var got []shared.Event
	err := bus.Subscribe(shared.EventPeerJoined, func(e shared.Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)

	event := newTestEvent(shared.EventPeerJoined, "u-1")
	require.NoError(t, bus.Publish(event))

	require.Len(t, got, 1)
	assert.Equal(t, shared.EventPeerJoined, got[0].EventType())
	assert.Equal(t, "u-1", got[0].AggregateID())
}

func TestInMemoryEventBus_TypedHandlerIgnoresOtherTypes(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	calls := 0
	require.NoError(t, bus.Subscribe(shared.EventPeerJoined, func(shared.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(newTestEvent(shared.EventPeerLeft, "u-2")))
	assert.Zero(t, calls)
}

func TestInMemoryEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	seen := make(map[shared.EventType]int)
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		seen[e.EventType()]++
		return nil
	}))

	require.NoError(t, bus.Publish(newTestEvent(shared.EventPeerJoined, "u-1")))
	require.NoError(t, bus.Publish(newTestEvent(shared.EventNotificationCreated, "n-1")))

	assert.Equal(t, 1, seen[shared.EventPeerJoined])
	assert.Equal(t, 1, seen[shared.EventNotificationCreated])
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventPeerJoined, func(shared.Event) error {
		return errors.New("boom")
	}))

	reached := false
	require.NoError(t, bus.Subscribe(shared.EventPeerJoined, func(shared.Event) error {
		reached = true
		return nil
	}))

	require.NoError(t, bus.Publish(newTestEvent(shared.EventPeerJoined, "u-1")))
	assert.True(t, reached)
}

func TestInMemoryEventBus_AsyncDeliversAllBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 4,
	})

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, bus.Publish(newTestEvent(shared.EventPeerJoined, "u-1")))
	}

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, count)
}

func TestInMemoryEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	require.NoError(t, bus.Close())

	err := bus.Publish(newTestEvent(shared.EventPeerJoined, "u-1"))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventPeerJoined, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	// Double close is a no-op.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_MetricsCountPublishes(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventPresenceSnapshot, func(shared.Event) error { return nil }))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(newTestEvent(shared.EventPresenceSnapshot, "observer")))
	}

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(3), snap.TotalPublished)
	assert.Equal(t, int64(3), snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}
