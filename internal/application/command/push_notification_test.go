package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

type fakeArchive struct {
	mu       sync.Mutex
	saved    []notification.Notification
	failures int
}

func (f *fakeArchive) Save(ctx context.Context, n notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("archive down")
	}
	f.saved = append(f.saved, n)
	return nil
}

func (f *fakeArchive) MarkRead(ctx context.Context, owner notification.OwnerID, id notification.NotificationID) error {
	return nil
}

func (f *fakeArchive) Clear(ctx context.Context, owner notification.OwnerID) error {
	return nil
}

func (f *fakeArchive) List(ctx context.Context, owner notification.OwnerID, limit int) ([]notification.Notification, error) {
	return nil, nil
}

func (f *fakeArchive) UnreadCount(ctx context.Context, owner notification.OwnerID) (int, error) {
	return 0, nil
}

func (f *fakeArchive) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPushNotification_WritesStoreAndArchive(t *testing.T) {
	store := notification.NewStore()
	archive := &fakeArchive{}
	handler := NewPushNotificationHandler(store, archive, nil, testLogger())

	n, err := handler.Handle(context.Background(), PushNotificationCommand{
		OwnerID: "u-1",
		Type:    string(notification.TypePeerJoined),
		Title:   "Aida is online",
		Message: "Aida just joined",
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.IsRead)

	assert.Equal(t, 1, store.UnreadCount(notification.OwnerID("u-1")))

	handler.Wait()
	assert.Equal(t, 1, archive.savedCount())
}

func TestPushNotification_ArchiveFailureIsRetried(t *testing.T) {
	store := notification.NewStore()
	archive := &fakeArchive{failures: 2}
	handler := NewPushNotificationHandler(store, archive, nil, testLogger())

	_, err := handler.Handle(context.Background(), PushNotificationCommand{
		OwnerID: "u-1",
		Type:    string(notification.TypeSystem),
		Title:   "maintenance window",
	})
	require.NoError(t, err)

	handler.Wait()
	assert.Equal(t, 1, archive.savedCount())
}

func TestPushNotification_InvalidDraftRejected(t *testing.T) {
	store := notification.NewStore()
	handler := NewPushNotificationHandler(store, nil, nil, testLogger())

	_, err := handler.Handle(context.Background(), PushNotificationCommand{
		OwnerID: "",
		Type:    string(notification.TypeSystem),
		Title:   "no owner",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestMarkNotificationRead_FlowsToStore(t *testing.T) {
	store := notification.NewStore()
	push := NewPushNotificationHandler(store, nil, nil, testLogger())
	markRead := NewMarkNotificationReadHandler(store, nil, testLogger())

	n, err := push.Handle(context.Background(), PushNotificationCommand{
		OwnerID: "u-1",
		Type:    string(notification.TypeContentUploaded),
		Title:   "New guide published",
	})
	require.NoError(t, err)

	err = markRead.Handle(context.Background(), MarkNotificationReadCommand{
		OwnerID:        "u-1",
		NotificationID: string(n.ID),
	})
	require.NoError(t, err)
	assert.Zero(t, store.UnreadCount(notification.OwnerID("u-1")))
}

func TestClearNotifications_EmptiesOwnerFeed(t *testing.T) {
	store := notification.NewStore()
	push := NewPushNotificationHandler(store, nil, nil, testLogger())
	clearAll := NewClearNotificationsHandler(store, nil, testLogger())

	for i := 0; i < 3; i++ {
		_, err := push.Handle(context.Background(), PushNotificationCommand{
			OwnerID: "u-1",
			Type:    string(notification.TypeSystem),
			Title:   "note",
		})
		require.NoError(t, err)
	}

	require.NoError(t, clearAll.Handle(context.Background(), ClearNotificationsCommand{OwnerID: "u-1"}))
	assert.Zero(t, store.UnreadCount(notification.OwnerID("u-1")))
	assert.Empty(t, store.List(notification.OwnerID("u-1"), 0))
}
