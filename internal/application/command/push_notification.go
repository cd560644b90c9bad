// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-presence-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUSH NOTIFICATION COMMAND
// Единая точка входа для всех продюсеров уведомлений: ядро присутствия
// (peer_joined), загрузки контента, запуски скилл-хабов, системные сообщения.
// Лента в памяти — источник истины; архив в Postgres пишется асинхронно
// и не может затормозить продюсера.
// ══════════════════════════════════════════════════════════════════════════════

// PushNotificationCommand содержит данные нового уведомления.
type PushNotificationCommand struct {
	// OwnerID - получатель уведомления.
	OwnerID string

	// Type - тип: peer_joined, content_uploaded, skill_launched, system.
	Type string

	// Title - заголовок (обязателен).
	Title string

	// Message - текст уведомления.
	Message string

	// Link - опциональная ссылка для перехода.
	Link string
}

// PushNotificationHandler обрабатывает команду.
type PushNotificationHandler struct {
	store   *notification.Store
	archive notification.ArchiveRepository
	retrier *retry.Retrier
	bus     shared.EventBus
	logger  *slog.Logger

	// wg отслеживает асинхронные записи в архив, чтобы graceful shutdown
	// мог их дождаться.
	wg sync.WaitGroup
}

// NewPushNotificationHandler создаёт обработчик. Архив и шина опциональны.
func NewPushNotificationHandler(
	store *notification.Store,
	archive notification.ArchiveRepository,
	bus shared.EventBus,
	logger *slog.Logger,
) *PushNotificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushNotificationHandler{
		store:   store,
		archive: archive,
		retrier: retry.ArchiveRetrier(),
		bus:     bus,
		logger:  logger,
	}
}

// Handle выполняет команду: валидирует, пишет в ленту, асинхронно архивирует
// и публикует событие notification.created.
func (h *PushNotificationHandler) Handle(ctx context.Context, cmd PushNotificationCommand) (*notification.Notification, error) {
	draft := notification.Draft{
		OwnerID: notification.OwnerID(cmd.OwnerID),
		Type:    notification.Type(cmd.Type),
		Title:   cmd.Title,
		Message: cmd.Message,
		Link:    cmd.Link,
	}

	n, err := h.store.Add(draft)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("notification pushed",
		"owner_id", cmd.OwnerID,
		"type", cmd.Type,
		"notification_id", string(n.ID),
	)

	if h.bus != nil {
		if err := h.bus.Publish(notification.NewCreatedEvent(*n)); err != nil {
			h.logger.Debug("created event publish failed", "error", err)
		}
	}

	if h.archive != nil {
		h.archiveAsync(*n)
	}

	return n, nil
}

// archiveAsync пишет уведомление в архив в фоне, с ретраями.
// Отказ архива не влияет на ленту в памяти.
func (h *PushNotificationHandler) archiveAsync(n notification.Notification) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := h.retrier.Do(ctx, func(ctx context.Context) error {
			return h.archive.Save(ctx, n)
		})
		if err != nil {
			h.logger.Error("notification archive failed",
				"notification_id", string(n.ID),
				"error", err,
			)
		}
	}()
}

// Wait блокируется до завершения всех фоновых записей в архив.
func (h *PushNotificationHandler) Wait() {
	h.wg.Wait()
}
