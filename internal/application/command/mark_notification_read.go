package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK NOTIFICATION READ COMMAND
// Помечает одно уведомление прочитанным. Неизвестный ID — no-op, как и в
// ленте: кнопка "прочитано" не должна падать из-за гонки с очисткой.
// ══════════════════════════════════════════════════════════════════════════════

// MarkNotificationReadCommand содержит параметры.
type MarkNotificationReadCommand struct {
	OwnerID        string
	NotificationID string
}

// MarkNotificationReadHandler обрабатывает команду.
type MarkNotificationReadHandler struct {
	store   *notification.Store
	archive notification.ArchiveRepository
	logger  *slog.Logger
}

// NewMarkNotificationReadHandler создаёт обработчик.
func NewMarkNotificationReadHandler(
	store *notification.Store,
	archive notification.ArchiveRepository,
	logger *slog.Logger,
) *MarkNotificationReadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkNotificationReadHandler{
		store:   store,
		archive: archive,
		logger:  logger,
	}
}

// Handle выполняет команду.
func (h *MarkNotificationReadHandler) Handle(ctx context.Context, cmd MarkNotificationReadCommand) error {
	owner := notification.OwnerID(cmd.OwnerID)
	if !owner.IsValid() {
		return shared.ErrOwnerEmpty
	}

	h.store.MarkRead(owner, notification.NotificationID(cmd.NotificationID))

	if h.archive != nil {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		err := h.archive.MarkRead(ctx, owner, notification.NotificationID(cmd.NotificationID))
		if err != nil {
			// Архив — best-effort двойник; лента уже обновлена.
			h.logger.Debug("archive mark read failed", "error", err)
		}
	}

	return nil
}
