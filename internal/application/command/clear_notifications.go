package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLEAR NOTIFICATIONS COMMAND
// Массовая очистка ленты владельца — единственный способ удаления
// уведомлений.
// ══════════════════════════════════════════════════════════════════════════════

// ClearNotificationsCommand содержит параметры.
type ClearNotificationsCommand struct {
	OwnerID string
}

// ClearNotificationsHandler обрабатывает команду.
type ClearNotificationsHandler struct {
	store   *notification.Store
	archive notification.ArchiveRepository
	logger  *slog.Logger
}

// NewClearNotificationsHandler создаёт обработчик.
func NewClearNotificationsHandler(
	store *notification.Store,
	archive notification.ArchiveRepository,
	logger *slog.Logger,
) *ClearNotificationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClearNotificationsHandler{
		store:   store,
		archive: archive,
		logger:  logger,
	}
}

// Handle выполняет команду.
func (h *ClearNotificationsHandler) Handle(ctx context.Context, cmd ClearNotificationsCommand) error {
	owner := notification.OwnerID(cmd.OwnerID)
	if !owner.IsValid() {
		return shared.ErrOwnerEmpty
	}

	h.store.ClearAll(owner)

	if h.archive != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := h.archive.Clear(ctx, owner); err != nil {
			h.logger.Debug("archive clear failed", "error", err)
		}
	}

	h.logger.Info("notifications cleared", "owner_id", cmd.OwnerID)
	return nil
}
