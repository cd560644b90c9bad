package notification

import (
	"context"
)

// ArchiveRepository — долговременный двойник Store: append-only архив
// уведомлений в Postgres. Подключение опционально; при пустом DATABASE_URL
// ядро работает только с лентой в памяти.
type ArchiveRepository interface {
	// Save добавляет уведомление в архив.
	Save(ctx context.Context, n Notification) error

	// MarkRead помечает архивную запись прочитанной; неизвестный ID — no-op.
	MarkRead(ctx context.Context, owner OwnerID, id NotificationID) error

	// Clear удаляет все записи владельца.
	Clear(ctx context.Context, owner OwnerID) error

	// List возвращает записи владельца, новые сверху.
	List(ctx context.Context, owner OwnerID, limit int) ([]Notification, error)

	// UnreadCount возвращает количество непрочитанных записей владельца.
	UnreadCount(ctx context.Context, owner OwnerID) (int, error)
}
