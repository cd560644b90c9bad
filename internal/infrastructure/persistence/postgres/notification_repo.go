package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
)

// NotificationRepository implements notification.ArchiveRepository for PostgreSQL.
// The archive is append-only from the hub's point of view: rows are inserted on
// creation, flipped to read on demand, and removed only by a full owner clear.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

// Save adds a notification to the archive.
func (r *NotificationRepository) Save(ctx context.Context, n notification.Notification) error {
	query := `
		INSERT INTO notifications (id, owner_id, type, title, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.conn.Exec(ctx, query,
		string(n.ID),
		string(n.OwnerID),
		string(n.Type),
		n.Title,
		n.Message,
		n.Link,
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}

	return nil
}

// MarkRead flips the archived record to read. Unknown IDs are a no-op,
// mirroring the in-memory store's behavior.
func (r *NotificationRepository) MarkRead(ctx context.Context, owner notification.OwnerID, id notification.NotificationID) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE owner_id = $1 AND id = $2`

	_, err := r.conn.Exec(ctx, query, string(owner), string(id))
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return nil
}

// Clear removes all archived records for the owner.
func (r *NotificationRepository) Clear(ctx context.Context, owner notification.OwnerID) error {
	query := `DELETE FROM notifications WHERE owner_id = $1`

	_, err := r.conn.Exec(ctx, query, string(owner))
	if err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}

	return nil
}

// List returns the owner's archived notifications, newest first.
// A non-positive limit returns everything.
func (r *NotificationRepository) List(ctx context.Context, owner notification.OwnerID, limit int) ([]notification.Notification, error) {
	query := `
		SELECT id, owner_id, type, title, message, link, is_read, created_at
		FROM notifications
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{string(owner)}

	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var n notification.Notification
		var id, ownerID, typ string

		err := rows.Scan(
			&id,
			&ownerID,
			&typ,
			&n.Title,
			&n.Message,
			&n.Link,
			&n.IsRead,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		n.ID = notification.NotificationID(id)
		n.OwnerID = notification.OwnerID(ownerID)
		n.Type = notification.Type(typ)

		result = append(result, n)
	}

	return result, rows.Err()
}

// PruneRead deletes read records created before the cutoff, across all owners.
// Unread records are never pruned. Returns the number of rows removed.
func (r *NotificationRepository) PruneRead(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE is_read AND created_at < $1`

	tag, err := r.conn.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}

	return tag.RowsAffected(), nil
}

// UnreadCount returns the number of unread archived records for the owner.
func (r *NotificationRepository) UnreadCount(ctx context.Context, owner notification.OwnerID) (int, error) {
	query := `SELECT count(*) FROM notifications WHERE owner_id = $1 AND NOT is_read`

	var count int
	if err := r.conn.QueryRow(ctx, query, string(owner)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}
