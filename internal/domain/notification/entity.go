// Package notification содержит доменную модель уведомлений SkillSwap.
// Уведомления — лента событий для колокольчика в шапке: новые пиры онлайн,
// загруженные материалы, запущенные скилл-хабы. Философия: уведомление должно
// подталкивать к живому контакту, а не засорять экран.
package notification

import (
	"strings"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationID представляет уникальный идентификатор уведомления.
type NotificationID string

// IsValid проверяет, что ID не пустой.
func (id NotificationID) IsValid() bool {
	return len(id) > 0
}

// String возвращает строковое представление ID.
func (id NotificationID) String() string {
	return string(id)
}

// OwnerID представляет пользователя, которому принадлежит уведомление.
type OwnerID string

// IsValid проверяет, что ID владельца не пустой.
func (id OwnerID) IsValid() bool {
	return len(strings.TrimSpace(string(id))) > 0
}

// String возвращает строковое представление ID владельца.
func (id OwnerID) String() string {
	return string(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип уведомления.
type Type string

const (
	// TypePeerJoined — пир появился онлайн.
	// "🟢 Bekzat сейчас в сети — самое время спросить про Go!"
	TypePeerJoined Type = "peer_joined"

	// TypeContentUploaded — кто-то загрузил новый материал.
	TypeContentUploaded Type = "content_uploaded"

	// TypeSkillLaunched — открыт новый скилл-хаб.
	TypeSkillLaunched Type = "skill_launched"

	// TypeSystem — служебное сообщение платформы.
	TypeSystem Type = "system"
)

// IsValid проверяет, что тип уведомления известен.
func (t Type) IsValid() bool {
	switch t {
	case TypePeerJoined, TypeContentUploaded, TypeSkillLaunched, TypeSystem:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Notification — одно событие в ленте пользователя. Создаётся любым
// продюсером (ядро создаёт peer_joined), после создания мутирует только
// флаг IsRead; удаляется лишь массовой очисткой.
type Notification struct {
	ID        NotificationID `json:"id"`
	OwnerID   OwnerID        `json:"user_id"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Link      string         `json:"link,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"timestamp"`
}

// Draft — уведомление до присвоения ID и времени. Именно в таком виде его
// передают продюсеры; штампует поля Store.Add.
type Draft struct {
	OwnerID OwnerID
	Type    Type
	Title   string
	Message string
	Link    string
}

// Validate проверяет инварианты черновика.
func (d Draft) Validate() error {
	if !d.OwnerID.IsValid() {
		return shared.ErrOwnerEmpty
	}
	if !d.Type.IsValid() {
		return shared.ErrInvalidKind
	}
	if strings.TrimSpace(d.Title) == "" {
		return shared.ErrTitleEmpty
	}
	return nil
}

// MarkRead помечает уведомление прочитанным.
func (n *Notification) MarkRead() {
	n.IsRead = true
}

// CreatedEvent публикуется в шину событий при создании уведомления.
type CreatedEvent struct {
	shared.BaseEvent
	Notification Notification `json:"notification"`
}

// Payload реализует shared.Event.
func (e CreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"id":       e.Notification.ID.String(),
		"owner_id": e.Notification.OwnerID.String(),
		"type":     string(e.Notification.Type),
		"title":    e.Notification.Title,
	}
}

// NewCreatedEvent создаёт событие о новом уведомлении.
func NewCreatedEvent(n Notification) CreatedEvent {
	return CreatedEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventNotificationCreated, n.OwnerID.String()),
		Notification: n,
	}
}
