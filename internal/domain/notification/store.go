package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store — упорядоченный (новые сверху) список уведомлений с учётом
// прочитанности, разложенный по владельцам. Хранит всё в памяти: обязанность
// пережить рестарт лежит на архиве (см. ArchiveRepository), а не на ленте.
//
// Store сам НЕ дедуплицирует записи: подавление повторных "peer joined"
// целиком ответственность клиентского Reconciler.
type Store struct {
	mu      sync.RWMutex
	byOwner map[OwnerID][]*Notification

	// now подменяется в тестах.
	now func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		byOwner: make(map[OwnerID][]*Notification),
		now:     time.Now,
	}
}

// Add штампует ID, время создания и флаг "непрочитано", затем добавляет
// уведомление в начало ленты владельца. Возвращает созданную запись.
func (s *Store) Add(draft Draft) (*Notification, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	n := &Notification{
		ID:        NotificationID(uuid.NewString()),
		OwnerID:   draft.OwnerID,
		Type:      draft.Type,
		Title:     draft.Title,
		Message:   draft.Message,
		Link:      draft.Link,
		IsRead:    false,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byOwner[draft.OwnerID] = append([]*Notification{n}, s.byOwner[draft.OwnerID]...)

	out := *n
	return &out, nil
}

// MarkRead помечает уведомление прочитанным. Неизвестный ID — no-op.
func (s *Store) MarkRead(owner OwnerID, id NotificationID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.byOwner[owner] {
		if n.ID == id {
			n.MarkRead()
			return
		}
	}
}

// ClearAll очищает ленту владельца.
func (s *Store) ClearAll(owner OwnerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byOwner, owner)
}

// UnreadCount возвращает количество непрочитанных. Значение выводится из
// списка, отдельно не хранится.
func (s *Store) UnreadCount(owner OwnerID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.byOwner[owner] {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// List возвращает копии уведомлений владельца, новые сверху.
// limit <= 0 означает "все".
func (s *Store) List(owner OwnerID, limit int) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.byOwner[owner]
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}

	out := make([]Notification, 0, limit)
	for _, n := range items[:limit] {
		out = append(out, *n)
	}
	return out
}
