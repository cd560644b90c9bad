// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ONLINE NOW QUERY
// Возвращает дедуплицированный список пользователей, подключённых к хабу
// прямо сейчас. Это социальная фича: "Кто сейчас на площадке? Постучись!"
// Читает живой реестр соединений, а не базу — ответ всегда актуален.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotProvider отдаёт текущий срез онлайн-пользователей.
// Реализуется хабом; в тестах подменяется фикстурой.
type SnapshotProvider interface {
	Snapshot() []presence.Identity
}

// GetOnlineNowQuery содержит параметры запроса.
type GetOnlineNowQuery struct {
	// Limit - максимальное количество (по умолчанию 50, максимум 200).
	Limit int
}

// Validate проверяет корректность параметров.
func (q *GetOnlineNowQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}

// OnlineUserDTO - DTO одного онлайн-пользователя.
type OnlineUserDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// GetOnlineNowResult - результат запроса.
type GetOnlineNowResult struct {
	// Users - онлайн-пользователи, отсортированы по имени.
	Users []OnlineUserDTO `json:"users"`

	// Total - сколько всего онлайн (может быть больше len(Users) при Limit).
	Total int `json:"total"`

	// GeneratedAt - момент снятия среза.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetOnlineNowHandler обрабатывает запрос.
type GetOnlineNowHandler struct {
	snapshots SnapshotProvider
	logger    *slog.Logger
}

// NewGetOnlineNowHandler создаёт обработчик.
func NewGetOnlineNowHandler(snapshots SnapshotProvider, logger *slog.Logger) *GetOnlineNowHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetOnlineNowHandler{
		snapshots: snapshots,
		logger:    logger,
	}
}

// Handle выполняет запрос.
func (h *GetOnlineNowHandler) Handle(ctx context.Context, q GetOnlineNowQuery) (*GetOnlineNowResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	snapshot := h.snapshots.Snapshot()
	total := len(snapshot)

	// Имя может совпадать, поэтому вторичный ключ — ID.
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].Name != snapshot[j].Name {
			return snapshot[i].Name < snapshot[j].Name
		}
		return snapshot[i].ID < snapshot[j].ID
	})

	if len(snapshot) > q.Limit {
		snapshot = snapshot[:q.Limit]
	}

	users := make([]OnlineUserDTO, 0, len(snapshot))
	for _, u := range snapshot {
		users = append(users, OnlineUserDTO{
			ID:     u.ID,
			Name:   u.Name,
			Avatar: u.Avatar,
		})
	}

	return &GetOnlineNowResult{
		Users:       users,
		Total:       total,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
