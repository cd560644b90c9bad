package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/application/command"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/application/query"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-presence-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "SkillSwap Presence Hub API",
		"version":     "v1",
		"description": "Who is online right now, and what happened while you were away",
		"endpoints": map[string]string{
			"health":        "/health",
			"online":        "/api/v1/presence/online",
			"notifications": "/api/v1/notifications",
			"stats":         "/api/v1/stats",
			"websocket":     "/ws",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleGetStats reports live hub counters.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime": s.Uptime().String(),
	}
	if s.deps.HubStats != nil {
		stats["online_users"] = s.deps.HubStats.OnlineCount()
		stats["open_connections"] = s.deps.HubStats.SessionCount()
	}
	writeJSON(w, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetOnline returns the deduplicated set of users online right now.
func (s *Server) handleGetOnline(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetOnlineNowHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "presence_unavailable", "Presence queries are not configured")
		return
	}

	q := query.GetOnlineNowQuery{
		Limit: getQueryParamInt(r, "limit", 0),
	}

	result, err := s.deps.GetOnlineNowHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		TotalCount: result.Total,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// pushNotificationRequest is the POST /api/v1/notifications body.
type pushNotificationRequest struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// notificationListResponse wraps the feed with its derived counters.
type notificationListResponse struct {
	Notifications []notification.Notification `json:"notifications"`
	UnreadCount   int                         `json:"unread_count"`
}

// handleListNotifications returns the owner's feed, newest first.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.Feed == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "notifications_unavailable", "Notification feed is not configured")
		return
	}

	limit := getQueryParamInt(r, "limit", 0)
	feed := s.deps.Feed.List(owner, limit)

	writeJSONWithMeta(w, r, http.StatusOK, notificationListResponse{
		Notifications: feed,
		UnreadCount:   s.deps.Feed.UnreadCount(owner),
	}, &ResponseMeta{
		TotalCount: len(feed),
	})
}

// handleUnreadCount returns the number of unread notifications for the owner.
func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.Feed == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "notifications_unavailable", "Notification feed is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"unread_count": s.deps.Feed.UnreadCount(owner),
	})
}

// handlePushNotification appends a notification to the owner's feed.
func (s *Server) handlePushNotification(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.PushNotificationHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "notifications_unavailable", "Notification commands are not configured")
		return
	}

	var req pushNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeJSONError(w, http.StatusBadRequest, "empty_body", "Request body is required")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return
	}

	created, err := s.deps.PushNotificationHandler.Handle(r.Context(), command.PushNotificationCommand{
		OwnerID: owner.String(),
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Link:    req.Link,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleMarkRead marks a single notification as read. Unknown IDs are a
// silent no-op, so the response is the same either way.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.MarkNotificationReadHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "notifications_unavailable", "Notification commands are not configured")
		return
	}

	err := s.deps.MarkNotificationReadHandler.Handle(r.Context(), command.MarkNotificationReadCommand{
		OwnerID:        owner.String(),
		NotificationID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleClearNotifications empties the owner's feed.
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	if s.deps.ClearNotificationsHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "notifications_unavailable", "Notification commands are not configured")
		return
	}

	err := s.deps.ClearNotificationsHandler.Handle(r.Context(), command.ClearNotificationsCommand{
		OwnerID: owner.String(),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// requireOwner resolves the acting user from the X-User-ID header, falling
// back to the user_id query parameter. The gateway in front of the hub is
// responsible for authenticating it.
func (s *Server) requireOwner(w http.ResponseWriter, r *http.Request) (notification.OwnerID, bool) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		id = r.URL.Query().Get("user_id")
	}

	owner := notification.OwnerID(id)
	if !owner.IsValid() {
		writeJSONError(w, http.StatusBadRequest, "missing_user_id", "X-User-ID header or user_id query parameter is required")
		return "", false
	}
	return owner, true
}

// writeDomainError maps domain error kinds to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidID),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrEmptyValue):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrServiceUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	default:
		s.logger.Error("request failed",
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
