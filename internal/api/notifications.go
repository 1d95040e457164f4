package api

import (
	"database/sql"
	"net/http"

	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// NotificationsHandler serves the caller's own notification feed.
type NotificationsHandler struct {
	DB *sql.DB
}

const notificationFeedLimit = 100

// List handles GET /api/notifications. ?unread=true limits the feed to
// unread notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"

	list, err := store.ListNotifications(r.Context(), h.DB, claims.UserID, unreadOnly, notificationFeedLimit)
	if err != nil {
		writeServiceError(w, "list notifications", err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}

	unread, err := store.CountUnreadNotifications(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeServiceError(w, "count notifications", err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"notifications": list,
		"unread":        unread,
	})
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id := r.PathValue("id")

	found, err := store.MarkNotificationRead(r.Context(), h.DB, claims.UserID, id)
	if err != nil {
		writeServiceError(w, "mark notification read", err)
		return
	}
	if !found {
		jsonError(w, http.StatusNotFound, "notification not found")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "notification read"})
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	n, err := store.MarkAllNotificationsRead(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeServiceError(w, "mark notifications read", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"updated": n})
}
