package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vitrin-app/vitrin-backend/internal/api/respond"
	"github.com/vitrin-app/vitrin-backend/internal/cache"
	"github.com/vitrin-app/vitrin-backend/internal/notify"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// GetNotifications returns a user's notification feed, newest first.
// @Summary List notifications
// @Description Returns a page of the user's notifications, newest first.
// @Tags notifications
// @Produce json
// @Param userID path int true "User ID"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications [get]
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "User ID must be an integer")
		return
	}
	limit := queryInt(r, "limit", defaultFeedLimit)
	if limit < 1 || limit > maxFeedLimit {
		limit = defaultFeedLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	list, err := notify.ListForUser(r.Context(), h.pool, userID, limit, offset)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load notifications")
		return
	}
	if list == nil {
		list = []notify.Notification{}
	}

	data, err := json.Marshal(map[string]interface{}{
		"notifications": list,
		"count":         len(list),
		"limit":         limit,
		"offset":        offset,
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODING_ERROR", "Failed to encode notifications")
		return
	}

	// The feed is personal and paginated, so it is not stored server-side;
	// the ETag still lets polling clients revalidate cheaply.
	etag := cache.ComputeETag(data)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, cache.TTLFeed, false)
}

// GetUnreadCount returns the user's unread notification count.
// @Summary Unread notification count
// @Description Returns the number of unread notifications. Cached briefly; supports ETag revalidation.
// @Tags notifications
// @Produce json
// @Param userID path int true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications/unread_count [get]
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "User ID must be an integer")
		return
	}

	cacheKey := unreadCountKey(userID)
	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLUnreadCount, true)
		return
	}

	count, err := notify.UnreadCount(r.Context(), h.pool, userID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count notifications")
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"user_id":      userID,
		"unread_count": count,
	})
	etag := h.cache.Set(cacheKey, data, cache.TTLUnreadCount)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, cache.TTLUnreadCount, false)
}

// MarkNotificationRead flags a single notification as read.
// @Summary Mark notification read
// @Description Marks the notification as read. Returns 404 if it does not exist or is already read.
// @Tags notifications
// @Produce json
// @Param notificationID path int true "Notification ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/notifications/{notificationID}/read [post]
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 64)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Notification ID must be an integer")
		return
	}

	userID, ok, err := notify.MarkRead(r.Context(), h.pool, id)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to mark notification read")
		return
	}
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found or already read")
		return
	}

	h.cache.Delete(unreadCountKey(userID))
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"id":   id,
		"read": true,
	})
}

func unreadCountKey(userID int64) string {
	return fmt.Sprintf("unread:%d", userID)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
