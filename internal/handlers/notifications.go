package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

// NotificationHandlers lists and acknowledges the caller's notifications.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs notification handlers.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{authn: authn, notifications: notifications}
}

// Routes registers the /notifications endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Put("/{notificationID}/read", h.markRead)
	r.Delete("/{notificationID}", h.delete)
}

func (h *NotificationHandlers) list(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	items, err := h.notifications.List(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(items, buildNotificationPayload))
}

func (h *NotificationHandlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	count, err := h.notifications.CountUnread(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(r.Context(), identity.UID, pathParam(r, "notificationID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Notification marked as read", nil)
}

func (h *NotificationHandlers) delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.notifications.Delete(r.Context(), identity.UID, pathParam(r, "notificationID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Notification deleted", nil)
}
