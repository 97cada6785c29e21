package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnshop/api/internal/services"
)

type stubNotificationService struct {
	services.NotificationService
	items  []services.Notification
	unread int
	err    error
	calls  []string
}

func (s *stubNotificationService) List(_ context.Context, uid string) ([]services.Notification, error) {
	s.calls = append(s.calls, "list:"+uid)
	return s.items, s.err
}

func (s *stubNotificationService) CountUnread(_ context.Context, uid string) (int, error) {
	s.calls = append(s.calls, "count:"+uid)
	return s.unread, s.err
}

func (s *stubNotificationService) MarkRead(_ context.Context, uid, id string) error {
	s.calls = append(s.calls, "read:"+uid+":"+id)
	return s.err
}

func (s *stubNotificationService) Delete(_ context.Context, uid, id string) error {
	s.calls = append(s.calls, "delete:"+uid+":"+id)
	return s.err
}

func notificationRouter(svc services.NotificationService) chi.Router {
	router := chi.NewRouter()
	router.Route("/notifications", NewNotificationHandlers(nil, svc).Routes)
	return router
}

func TestNotificationHandlersList(t *testing.T) {
	svc := &stubNotificationService{items: []services.Notification{
		{ID: "n1", UserID: "u1", Title: "Đơn hàng đã giao", Message: "Order ord-1 delivered", CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}}
	rr := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/notifications", nil), "u1"))

	require.Equal(t, http.StatusOK, rr.Code)
	items := decodeEnvelope(t, rr)["data"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "n1", item["id"])
	assert.Equal(t, false, item["is_read"])
	assert.Equal(t, []string{"list:u1"}, svc.calls)
}

func TestNotificationHandlersUnreadCount(t *testing.T) {
	svc := &stubNotificationService{unread: 4}
	rr := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodGet, "/notifications/unread-count", nil), "u1"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 4, decodeEnvelope(t, rr)["data"].(map[string]any)["count"])
}

func TestNotificationHandlersScopeToCaller(t *testing.T) {
	svc := &stubNotificationService{}
	router := notificationRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/notifications/n1/read", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodDelete, "/notifications/n2", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Notification deleted", decodeEnvelope(t, rr)["message"])

	assert.Equal(t, []string{"read:u1:n1", "delete:u1:n2"}, svc.calls)
}

func TestNotificationHandlersErrors(t *testing.T) {
	svc := &stubNotificationService{err: &services.FieldError{Kind: services.ErrNotFound, Message: "Notification not found"}}
	rr := httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/notifications/missing/read", nil), "u1"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Notification not found", decodeEnvelope(t, rr)["message"])

	rr = httptest.NewRecorder()
	notificationRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, []string{"read:u1:missing"}, svc.calls, "anonymous requests never reach the service")
}
