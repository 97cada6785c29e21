package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vnshop/api/internal/domain"
)

type memNotificationRepo struct {
	items map[string][]domain.Notification
}

func (m *memNotificationRepo) Insert(_ context.Context, n domain.Notification) error {
	m.items[n.UserID] = append([]domain.Notification{n}, m.items[n.UserID]...)
	return nil
}

func (m *memNotificationRepo) List(_ context.Context, userID string) ([]domain.Notification, error) {
	return m.items[userID], nil
}

func (m *memNotificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	count := 0
	for _, n := range m.items[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memNotificationRepo) MarkRead(_ context.Context, userID, id string) error {
	for i, n := range m.items[userID] {
		if n.ID == id {
			m.items[userID][i].IsRead = true
			return nil
		}
	}
	return errRepoNotFound
}

func (m *memNotificationRepo) Delete(_ context.Context, userID, id string) error {
	list := m.items[userID]
	for i, n := range list {
		if n.ID == id {
			m.items[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errRepoNotFound
}

func TestNotificationServiceLifecycle(t *testing.T) {
	repo := &memNotificationRepo{items: map[string][]domain.Notification{}}
	svc, err := NewNotificationService(NotificationServiceDeps{
		Notifications: repo,
		Clock:         fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		IDGenerator:   sequenceIDs("n1", "n2"),
	})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}
	ctx := context.Background()

	first, err := svc.Notify(ctx, "u1", "<i>Order placed</i>", "Your order #1 has been created.")
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if first.Title != "Order placed" || first.IsRead {
		t.Fatalf("unexpected notification %+v", first)
	}
	if _, err := svc.Notify(ctx, "u1", "Second", ""); err != nil {
		t.Fatalf("notify: %v", err)
	}

	list, _ := svc.List(ctx, "u1")
	if len(list) != 2 || list[0].ID != "n2" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if err := svc.MarkRead(ctx, "u1", "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, _ := svc.CountUnread(ctx, "u1")
	if unread != 1 {
		t.Fatalf("expected 1 unread, got %d", unread)
	}

	if err := svc.MarkRead(ctx, "u2", "n1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected other users to see not found, got %v", err)
	}
	if err := svc.Delete(ctx, "u1", " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.Delete(ctx, "u1", "n2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Notify(ctx, "", "x", "y"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected user required, got %v", err)
	}
}
