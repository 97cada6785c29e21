package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vnshop/api/internal/platform/textutil"
	"github.com/vnshop/api/internal/repositories"
)

// NotificationServiceDeps wires the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
	IDGenerator   func() string
}

type notificationService struct {
	repo  repositories.NotificationRepository
	clock func() time.Time
	newID func() string
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &notificationService{
		repo:  deps.Notifications,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *notificationService) Notify(ctx context.Context, userID, title, message string) (Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Notification{}, invalidField("user_id", "User is required")
	}
	n := Notification{
		ID:        s.newID(),
		UserID:    userID,
		Title:     textutil.Plain(title),
		Message:   textutil.Plain(message),
		CreatedAt: s.clock(),
	}
	if n.Title == "" {
		return Notification{}, invalidField("title", "Title is required")
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return Notification{}, mapRepositoryError(err, "")
	}
	return n, nil
}

func (s *notificationService) List(ctx context.Context, userID string) ([]Notification, error) {
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return items, nil
}

func (s *notificationService) CountUnread(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, mapRepositoryError(err, "")
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if strings.TrimSpace(notificationID) == "" {
		return invalidField("id", "Notification id is required")
	}
	return mapRepositoryError(s.repo.MarkRead(ctx, userID, notificationID), "Notification not found")
}

func (s *notificationService) Delete(ctx context.Context, userID, notificationID string) error {
	if strings.TrimSpace(notificationID) == "" {
		return invalidField("id", "Notification id is required")
	}
	return mapRepositoryError(s.repo.Delete(ctx, userID, notificationID), "Notification not found")
}
