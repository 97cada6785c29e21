package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/repositories"
)

const notificationCollectionPattern = "users/%s/notifications"

// NotificationRepository persists in-app notifications under users/{uid}/notifications, which
// scopes every read and write to the owner.
type NotificationRepository struct {
	provider *pfirestore.Provider
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{provider: provider}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, n domain.Notification) error {
	coll, err := r.collection(ctx, n.UserID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("notification repository: id is required")
	}
	doc := notificationDocument{
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
	if _, err := coll.Doc(n.ID).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("notifications.insert", err)
	}
	return nil
}

// List returns notifications newest first.
func (r *NotificationRepository) List(ctx context.Context, userID string) ([]domain.Notification, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}
	docs, err := pfirestore.Collect[notificationDocument](ctx, coll.OrderBy(fieldCreatedAt, firestore.Desc))
	if err != nil {
		return nil, pfirestore.WrapError("notifications.list", err)
	}
	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Notification{
			ID:        doc.ID,
			UserID:    strings.TrimSpace(userID),
			Title:     doc.Data.Title,
			Message:   doc.Data.Message,
			IsRead:    doc.Data.IsRead,
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return 0, err
	}
	total, err := pfirestore.CountQuery(ctx, coll.Where("is_read", "==", false))
	if err != nil {
		return 0, pfirestore.WrapError("notifications.count_unread", err)
	}
	return int(total), nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	ref, err := r.doc(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, []firestore.Update{{Path: "is_read", Value: true}}); err != nil {
		return pfirestore.WrapError("notifications.mark_read", err)
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, notificationID string) error {
	ref, err := r.doc(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("notifications.delete", err)
	}
	return nil
}

func (r *NotificationRepository) doc(ctx context.Context, userID, notificationID string) (*firestore.DocumentRef, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(notificationID)
	if id == "" {
		return nil, errors.New("notification repository: id is required")
	}
	return coll.Doc(id), nil
}

func (r *NotificationRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("notification repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("notification repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(notificationCollectionPattern, uid)), nil
}

type notificationDocument struct {
	Title     string    `firestore:"title"`
	Message   string    `firestore:"message"`
	IsRead    bool      `firestore:"is_read"`
	CreatedAt time.Time `firestore:"created_at"`
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
