package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/platform/textutil"
	"github.com/vnshop/api/internal/repositories"
)

const (
	userCollection = "users"

	userFieldEmail       = "email"
	userFieldUsernameKey = "username_key"
)

// UserRepository persists user profiles keyed by Firebase UID.
type UserRepository struct {
	base     *pfirestore.Collection[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewCollection[userDocument](provider, userCollection)
	return &UserRepository{base: base, provider: provider}, nil
}

// Create fails with a conflict when a profile already exists for the UID.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}
	return r.base.Create(ctx, user.ID, fromDomainUser(user))
}

func (r *UserRepository) Save(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}
	return r.base.Set(ctx, user.ID, fromDomainUser(user))
}

func (r *UserRepository) Get(ctx context.Context, uid string) (domain.User, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(uid))
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc), nil
}

func (r *UserRepository) GetMany(ctx context.Context, uids []string) (map[string]domain.User, error) {
	docs, err := getMany(ctx, r.provider, r.base, uids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.User, len(docs))
	for _, doc := range docs {
		out[doc.ID] = toDomainUser(doc)
	}
	return out, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	email = normalizeEmail(email)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(userFieldEmail, "==", email).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	doc, err := firstOrNotFound(docs, "users.find", email)
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(doc), nil
}

func (r *UserRepository) Delete(ctx context.Context, uid string) error {
	return r.base.Delete(ctx, strings.TrimSpace(uid), firestore.Exists)
}

func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.PageResult[domain.User], error) {
	field, key := userSearch(filter.Query)
	build := func(q firestore.Query) firestore.Query {
		return withPrefix(q, field, key)
	}
	return listPage(ctx, r.base, build, filter.Page, searchField(field, key), toDomainUser)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	total, err := r.base.Count(ctx, nil)
	return int(total), err
}

// userSearch picks the indexed field a free text query runs against.
func userSearch(raw string) (field, key string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if strings.Contains(raw, "@") {
		return userFieldEmail, normalizeEmail(raw)
	}
	return userFieldUsernameKey, textutil.SearchKey(raw)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type userDocument struct {
	Username    string     `firestore:"username"`
	UsernameKey string     `firestore:"username_key"`
	Email       string     `firestore:"email"`
	Avatar      string     `firestore:"avatar,omitempty"`
	PhoneNumber string     `firestore:"phone_number,omitempty"`
	BirthDate   *time.Time `firestore:"birth_date,omitempty"`
	Gender      string     `firestore:"gender,omitempty"`
	CreatedAt   time.Time  `firestore:"created_at"`
	UpdatedAt   time.Time  `firestore:"updated_at"`
}

func fromDomainUser(u domain.User) userDocument {
	doc := userDocument{
		Username:    u.Username,
		UsernameKey: textutil.SearchKey(u.Username),
		Email:       normalizeEmail(u.Email),
		Avatar:      u.Avatar,
		PhoneNumber: u.PhoneNumber,
		Gender:      u.Gender,
		CreatedAt:   u.CreatedAt.UTC(),
		UpdatedAt:   u.UpdatedAt.UTC(),
	}
	if u.BirthDate != nil {
		birth := u.BirthDate.UTC()
		doc.BirthDate = &birth
	}
	return doc
}

func toDomainUser(doc pfirestore.Document[userDocument]) domain.User {
	d := doc.Data
	u := domain.User{
		ID:          doc.ID,
		Username:    d.Username,
		Email:       d.Email,
		Avatar:      d.Avatar,
		PhoneNumber: d.PhoneNumber,
		Gender:      d.Gender,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.BirthDate != nil {
		birth := *d.BirthDate
		u.BirthDate = &birth
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = doc.CreateTime
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = doc.UpdateTime
	}
	return u
}

var _ repositories.UserRepository = (*UserRepository)(nil)
