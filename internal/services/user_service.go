package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

const defaultUserPageLimit = 50

// UserServiceDeps bundles dependencies required by the user service.
type UserServiceDeps struct {
	Users repositories.UserRepository
	Clock func() time.Time
}

type userService struct {
	users repositories.UserRepository
	clock func() time.Time
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &userService{
		users: deps.Users,
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

// Register creates the profile of the signed-in Firebase account.
func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	user, err := s.newUser(cmd)
	if err != nil {
		return User{}, err
	}
	if err := s.create(ctx, user, "User already exists"); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *userService) AdminCreate(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	user, err := s.newUser(cmd)
	if err != nil {
		return User{}, err
	}
	if err := s.create(ctx, user, "User already exists (firebaseUid/email duplicated)"); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *userService) newUser(cmd RegisterUserCommand) (User, error) {
	uid := strings.TrimSpace(cmd.UID)
	username := strings.TrimSpace(cmd.Username)
	email := normalizeEmail(cmd.Email)
	if uid == "" || username == "" || email == "" {
		return User{}, invalidField("", "Missing required fields: firebaseUid, username, email")
	}
	if !strings.Contains(email, "@") {
		return User{}, invalidField("email", "Invalid email")
	}
	now := s.clock()
	return User{
		ID:          uid,
		Username:    username,
		Email:       email,
		Avatar:      strings.TrimSpace(cmd.Avatar),
		PhoneNumber: strings.TrimSpace(cmd.PhoneNumber),
		BirthDate:   utcDate(cmd.BirthDate),
		Gender:      strings.TrimSpace(cmd.Gender),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// create inserts user after checking the email is free. The repository rejects a taken UID.
func (s *userService) create(ctx context.Context, user User, duplicateMessage string) error {
	if _, err := s.users.FindByEmail(ctx, user.Email); err == nil {
		return fieldFailure(ErrConflict, "email", duplicateMessage)
	} else if !isRepositoryNotFound(err) {
		return mapRepositoryError(err, "")
	}
	if err := s.users.Create(ctx, user); err != nil {
		if isRepositoryConflict(err) {
			return fieldFailure(ErrConflict, "firebaseUid", duplicateMessage)
		}
		return mapRepositoryError(err, "")
	}
	return nil
}

func (s *userService) Get(ctx context.Context, uid string) (User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return User{}, invalidField("id", "Invalid user id")
	}
	user, err := s.users.Get(ctx, uid)
	if err != nil {
		return User{}, mapRepositoryError(err, "User not found")
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, uid string, patch ProfilePatch) (User, error) {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return User{}, err
	}
	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if username == "" {
			return User{}, invalidField("username", "Username is required")
		}
		user.Username = username
	}
	if patch.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*patch.PhoneNumber)
	}
	if patch.BirthDate != nil {
		user.BirthDate = utcDate(patch.BirthDate)
	}
	if patch.Gender != nil {
		user.Gender = strings.TrimSpace(*patch.Gender)
	}
	return s.save(ctx, user)
}

func (s *userService) UpdateAvatar(ctx context.Context, uid, avatar string) (User, error) {
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		return User{}, invalidField("avatar", "avatar is required")
	}
	user, err := s.Get(ctx, uid)
	if err != nil {
		return User{}, err
	}
	user.Avatar = avatar
	return s.save(ctx, user)
}

func (s *userService) AdminList(ctx context.Context, filter UserFilter) (domain.PageResult[User], error) {
	page := filter.Page
	if page.Limit <= 0 {
		page.Limit = defaultUserPageLimit
	}
	result, err := s.users.List(ctx, repositories.UserListFilter{
		Query: strings.TrimSpace(filter.Query),
		Page:  page,
	})
	if err != nil {
		return domain.PageResult[User]{}, mapRepositoryError(err, "")
	}
	return result, nil
}

// AdminUpdate applies patch to the profile. The UID is the document key and never changes.
func (s *userService) AdminUpdate(ctx context.Context, uid string, patch UserPatch) (User, error) {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return User{}, err
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if email == "" || !strings.Contains(email, "@") {
			return User{}, invalidField("email", "Invalid email")
		}
		if email != user.Email {
			existing, err := s.users.FindByEmail(ctx, email)
			switch {
			case err == nil && existing.ID != user.ID:
				return User{}, fieldFailure(ErrConflict, "email", "Duplicate email/firebaseUid")
			case err != nil && !isRepositoryNotFound(err):
				return User{}, mapRepositoryError(err, "")
			}
		}
		user.Email = email
	}
	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if username == "" {
			return User{}, invalidField("username", "Username is required")
		}
		user.Username = username
	}
	if patch.Avatar != nil {
		user.Avatar = strings.TrimSpace(*patch.Avatar)
	}
	if patch.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*patch.PhoneNumber)
	}
	if patch.BirthDate != nil {
		user.BirthDate = utcDate(patch.BirthDate)
	}
	if patch.Gender != nil {
		user.Gender = strings.TrimSpace(*patch.Gender)
	}
	return s.save(ctx, user)
}

func (s *userService) Delete(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return invalidField("id", "Invalid user id")
	}
	return mapRepositoryError(s.users.Delete(ctx, uid), "User not found")
}

func (s *userService) save(ctx context.Context, user User) (User, error) {
	user.UpdatedAt = s.clock()
	if err := s.users.Save(ctx, user); err != nil {
		return User{}, mapRepositoryError(err, "User not found")
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// utcDate returns nil for a nil or zero date.
func utcDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	out := t.UTC()
	return &out
}
