package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

func newTestUserService(t *testing.T, repo *stubUserRepo) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Users: repo,
		Clock: fixedClock(time.Date(2025, 5, 5, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))),
	})
	if err != nil {
		t.Fatalf("new user service: %v", err)
	}
	return svc
}

func TestUserServiceRegister(t *testing.T) {
	repo := newStubUserRepo(domain.User{ID: "uid-1", Email: "taken@example.com"})
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterUserCommand{UID: "uid-2", Username: " Lan ", Email: " Lan@Example.COM "})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "lan@example.com" || user.Username != "Lan" || user.CreatedAt.Location() != time.UTC {
		t.Fatalf("unexpected user %+v", user)
	}

	_, err = svc.Register(ctx, RegisterUserCommand{UID: "uid-2", Username: "x", Email: "other@example.com"})
	requireMessage(t, err, ErrConflict, "User already exists")
	_, err = svc.Register(ctx, RegisterUserCommand{UID: "uid-3", Username: "x", Email: "TAKEN@example.com"})
	requireMessage(t, err, ErrConflict, "User already exists")
}

func TestUserServiceAdminCreateRequiresFields(t *testing.T) {
	svc := newTestUserService(t, newStubUserRepo())

	_, err := svc.AdminCreate(context.Background(), RegisterUserCommand{UID: "u", Username: "x"})
	requireMessage(t, err, ErrValidation, "Missing required fields: firebaseUid, username, email")
}

func TestUserServiceProfileUpdates(t *testing.T) {
	repo := newStubUserRepo(domain.User{ID: "u1", Username: "old", Email: "a@b.c"})
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	name := "new"
	phone := " 0900 "
	updated, err := svc.UpdateProfile(ctx, "u1", ProfilePatch{Username: &name, PhoneNumber: &phone})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Username != "new" || updated.PhoneNumber != "0900" || updated.Email != "a@b.c" {
		t.Fatalf("unexpected profile %+v", updated)
	}

	_, err = svc.UpdateAvatar(ctx, "u1", " ")
	requireMessage(t, err, ErrValidation, "avatar is required")
	withAvatar, err := svc.UpdateAvatar(ctx, "u1", "https://cdn/a.png")
	if err != nil || withAvatar.Avatar != "https://cdn/a.png" {
		t.Fatalf("update avatar: %+v %v", withAvatar, err)
	}

	_, err = svc.UpdateProfile(ctx, "ghost", ProfilePatch{})
	requireMessage(t, err, ErrNotFound, "User not found")
}

func TestUserServiceAdminUpdateKeepsUID(t *testing.T) {
	repo := newStubUserRepo(
		domain.User{ID: "u1", Username: "one", Email: "one@x.vn"},
		domain.User{ID: "u2", Username: "two", Email: "two@x.vn"},
	)
	svc := newTestUserService(t, repo)
	ctx := context.Background()

	email := "TWO@x.vn"
	if _, err := svc.AdminUpdate(ctx, "u1", UserPatch{Email: &email}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	email = "ONE+new@x.vn"
	updated, err := svc.AdminUpdate(ctx, "u1", UserPatch{Email: &email})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.ID != "u1" || updated.Email != "one+new@x.vn" {
		t.Fatalf("unexpected user %+v", updated)
	}

	if err := svc.Delete(ctx, "u2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserServiceAdminListDefaultsLimit(t *testing.T) {
	repo := newStubUserRepo()
	var got repositories.UserListFilter
	repo.listFn = func(_ context.Context, filter repositories.UserListFilter) (domain.PageResult[domain.User], error) {
		got = filter
		return domain.PageResult[domain.User]{}, nil
	}
	svc := newTestUserService(t, repo)

	if _, err := svc.AdminList(context.Background(), UserFilter{Query: " lan@ "}); err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if got.Page.Limit != 50 || got.Query != "lan@" {
		t.Fatalf("unexpected filter %+v", got)
	}
}
