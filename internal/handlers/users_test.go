package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnshop/api/internal/platform/auth"
	pstorage "github.com/vnshop/api/internal/platform/storage"
	"github.com/vnshop/api/internal/services"
)

type stubProfileService struct {
	services.UserService
	registerFn func(context.Context, services.RegisterUserCommand) (services.User, error)
	getFn      func(context.Context, string) (services.User, error)
	avatarFn   func(context.Context, string, string) (services.User, error)
}

func (s *stubProfileService) Register(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error) {
	return s.registerFn(ctx, cmd)
}

func (s *stubProfileService) Get(ctx context.Context, uid string) (services.User, error) {
	return s.getFn(ctx, uid)
}

func (s *stubProfileService) UpdateAvatar(ctx context.Context, uid, avatar string) (services.User, error) {
	return s.avatarFn(ctx, uid, avatar)
}

type stubUploadService struct {
	captured services.UploadCommand
}

func (s *stubUploadService) IssueUpload(_ context.Context, cmd services.UploadCommand) (services.SignedUpload, error) {
	s.captured = cmd
	return services.SignedUpload{
		URL:       "https://storage.googleapis.com/shop-media/avatars/u1/01h.png?X-Goog-Signature=abc",
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": "image/png"},
		Object:    "avatars/u1/01h.png",
		ExpiresAt: time.Date(2025, 1, 1, 0, 15, 0, 0, time.UTC),
	}, nil
}

func userRouter(users services.UserService, uploads services.UploadService) chi.Router {
	h := NewUserHandlers(nil, users, uploads)
	router := chi.NewRouter()
	router.Route("/users", h.UserRoutes)
	router.Route("/profile", h.ProfileRoutes)
	return router
}

func TestUserHandlersPublicProfileHidesContactDetails(t *testing.T) {
	birth := time.Date(1995, 4, 30, 0, 0, 0, 0, time.UTC)
	svc := &stubProfileService{
		getFn: func(_ context.Context, uid string) (services.User, error) {
			return services.User{ID: uid, Username: "lan", Email: "lan@example.com", PhoneNumber: "0901234567", BirthDate: &birth}, nil
		},
	}
	rr := httptest.NewRecorder()
	userRouter(svc, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users/u1", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeEnvelope(t, rr)["data"].(map[string]any)
	assert.Equal(t, map[string]any{"id": "u1", "username": "lan"}, data)
}

func TestUserHandlersRegister(t *testing.T) {
	var captured services.RegisterUserCommand
	svc := &stubProfileService{
		registerFn: func(_ context.Context, cmd services.RegisterUserCommand) (services.User, error) {
			captured = cmd
			return services.User{ID: cmd.UID, Username: cmd.Username, Email: cmd.Email}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"username":"lan","birth_date":"1995-04-30"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "u1", Email: "token@example.com"}))
	rr := httptest.NewRecorder()
	userRouter(svc, nil).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "u1", captured.UID)
	assert.Equal(t, "token@example.com", captured.Email, "email falls back to the token claim")
	require.NotNil(t, captured.BirthDate)
	assert.Equal(t, time.Date(1995, 4, 30, 0, 0, 0, 0, time.UTC), captured.BirthDate.UTC())
}

func TestUserHandlersRegisterErrors(t *testing.T) {
	svc := &stubProfileService{
		registerFn: func(context.Context, services.RegisterUserCommand) (services.User, error) {
			return services.User{}, &services.FieldError{Kind: services.ErrConflict, Message: "User already exists"}
		},
	}
	cases := []struct {
		name    string
		body    string
		status  int
		message string
		field   any
	}{
		{name: "bad birth date", body: `{"username":"lan","birth_date":"30/04/1995"}`, status: http.StatusBadRequest, message: "birth_date must be YYYY-MM-DD", field: "birth_date"},
		{name: "duplicate", body: `{"username":"lan"}`, status: http.StatusConflict, message: "User already exists"},
		{name: "empty body", body: ``, status: http.StatusBadRequest, message: "Request body is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := withUser(httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(tc.body)), "u1")
			rr := httptest.NewRecorder()
			userRouter(svc, nil).ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			body := decodeEnvelope(t, rr)
			assert.Equal(t, tc.message, body["message"])
			assert.Equal(t, tc.field, body["field"])
		})
	}
}

func TestUserHandlersAvatarRequired(t *testing.T) {
	svc := &stubProfileService{
		avatarFn: func(_ context.Context, _ string, avatar string) (services.User, error) {
			if strings.TrimSpace(avatar) == "" {
				return services.User{}, &services.FieldError{Kind: services.ErrValidation, Field: "avatar", Message: "avatar is required"}
			}
			return services.User{ID: "u1", Avatar: avatar}, nil
		},
	}
	router := userRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/profile/avatar", strings.NewReader(`{"avatar":" "}`)), "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "avatar is required", decodeEnvelope(t, rr)["message"])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodPut, "/profile/avatar", strings.NewReader(`{"avatar":"https://cdn/a.png"}`)), "u1"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://cdn/a.png", decodeEnvelope(t, rr)["data"].(map[string]any)["avatar"])
}

func TestUserHandlersAvatarUploadURL(t *testing.T) {
	uploads := &stubUploadService{}
	rr := httptest.NewRecorder()
	req := withUser(httptest.NewRequest(http.MethodPost, "/profile/avatar/upload-url", strings.NewReader(`{"content_type":"image/png"}`)), "u1")
	userRouter(&stubProfileService{}, uploads).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, services.UploadCommand{Purpose: pstorage.PurposeAvatar, OwnerID: "u1", ContentType: "image/png"}, uploads.captured)
	data := decodeEnvelope(t, rr)["data"].(map[string]any)
	assert.Equal(t, http.MethodPut, data["method"])
	assert.Equal(t, "avatars/u1/01h.png", data["object"])

	rr = httptest.NewRecorder()
	req = withUser(httptest.NewRequest(http.MethodPost, "/profile/avatar/upload-url", strings.NewReader(`{"content_type":"image/png"}`)), "u1")
	userRouter(&stubProfileService{}, nil).ServeHTTP(rr, req)
	assert.NotEqual(t, http.StatusOK, rr.Code, "the route is absent without a bucket")
}
